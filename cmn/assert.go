package cmn

import (
	"fmt"

	"github.com/golang/glog"
)

// Assert and friends mirror aistore's cmn/debug helpers: cheap
// invariant checks that crash loudly instead of propagating a
// corrupted state silently. ComputeClique's self-presence check is one
// use.
func Assert(cond bool, a ...interface{}) {
	if !cond {
		panicMsg(a...)
	}
}

func Assertf(cond bool, f string, a ...interface{}) {
	if !cond {
		panicMsg(fmt.Sprintf(f, a...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panicMsg(err)
	}
}

func panicMsg(a ...interface{}) {
	msg := "assertion failed"
	if len(a) > 0 {
		msg = fmt.Sprint(a...)
	}
	glog.Errorf("%s", msg)
	glog.Flush()
	panic(msg)
}
