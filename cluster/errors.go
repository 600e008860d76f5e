package cluster

import "fmt"

// invariantError marks a violation of one of the §3 data-model
// invariants; callers that can't recover from it should treat it as
// cluster-wide METADATA_CORRUPTION.
type invariantError struct{ msg string }

func (e *invariantError) Error() string { return e.msg }

func errInvariant(format string, a ...interface{}) error {
	return &invariantError{msg: fmt.Sprintf(format, a...)}
}

func IsInvariantError(err error) bool {
	_, ok := err.(*invariantError)
	return ok
}
