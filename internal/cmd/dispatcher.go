package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/OznOg/exanodes-admind/cmn"
)

// Dispatcher validates and routes every incoming cluster command
// (§4.6): admind-state mask, cluster-uuid stamp, and recovery-allowed
// flag are all checked before a registered handler ever runs.
type Dispatcher struct {
	mu sync.RWMutex

	state       cmn.AdmindState
	clusterUUID string
	recovering  bool

	commands map[Code]*Command
}

func NewDispatcher(clusterUUID string) *Dispatcher {
	return &Dispatcher{
		state:       cmn.StateNoConfig,
		clusterUUID: clusterUUID,
		commands:    make(map[Code]*Command),
	}
}

func (d *Dispatcher) SetState(s cmn.AdmindState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
}

func (d *Dispatcher) SetRecovering(recovering bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recovering = recovering
}

// Register adds cmd to the catalogue, rejecting a code that is already
// registered (§4.6: "rejecting duplicate rpc codes at startup").
func (d *Dispatcher) Register(cmd *Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.commands[cmd.Code]; exists {
		return fmt.Errorf("cmd: duplicate command code %s", cmd.Code)
	}
	d.commands[cmd.Code] = cmd
	return nil
}

// Dispatch validates and invokes the handler registered for code.
func (d *Dispatcher) Dispatch(ctx context.Context, code Code, clusterUUID string, args Args) *cmn.ErrDesc {
	d.mu.RLock()
	cmd, ok := d.commands[code]
	state := d.state
	selfUUID := d.clusterUUID
	recovering := d.recovering
	d.mu.RUnlock()

	if !ok {
		return cmn.NewErrDesc(cmn.InvalidParam, "unknown command code %v", code)
	}
	if !cmd.AllowedStates.Allows(state) {
		return cmn.NewErrDesc(cmn.InvalidParam, "%s not allowed in admind state %s", code, state)
	}
	if cmd.RequireClusterUUID && selfUUID != "" && clusterUUID != selfUUID {
		return cmn.NewErrDesc(cmn.InvalidParam, "%s: cluster uuid mismatch", code)
	}
	if recovering && !cmd.AllowedInRecovery {
		return cmn.NewErrDesc(cmn.InvalidParam, "%s not allowed while recovery is in progress", code)
	}

	glog.V(3).Infof("cmd: dispatching %s", code)
	return cmd.Handler(ctx, args)
}
