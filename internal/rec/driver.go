// Package rec implements the recovery driver (§4.3, §4.5): the
// START→PER_SERVICE(init/recover/resume)→DONE state machine that runs
// every registered service's lifecycle callbacks in order, forced into
// ABORTED on a NODE_DOWN result and FATAL on METADATA_CORRUPTION.
// Grounded on aistore's rebalance state machine (reb/reb.go's
// xaction state transitions), generalized from object-rebalance phases
// to the per-service init/recover/resume pipeline.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package rec

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
	"github.com/OznOg/exanodes-admind/internal/stats"
	"github.com/OznOg/exanodes-admind/internal/svc"
)

// Caller fans a recovery phase out to every other member of up ∪
// going_up via exec_command (§4.3); the leader runs each phase locally
// through svc.RunPhase AND remotely through Caller so every
// participant's services actually observe init/recover/resume, instead
// of each node driving its own callbacks in isolation with no
// cross-node coordination. Kept as a narrow interface (rather than rec
// importing internal/wt/internal/msg directly) so the wire format for
// a recovery phase request is owned entirely by the admind wiring
// layer that also owns the superblock full-resync message sharing the
// same mailbox.
type Caller interface {
	RunPhaseOn(ctx context.Context, members []cluster.NodeID, phase svc.Phase) (cmn.ErrKind, error)
}

// State is the recovery driver's own state machine, distinct from a
// node's cluster.ViewState (§4.3).
type State int

const (
	StateStart State = iota
	StatePerService
	StateDone
	StateAborted
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StatePerService:
		return "PER_SERVICE"
	case StateDone:
		return "DONE"
	case StateAborted:
		return "ABORTED"
	case StateFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome of one full recovery pass.
type Result struct {
	State       State
	Generation  uint64
	PhaseErrors map[string]map[string]cmn.ErrKind // phase name -> service name -> result
}

// Driver runs a single recovery pass at a time; Run is not reentrant
// for the same Driver instance (mirrors aistore's one-rebalance-
// at-a-time invariant).
type Driver struct {
	reg        *svc.Registry
	generation atomic.Uint64
	audit      *Audit
	stats      stats.Recorder
	caller     Caller
	self       cluster.NodeID
}

func NewDriver(reg *svc.Registry, audit *Audit, caller Caller, self cluster.NodeID) *Driver {
	return &Driver{reg: reg, audit: audit, caller: caller, self: self}
}

// WithStats attaches a metrics recorder; nil (the default) disables
// observation entirely.
func (d *Driver) WithStats(r stats.Recorder) *Driver {
	d.stats = r
	return d
}

// Run drives init → recover → resume forward across every registered
// service, stopping at the first phase that returns NODE_DOWN
// (ABORTED, retryable once the membership round settles) or
// METADATA_CORRUPTION (FATAL, requires an explicit reset before the
// affected group accepts writes again). members is up ∪ going_up
// (§4.3): the caller only invokes Run at all when it is the leader, and
// each phase runs locally via svc.RunPhase AND is fanned out via
// Caller.RunPhaseOn to every other member, so the whole clique's
// services observe the same phase instead of each node recovering in
// isolation.
func (d *Driver) Run(ctx context.Context, members []cluster.NodeID) Result {
	start := time.Now()
	gen := d.generation.Add(1)
	res := Result{State: StatePerService, Generation: gen, PhaseErrors: map[string]map[string]cmn.ErrKind{}}

	phases := []struct {
		name  string
		phase svc.Phase
	}{
		{"init", svc.PhaseInit},
		{"recover", svc.PhaseRecover},
		{"resume", svc.PhaseResume},
	}

	remote := make([]cluster.NodeID, 0, len(members))
	for _, id := range members {
		if id != d.self {
			remote = append(remote, id)
		}
	}

	for _, p := range phases {
		kind, byService := svc.RunPhase(ctx, d.reg, p.phase)
		res.PhaseErrors[p.name] = byService

		if len(remote) > 0 && d.caller != nil {
			remoteKind, err := d.caller.RunPhaseOn(ctx, remote, p.phase)
			if err != nil {
				glog.Warningf("rec: generation %d fanning out %s phase failed: %v", gen, p.name, err)
				remoteKind = cmn.NodeDown
			}
			kind = cmn.Aggregate([]cmn.ErrKind{kind, remoteKind})
		}

		switch {
		case kind.Fatal():
			glog.Errorf("rec: generation %d aborted with FATAL during %s phase", gen, p.name)
			res.State = StateFatal
			d.observe(res.State, start)
			return res
		case kind == cmn.NodeDown:
			glog.Warningf("rec: generation %d aborted (NODE_DOWN) during %s phase", gen, p.name)
			res.State = StateAborted
			d.observe(res.State, start)
			return res
		}
	}

	res.State = StateDone
	d.observe(res.State, start)
	return res
}

func (d *Driver) observe(state State, start time.Time) {
	if d.stats != nil {
		d.stats.ObserveRecoveryDurationSeconds(state.String(), time.Since(start).Seconds())
	}
}
