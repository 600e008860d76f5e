package svc

import (
	"context"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
)

// Phase selects one lifecycle callback across every service.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseRecover
	PhaseResume
	PhaseSuspend
	// PhaseStop names the stop(nodes_to_stop) phase (§4.5) for callers
	// that need to label it; it never runs through Phase.callback/
	// RunPhase since Callbacks.Stop takes a node set RunStop supplies.
	PhaseStop
	PhaseShutdown
	PhaseCheckUp
)

func (p Phase) callback(c Callbacks) func(context.Context) cmn.ErrKind {
	switch p {
	case PhaseInit:
		return c.Init
	case PhaseRecover:
		return c.Recover
	case PhaseResume:
		return c.Resume
	case PhaseSuspend:
		return c.Suspend
	case PhaseShutdown:
		return c.Shutdown
	case PhaseCheckUp:
		return c.CheckUp
	default:
		return nil
	}
}

// reversed reports whether a phase runs the service list in reverse
// registration order (§4.5: shutdown runs reverse, everything else
// forward).
func (p Phase) reversed() bool { return p == PhaseShutdown }

// RunPhase invokes phase on every registered service in the
// appropriate order, short-circuiting as soon as a service returns a
// Fatal result (METADATA_CORRUPTION): the recovery driver's caller is
// expected to abort the whole recovery, not paper over a corrupted
// group by continuing to the next service.
func RunPhase(ctx context.Context, reg *Registry, phase Phase) (cmn.ErrKind, map[string]cmn.ErrKind) {
	services := reg.Forward()
	if phase.reversed() {
		services = reg.Reverse()
	}

	results := make(map[string]cmn.ErrKind, len(services))
	kinds := make([]cmn.ErrKind, 0, len(services))
	for _, s := range services {
		cb := phase.callback(s.Callbacks)
		kind := cmn.Success
		if cb != nil {
			kind = cb(ctx)
		}
		results[s.Name] = kind
		kinds = append(kinds, kind)
		if kind.Fatal() {
			break
		}
	}
	return cmn.Aggregate(kinds), results
}

// RunNodeAdd/RunNodeDel/RunDiskAdd/RunDiskDel drive the per-node and
// per-disk callbacks across every service (§4.5): forward order for all
// of them except RunNodeDel, which runs in reverse.

func RunNodeAdd(ctx context.Context, reg *Registry, id cluster.NodeID) (cmn.ErrKind, map[string]cmn.ErrKind) {
	return runNodeOp(ctx, reg, id, func(c Callbacks) func(context.Context, cluster.NodeID) cmn.ErrKind { return c.NodeAdd })
}

func RunNodeAddCommit(ctx context.Context, reg *Registry, id cluster.NodeID) (cmn.ErrKind, map[string]cmn.ErrKind) {
	return runNodeOp(ctx, reg, id, func(c Callbacks) func(context.Context, cluster.NodeID) cmn.ErrKind { return c.NodeAddCommit })
}

func RunCheckNodeDel(ctx context.Context, reg *Registry, id cluster.NodeID) (cmn.ErrKind, map[string]cmn.ErrKind) {
	return runNodeOp(ctx, reg, id, func(c Callbacks) func(context.Context, cluster.NodeID) cmn.ErrKind { return c.CheckNodeDel })
}

// RunNodeDel runs in reverse order, mirroring shutdown (§4.5).
func RunNodeDel(ctx context.Context, reg *Registry, id cluster.NodeID) (cmn.ErrKind, map[string]cmn.ErrKind) {
	services := reg.Reverse()
	results := make(map[string]cmn.ErrKind, len(services))
	kinds := make([]cmn.ErrKind, 0, len(services))
	for _, s := range services {
		kind := cmn.Success
		if s.Callbacks.NodeDel != nil {
			kind = s.Callbacks.NodeDel(ctx, id)
		}
		results[s.Name] = kind
		kinds = append(kinds, kind)
		if kind.Fatal() {
			break
		}
	}
	return cmn.Aggregate(kinds), results
}

// RunStop drives the stop(nodes_to_stop) phase forward across every
// registered service (§4.5), telling each one which nodes are being
// stopped rather than asking it to stop itself wholesale.
func RunStop(ctx context.Context, reg *Registry, nodes []cluster.NodeID) (cmn.ErrKind, map[string]cmn.ErrKind) {
	services := reg.Forward()
	results := make(map[string]cmn.ErrKind, len(services))
	kinds := make([]cmn.ErrKind, 0, len(services))
	for _, s := range services {
		kind := cmn.Success
		if s.Callbacks.Stop != nil {
			kind = s.Callbacks.Stop(ctx, nodes)
		}
		results[s.Name] = kind
		kinds = append(kinds, kind)
		if kind.Fatal() {
			break
		}
	}
	return cmn.Aggregate(kinds), results
}

func runNodeOp(ctx context.Context, reg *Registry, id cluster.NodeID, pick func(Callbacks) func(context.Context, cluster.NodeID) cmn.ErrKind) (cmn.ErrKind, map[string]cmn.ErrKind) {
	services := reg.Forward()
	results := make(map[string]cmn.ErrKind, len(services))
	kinds := make([]cmn.ErrKind, 0, len(services))
	for _, s := range services {
		cb := pick(s.Callbacks)
		kind := cmn.Success
		if cb != nil {
			kind = cb(ctx, id)
		}
		results[s.Name] = kind
		kinds = append(kinds, kind)
		if kind.Fatal() {
			break
		}
	}
	return cmn.Aggregate(kinds), results
}

func RunDiskAdd(ctx context.Context, reg *Registry, d *cluster.Disk) (cmn.ErrKind, map[string]cmn.ErrKind) {
	return runDiskOp(ctx, reg, d, func(c Callbacks) func(context.Context, *cluster.Disk) cmn.ErrKind { return c.DiskAdd })
}

func RunDiskDel(ctx context.Context, reg *Registry, d *cluster.Disk) (cmn.ErrKind, map[string]cmn.ErrKind) {
	return runDiskOp(ctx, reg, d, func(c Callbacks) func(context.Context, *cluster.Disk) cmn.ErrKind { return c.DiskDel })
}

func runDiskOp(ctx context.Context, reg *Registry, d *cluster.Disk, pick func(Callbacks) func(context.Context, *cluster.Disk) cmn.ErrKind) (cmn.ErrKind, map[string]cmn.ErrKind) {
	services := reg.Forward()
	results := make(map[string]cmn.ErrKind, len(services))
	kinds := make([]cmn.ErrKind, 0, len(services))
	for _, s := range services {
		cb := pick(s.Callbacks)
		kind := cmn.Success
		if cb != nil {
			kind = cb(ctx, d)
		}
		results[s.Name] = kind
		kinds = append(kinds, kind)
		if kind.Fatal() {
			break
		}
	}
	return cmn.Aggregate(kinds), results
}
