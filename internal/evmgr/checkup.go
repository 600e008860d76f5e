package evmgr

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/OznOg/exanodes-admind/internal/svc"
)

// DefaultCheckUpInterval is how often the leader re-runs CheckUp across
// every registered service between membership changes (§4.3).
const DefaultCheckUpInterval = 30 * time.Second

// RunCheckUpLoop periodically drives svc.PhaseCheckUp until ctx is
// cancelled. isLeader is polled on each tick rather than captured once,
// since leadership can change between ticks without a new
// MembershipChange firing the caller's own restart logic.
func RunCheckUpLoop(ctx context.Context, reg *svc.Registry, interval time.Duration, isLeader func() bool) {
	if interval <= 0 {
		interval = DefaultCheckUpInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if isLeader != nil && !isLeader() {
				continue
			}
			kind, _ := svc.RunPhase(ctx, reg, svc.PhaseCheckUp)
			if !kind.Benign() {
				glog.Warningf("evmgr: check-up pass returned %s", kind)
			}
		}
	}
}
