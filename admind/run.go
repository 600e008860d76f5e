package admind

import (
	"context"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/OznOg/exanodes-admind/cmn"
	"github.com/OznOg/exanodes-admind/internal/evmgr"
	"github.com/OznOg/exanodes-admind/internal/msg"
	"github.com/OznOg/exanodes-admind/internal/sup"
)

// Run starts every background goroutine the daemon needs and blocks
// until one of them returns or ctx is cancelled, mirroring the
// aistore's daemon.Run (ais/daemon.go): one errgroup, first error wins,
// cancellation propagates to every other goroutine.
func (c *CoreContext) Run(ctx context.Context) error {
	c.Dispatcher.SetState(cmn.StateStarting)
	defer c.Dispatcher.SetState(cmn.StateStopped)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := c.Substrate.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := c.Supervisor.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := c.pumpAgreementMailbox(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	for _, mb := range []msg.MailboxID{msg.MailboxBarrierEven, msg.MailboxBarrierOdd} {
		mb := mb
		g.Go(func() error {
			err := c.pumpCallMailbox(gctx, mb)
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		err := c.pumpRecoveryMailbox(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		evmgr.RunCheckUpLoop(gctx, c.Services, checkUpIntervalFor(c.Config), c.isLeader)
		return nil
	})

	c.Dispatcher.SetState(cmn.StateStarted)
	glog.Infof("%s: started", c)

	err := g.Wait()
	glog.Infof("%s: stopped: %v", c, err)
	return err
}

func checkUpIntervalFor(cfg *cmn.Config) time.Duration {
	if d := cfg.Timeout.CplaneOperation.D(); d > 0 {
		return d * 15
	}
	return evmgr.DefaultCheckUpInterval
}

// isLeader reports whether this node currently leads the committed
// membership; used to gate the check-up loop to the leader only
// (§4.3).
func (c *CoreContext) isLeader() bool {
	clique, _, _ := c.Supervisor.Agreement().Membership()
	leader, ok := sup.Leader(clique)
	return ok && leader == c.Cluster.Self()
}
