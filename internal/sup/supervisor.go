package sup

import (
	"context"
	"time"

	"github.com/golang/glog"
	uatomic "go.uber.org/atomic"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
)

const (
	DefaultPingInterval = time.Second
	DefaultTimeout      = 5 * time.Second
)

// Pinger is the substrate dependency the supervisor drives its ping
// loop through. seen is this node's own current nodes_seen set,
// piggybacked on every ping so the destination can judge mutual
// visibility against it (§4.2).
type Pinger interface {
	Ping(ctx context.Context, dest cluster.NodeID, seen []cluster.NodeID) error
}

// Supervisor runs the ping loop, maintains each node's "seen" view,
// recomputes the clique whenever the view changes, and holds the
// 3-phase Agreement state machine, which the admind wiring advances as
// CHANGE/ACCEPT/COMMIT messages arrive (§4.2).
type Supervisor struct {
	self         cluster.NodeID
	cl           *cluster.Cluster
	pinger       Pinger
	agreement    *Agreement
	pingInterval time.Duration
	timeout      time.Duration

	lastProgress uatomic.Int64 // unix nanos, updated each successful loop pass

	onCliqueChange func(clique []cluster.NodeID)
}

func NewSupervisor(self cluster.NodeID, cl *cluster.Cluster, pinger Pinger, cfg cmn.MembershipConfig) *Supervisor {
	s := &Supervisor{
		self:         self,
		cl:           cl,
		pinger:       pinger,
		agreement:    NewAgreement(self),
		pingInterval: cfg.PingPeriod.D(),
		timeout:      cfg.PingTimeout.D(),
	}
	if s.pingInterval == 0 {
		s.pingInterval = DefaultPingInterval
	}
	if s.timeout == 0 {
		s.timeout = DefaultTimeout
	}
	s.lastProgress.Store(timeNowUnixNano())
	return s
}

// OnCliqueChange registers the callback invoked (from the ping loop
// goroutine) whenever a newly computed clique differs from the one
// currently under agreement.
func (s *Supervisor) OnCliqueChange(fn func(clique []cluster.NodeID)) {
	s.onCliqueChange = fn
}

func (s *Supervisor) Agreement() *Agreement { return s.agreement }

// Run drives the ping loop until ctx is cancelled. Each pass pings
// every known node, recomputes the clique from current liveness, and
// starts a new agreement round if the clique changed.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	watchdog := time.NewTicker(s.timeout / 2)
	defer watchdog.Stop()

	var lastClique []cluster.NodeID

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-watchdog.C:
			if s.stalled() {
				glog.Fatalf("sup: membership loop stalled for longer than half the timeout (%s); aborting process per byzantine watchdog", s.timeout)
			}

		case <-ticker.C:
			s.pingAll(ctx)
			clique := s.computeClique()
			if !sameClique(clique, lastClique) {
				lastClique = clique
				// Starting the agreement round itself is the
				// coordinator's job, not every node's (§4.2); the
				// callback decides whether that's this node.
				if s.onCliqueChange != nil {
					s.onCliqueChange(clique)
				}
			}
			s.lastProgress.Store(timeNowUnixNano())
		}
	}
}

func (s *Supervisor) stalled() bool {
	elapsed := time.Duration(timeNowUnixNano()-s.lastProgress.Load()) * time.Nanosecond
	return elapsed > s.timeout/2
}

func (s *Supervisor) pingAll(ctx context.Context) {
	seen := s.cl.ReachableNodeIDs(s.timeout)
	for _, id := range s.cl.KnownNodeIDs() {
		if id == s.self {
			continue
		}
		if err := s.pinger.Ping(ctx, id, seen); err != nil {
			glog.V(3).Infof("sup: ping to node %d failed: %v", id, err)
		}
	}
}

// computeClique builds this node's candidate view from current
// cluster liveness. self's candidate uses its own authoritative
// nodes_seen (ReachableNodeIDs); every other candidate uses the
// nodes_seen set that peer last reported over the wire (§3, §4.2), so
// an asymmetric partition (peer A can't hear peer B) shows up as a
// genuine mutual-visibility failure between A and B instead of being
// masked by every candidate sharing this node's own view.
func (s *Supervisor) computeClique() []cluster.NodeID {
	live := s.cl.ReachableNodeIDs(s.timeout)
	liveSet := make(map[cluster.NodeID]struct{}, len(live))
	for _, id := range live {
		liveSet[id] = struct{}{}
	}
	candidates := make([]Candidate, 0, len(live))
	for _, id := range live {
		seen := liveSet
		if id != s.self {
			if n := s.cl.Node(id); n != nil {
				seen = n.Seen()
			} else {
				seen = map[cluster.NodeID]struct{}{}
			}
		}
		candidates = append(candidates, Candidate{ID: id, Seen: seen})
	}
	return ComputeClique(s.self, candidates)
}

func sameClique(a, b []cluster.NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func timeNowUnixNano() int64 { return time.Now().UnixNano() }
