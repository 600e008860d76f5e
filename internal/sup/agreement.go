package sup

import (
	"sync"

	"github.com/OznOg/exanodes-admind/cluster"
)

// Agreement drives one clique through the 3-phase CHANGE→ACCEPT→COMMIT
// membership protocol (§4.2). The coordinator (lowest-id clique member)
// proposes; every member tracks the same state machine so a change of
// coordinator mid-round (because the old one died) never desyncs the
// outcome — membership agreement only completes once every surviving
// clique member has independently reached COMMIT.
type Agreement struct {
	mu sync.Mutex

	self       cluster.NodeID
	generation uint64
	clique     []cluster.NodeID
	state      cluster.ViewState
	accepted   map[cluster.NodeID]struct{}
	committed  map[cluster.NodeID]struct{}

	// seenGeneration is the highest generation this node has observed
	// each peer accept or commit. A coordinator proposing a fresh
	// round consults it so the new generation is always
	// 1 + max over the clique of max(accepted, committed) (§4.2),
	// rather than a counter local to this process that resets to zero
	// across a restart while peers have moved on.
	seenGeneration map[cluster.NodeID]uint64
}

func NewAgreement(self cluster.NodeID) *Agreement {
	return &Agreement{self: self, state: cluster.ViewUnknown, seenGeneration: make(map[cluster.NodeID]uint64)}
}

// ProposeGeneration computes the generation a coordinator should
// propose for a fresh CHANGE over clique: one past the highest
// generation this node has itself reached or has observed any clique
// member accept or commit (§4.2). Exported so the wire-level glue that
// actually originates CHANGE messages (only the coordinator does) can
// pick the same number StartChange will apply locally.
func (a *Agreement) ProposeGeneration(clique []cluster.NodeID) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.proposeGenerationLocked(clique)
}

func (a *Agreement) proposeGenerationLocked(clique []cluster.NodeID) uint64 {
	max := a.generation
	for _, id := range clique {
		if g := a.seenGeneration[id]; g > max {
			max = g
		}
	}
	return max + 1
}

// StartChange begins a new round as coordinator: it proposes the next
// generation via ProposeGeneration and applies it to this node's own
// state immediately, the same way OnChange applies a generation a
// follower learned from the coordinator's wire message. Returns the
// generation chosen so the caller can broadcast it to the rest of the
// clique.
func (a *Agreement) StartChange(clique []cluster.NodeID) uint64 {
	a.mu.Lock()
	gen := a.proposeGenerationLocked(clique)
	a.mu.Unlock()
	a.OnChange(gen, clique)
	return gen
}

// OnChange adopts a generation and clique proposed by the
// coordinator, discarding any in-flight round. Every non-coordinator
// member reaches CHANGE through this call rather than computing its
// own generation (§4.2: followers adopt the coordinator's value).
func (a *Agreement) OnChange(generation uint64, clique []cluster.NodeID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generation = generation
	a.clique = cluster.SortNodeIDs(clique)
	a.state = cluster.ViewChange
	a.accepted = map[cluster.NodeID]struct{}{}
	a.committed = map[cluster.NodeID]struct{}{}
}

// OnAccept records that from has acknowledged the proposed clique for
// the current generation. Once every clique member has accepted, the
// state advances to ACCEPT and the caller should broadcast COMMIT.
func (a *Agreement) OnAccept(generation uint64, from cluster.NodeID) (advanced bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordSeenLocked(from, generation)
	if generation != a.generation || a.state != cluster.ViewChange {
		return false
	}
	a.accepted[from] = struct{}{}
	if a.allPresent(a.accepted) {
		a.state = cluster.ViewAccept
		return true
	}
	return false
}

// OnCommit records that from has committed the current generation.
// Once every clique member has committed, the round is done.
func (a *Agreement) OnCommit(generation uint64, from cluster.NodeID) (done bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordSeenLocked(from, generation)
	if generation != a.generation || a.state != cluster.ViewAccept {
		return false
	}
	a.committed[from] = struct{}{}
	if a.allPresent(a.committed) {
		a.state = cluster.ViewCommit
		return true
	}
	return false
}

func (a *Agreement) recordSeenLocked(from cluster.NodeID, generation uint64) {
	if generation > a.seenGeneration[from] {
		a.seenGeneration[from] = generation
	}
}

func (a *Agreement) allPresent(set map[cluster.NodeID]struct{}) bool {
	for _, id := range a.clique {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// Membership returns the committed clique and the round it belongs to,
// once State()==ViewCommit.
func (a *Agreement) Membership() (clique []cluster.NodeID, generation uint64, state cluster.ViewState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]cluster.NodeID(nil), a.clique...), a.generation, a.state
}

// Leader is the lowest-id member of the committed membership (§4.3):
// distinct from the agreement Coordinator, which only matters during
// the CHANGE/ACCEPT phases.
func Leader(committed []cluster.NodeID) (cluster.NodeID, bool) {
	return Coordinator(committed)
}
