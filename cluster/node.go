// Package cluster implements the core data model (§3): nodes, views,
// disk groups, disks, volumes, and exports, each keyed by a stable
// identity rather than the original's embedded-pointer chains (§9
// "pointer graphs become ownership + id").
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cluster

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
)

// NodeID is the small integer node identifier, unique within the
// cluster (§3).
type NodeID uint32

// ViewState is a node's local view-agreement phase (§3, §4.2).
type ViewState int

const (
	ViewUnknown ViewState = iota
	ViewChange
	ViewAccept
	ViewCommit
)

func (s ViewState) String() string {
	switch s {
	case ViewChange:
		return "CHANGE"
	case ViewAccept:
		return "ACCEPT"
	case ViewCommit:
		return "COMMIT"
	default:
		return "UNKNOWN"
	}
}

// View is a node's local knowledge of the membership-agreement
// protocol (§3).
type View struct {
	State      ViewState
	NodesSeen  map[NodeID]struct{} // reachable in the last timeout window
	Clique     []NodeID            // chosen coherent subset, ascending
	Coord      NodeID              // zero-element of Clique
	Accepted   uint64
	Committed  uint64
}

func NewView() *View {
	return &View{State: ViewUnknown, NodesSeen: make(map[NodeID]struct{})}
}

func (v *View) Clone() *View {
	cl := &View{
		State:     v.State,
		Coord:     v.Coord,
		Accepted:  v.Accepted,
		Committed: v.Committed,
	}
	cl.NodesSeen = make(map[NodeID]struct{}, len(v.NodesSeen))
	for id := range v.NodesSeen {
		cl.NodesSeen[id] = struct{}{}
	}
	cl.Clique = append([]NodeID(nil), v.Clique...)
	return cl
}

func (v *View) SeesAll(ids []NodeID) bool {
	for _, id := range ids {
		if _, ok := v.NodesSeen[id]; !ok {
			return false
		}
	}
	return true
}

// Node is a cluster member: identity, incarnation, view, and liveness
// bookkeeping (§3).
type Node struct {
	ID          NodeID
	Name        string
	Incarnation uint16 // nonzero, increases on each local restart
	View        *View
	lastSeen    time.Time
	fenced      bool

	mu sync.RWMutex
}

func NewNode(id NodeID, name string, incarnation uint16) *Node {
	return &Node{
		ID:          id,
		Name:        name,
		Incarnation: incarnation,
		View:        NewView(),
		lastSeen:    time.Now(),
	}
}

func (n *Node) String() string { return fmt.Sprintf("n[%d:%s]", n.ID, n.Name) }

// Digest is a stable hash of the node identity, used for HRW-style
// deterministic selection (grounded on cluster.Snode.Digest in the
// aistore, cluster/map.go).
func (n *Node) Digest() uint64 {
	return xxhash.ChecksumString64S(fmt.Sprintf("%d:%s", n.ID, n.Name), 0)
}

func (n *Node) Touch() {
	n.mu.Lock()
	n.lastSeen = time.Now()
	n.mu.Unlock()
}

func (n *Node) Age() time.Duration {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return time.Since(n.lastSeen)
}

// SetSeen records the nodes_seen set this node last reported in its
// own ping payload (§4.2): the raw material a peer's clique
// computation needs to judge mutual visibility against, as opposed to
// assuming every candidate shares the observer's own view.
func (n *Node) SetSeen(ids []NodeID) {
	seen := make(map[NodeID]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	n.mu.Lock()
	n.View.NodesSeen = seen
	n.mu.Unlock()
}

// Seen returns a copy of the nodes_seen set last reported by this
// node, or an empty set if none has been reported yet.
func (n *Node) Seen() map[NodeID]struct{} {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[NodeID]struct{}, len(n.View.NodesSeen))
	for id := range n.View.NodesSeen {
		out[id] = struct{}{}
	}
	return out
}

// Fence silences all messages from this node until Unfence (§4.1).
func (n *Node) Fence() {
	n.mu.Lock()
	n.fenced = true
	n.mu.Unlock()
}

func (n *Node) Unfence() {
	n.mu.Lock()
	n.fenced = false
	n.mu.Unlock()
}

func (n *Node) Fenced() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fenced
}

// SortNodeIDs returns a freshly-sorted ascending copy, the
// deterministic ordering every node needs to reach the same clique
// and barrier aggregation independently (§4.2).
func SortNodeIDs(ids []NodeID) []NodeID {
	out := append([]NodeID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
