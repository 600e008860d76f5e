// Package sup implements the membership supervisor (§4.2): the ping
// loop, clique computation, and the 3-phase CHANGE→ACCEPT→COMMIT
// membership-agreement protocol, grounded on aistore's proxy
// election and metasync loops (ais/vote.go, ais/metasync.go).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package sup

import (
	"sort"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
)

// Candidate is one node's local view of who it can currently reach,
// the raw input to clique computation.
type Candidate struct {
	ID   cluster.NodeID
	Seen map[cluster.NodeID]struct{}
}

// ComputeClique runs the greedy deterministic clique algorithm: sort
// candidates by ascending reachable-set size, tie-broken by ascending
// node-id, then admit each candidate in turn only if it and every
// already-admitted member have mutually seen each other. self must end
// up in the result — a supervisor that cannot see itself is a bug
// elsewhere, not a degraded membership, so this is an assertion rather
// than a returned error.
func ComputeClique(self cluster.NodeID, candidates []Candidate) []cluster.NodeID {
	sorted := append([]Candidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i].Seen) != len(sorted[j].Seen) {
			return len(sorted[i].Seen) < len(sorted[j].Seen)
		}
		return sorted[i].ID < sorted[j].ID
	})

	byID := make(map[cluster.NodeID]Candidate, len(sorted))
	for _, c := range sorted {
		byID[c.ID] = c
	}

	var admitted []Candidate
	for _, c := range sorted {
		if mutuallyVisible(c, admitted) {
			admitted = append(admitted, c)
		}
	}

	out := make([]cluster.NodeID, 0, len(admitted))
	foundSelf := false
	for _, c := range admitted {
		out = append(out, c.ID)
		if c.ID == self {
			foundSelf = true
		}
	}
	cmn.Assertf(foundSelf, "sup: clique computation dropped self node %d", self)

	return cluster.SortNodeIDs(out)
}

func mutuallyVisible(c Candidate, admitted []Candidate) bool {
	for _, m := range admitted {
		if _, ok := c.Seen[m.ID]; !ok {
			return false
		}
		if _, ok := m.Seen[c.ID]; !ok {
			return false
		}
	}
	return true
}

// Coordinator returns the clique's coordinating member: the
// lowest-id element (§4.2).
func Coordinator(clique []cluster.NodeID) (cluster.NodeID, bool) {
	if len(clique) == 0 {
		return 0, false
	}
	sorted := cluster.SortNodeIDs(clique)
	return sorted[0], true
}
