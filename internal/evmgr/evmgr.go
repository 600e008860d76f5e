// Package evmgr implements the event manager (§4.3): it turns a newly
// committed membership into the up/going_up/going_down node sets,
// elects the leader (lowest-id member of the committed clique), and
// schedules check-up and recovery work. Grounded on aistore's
// proxy-election + metasync-notify loop (ais/vote.go), generalized
// from "who is primary proxy" to "who leads this round's recovery".
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package evmgr

import (
	"sync"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/internal/sup"
)

// MembershipChange is the computed delta handed to the recovery driver
// and service framework on every committed membership round.
type MembershipChange struct {
	Up        []cluster.NodeID // the new committed membership
	GoingUp   []cluster.NodeID // present now, absent before
	GoingDown []cluster.NodeID // present before, absent now
	Leader    cluster.NodeID
	IsLeader  bool
}

// EventManager tracks the last committed membership seen so each new
// round can be diffed into going_up/going_down.
type EventManager struct {
	self cluster.NodeID

	mu   sync.Mutex
	last map[cluster.NodeID]struct{}

	onChange func(MembershipChange)
}

func NewEventManager(self cluster.NodeID) *EventManager {
	return &EventManager{self: self, last: map[cluster.NodeID]struct{}{}}
}

// OnChange registers the callback invoked by Apply with every computed
// membership change.
func (e *EventManager) OnChange(fn func(MembershipChange)) {
	e.onChange = fn
}

// Apply is called once a membership round reaches COMMIT. It computes
// the up/going_up/going_down sets relative to the previously applied
// round and elects the leader.
func (e *EventManager) Apply(committed []cluster.NodeID) MembershipChange {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur := make(map[cluster.NodeID]struct{}, len(committed))
	for _, id := range committed {
		cur[id] = struct{}{}
	}

	var goingUp, goingDown []cluster.NodeID
	for id := range cur {
		if _, existed := e.last[id]; !existed {
			goingUp = append(goingUp, id)
		}
	}
	for id := range e.last {
		if _, still := cur[id]; !still {
			goingDown = append(goingDown, id)
		}
	}
	e.last = cur

	leader, ok := sup.Leader(committed)
	change := MembershipChange{
		Up:        cluster.SortNodeIDs(committed),
		GoingUp:   cluster.SortNodeIDs(goingUp),
		GoingDown: cluster.SortNodeIDs(goingDown),
		Leader:    leader,
		IsLeader:  ok && leader == e.self,
	}
	if e.onChange != nil {
		e.onChange(change)
	}
	return change
}
