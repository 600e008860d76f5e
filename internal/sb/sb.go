// Package sb implements per-group superblock-version synchronisation
// (§4.7): a (committed, prepared, in-flight) version triplet per group,
// prepare/commit driven through named barriers and gated by the
// administrable-majority check before any write, plus a local recover
// that rolls an unfinished prepare back. Grounded on the
// aistore's metasync version-bump-then-broadcast pattern
// (ais/metasync.go's metaSyncer, which tracks a monotonically
// increasing per-object version and only distributes it once a
// majority of targets ack the previous round).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package sb

import (
	"context"
	"sync"

	"github.com/golang/glog"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
	"github.com/OznOg/exanodes-admind/internal/msg"
	"github.com/OznOg/exanodes-admind/internal/wt"
)

const (
	BarrierPrepare wt.BarrierName = "prepare sb"
	BarrierWrite   wt.BarrierName = "write sb"
)

// Triplet is one group's superblock version state (§4.7).
type Triplet struct {
	Committed uint64
	Prepared  uint64
	InFlight  uint64
}

// Manager owns every group's Triplet and drives prepare/commit through
// the work-thread barrier primitive.
type Manager struct {
	wt *wt.WorkThread

	mu     sync.Mutex
	groups map[string]*Triplet
}

func NewManager(w *wt.WorkThread) *Manager {
	return &Manager{wt: w, groups: make(map[string]*Triplet)}
}

func (m *Manager) triplet(groupUUID string) *Triplet {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.groups[groupUUID]
	if !ok {
		t = &Triplet{}
		m.groups[groupUUID] = t
	}
	return t
}

// Snapshot returns a copy of groupUUID's current triplet.
func (m *Manager) Snapshot(groupUUID string) Triplet {
	t := m.triplet(groupUUID)
	m.mu.Lock()
	defer m.mu.Unlock()
	return *t
}

// Prepare advances in-flight to prepared+1 and runs the "prepare sb"
// barrier across members. It refuses to touch any state when the group
// is not administrable (§4.7: a write never proceeds without a
// majority of disks writable); GROUP_NOT_ADMINISTRABLE is returned as a
// non-fatal result kind with a nil error (the kind is not Benign()).
func (m *Manager) Prepare(ctx context.Context, group *cluster.Group, members []cluster.NodeID, writable func(*cluster.Disk) bool) (cmn.ErrKind, error) {
	if !group.Administrable(writable) {
		glog.V(2).Infof("sb: group %s not administrable, refusing prepare", group.UUID)
		return cmn.GroupNotAdministrable, nil
	}

	t := m.triplet(group.UUID)
	m.mu.Lock()
	t.InFlight = t.Prepared + 1
	inFlight := t.InFlight
	m.mu.Unlock()

	kind, err := m.wt.Barrier(ctx, BarrierPrepare, members, msg.MailboxSup, cmn.MustMarshal(inFlight))
	if err != nil {
		return kind, err
	}
	if kind.Benign() {
		m.mu.Lock()
		t.Prepared = inFlight
		m.mu.Unlock()
	}
	return kind, nil
}

// Commit runs the "write sb" barrier and, on success, advances
// committed to the currently prepared version.
func (m *Manager) Commit(ctx context.Context, group *cluster.Group, members []cluster.NodeID, writable func(*cluster.Disk) bool) (cmn.ErrKind, error) {
	if !group.Administrable(writable) {
		return cmn.GroupNotAdministrable, nil
	}

	t := m.triplet(group.UUID)
	m.mu.Lock()
	prepared := t.Prepared
	m.mu.Unlock()

	kind, err := m.wt.Barrier(ctx, BarrierWrite, members, msg.MailboxSup, cmn.MustMarshal(prepared))
	if err != nil {
		return kind, err
	}
	if kind.Benign() {
		m.mu.Lock()
		t.Committed = prepared
		t.InFlight = 0
		m.mu.Unlock()
	}
	return kind, nil
}

// SyncSnapshot returns groupUUID's triplet packed as msgpack, for the
// full resync the leader pushes to a rejoining node (as opposed to the single
// uint64 JSON body the per-step prepare/commit barriers carry).
func (m *Manager) SyncSnapshot(groupUUID string) []byte {
	t := m.Snapshot(groupUUID)
	return t.EncodeMsg()
}

// ApplySyncSnapshot overwrites groupUUID's local triplet with a
// full-resync payload received from a peer.
func (m *Manager) ApplySyncSnapshot(groupUUID string, payload []byte) error {
	t, err := DecodeMsg(payload)
	if err != nil {
		return err
	}
	target := m.triplet(groupUUID)
	m.mu.Lock()
	*target = t
	m.mu.Unlock()
	return nil
}

// Recover resolves a restart-time triplet: a prepare that never
// reached commit rolls back to the last committed version rather than
// assuming the in-flight write landed.
func (m *Manager) Recover(groupUUID string) Triplet {
	t := m.triplet(groupUUID)
	m.mu.Lock()
	defer m.mu.Unlock()
	t.Prepared = t.Committed
	t.InFlight = 0
	return *t
}
