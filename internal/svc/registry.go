// Package svc implements the service registry and lifecycle-callback
// framework (§4.5): each recovery-participating service registers a
// fixed callback table, and the registry runs those callbacks in
// registration order for recovery-up phases and in reverse order for
// shutdown/nodedel, grounded on aistore's xaction registry pattern
// (xaction/xreg) generalized to a named, ordered callback table instead
// of ad hoc job types.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package svc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
)

// Callbacks is the full per-service lifecycle table (§4.5). A service
// that has nothing to do for a given phase leaves the field nil; the
// registry treats a nil callback as an implicit SUCCESS.
type Callbacks struct {
	Init     func(ctx context.Context) cmn.ErrKind
	Recover  func(ctx context.Context) cmn.ErrKind
	Resume   func(ctx context.Context) cmn.ErrKind
	Suspend  func(ctx context.Context) cmn.ErrKind
	// Stop receives the node set a leader-driven stop(nodes_to_stop)
	// targets (§4.5); it is not a uniform zero-arg phase, so it runs
	// through RunStop rather than Phase.callback/RunPhase.
	Stop     func(ctx context.Context, nodes []cluster.NodeID) cmn.ErrKind
	Shutdown func(ctx context.Context) cmn.ErrKind
	CheckUp  func(ctx context.Context) cmn.ErrKind

	NodeAdd       func(ctx context.Context, id cluster.NodeID) cmn.ErrKind
	NodeAddCommit func(ctx context.Context, id cluster.NodeID) cmn.ErrKind
	NodeDel       func(ctx context.Context, id cluster.NodeID) cmn.ErrKind
	CheckNodeDel  func(ctx context.Context, id cluster.NodeID) cmn.ErrKind

	DiskAdd func(ctx context.Context, d *cluster.Disk) cmn.ErrKind
	DiskDel func(ctx context.Context, d *cluster.Disk) cmn.ErrKind
}

// Service is one registered recovery participant. Order fixes its
// position in the forward (recovery-up) pipeline; Shutdown/NodeDel run
// the same services in the reverse order (§4.5).
type Service struct {
	Name      string
	Order     int
	Callbacks Callbacks
}

// Registry holds every registered service, keyed by name to reject
// accidental duplicate registration at startup.
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]*Service
	services []*Service
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Service)}
}

func (r *Registry) Register(s *Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[s.Name]; exists {
		return fmt.Errorf("svc: service %q already registered", s.Name)
	}
	r.byName[s.Name] = s
	r.services = append(r.services, s)
	sort.SliceStable(r.services, func(i, j int) bool { return r.services[i].Order < r.services[j].Order })
	return nil
}

// Forward returns every registered service ascending by Order — the
// order recovery-up phases (init/recover/resume) run in.
func (r *Registry) Forward() []*Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Service(nil), r.services...)
}

// Reverse returns every registered service descending by Order — the
// order shutdown and nodedel run in.
func (r *Registry) Reverse() []*Service {
	fwd := r.Forward()
	out := make([]*Service, len(fwd))
	for i, s := range fwd {
		out[len(fwd)-1-i] = s
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}
