package wt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
	"github.com/OznOg/exanodes-admind/internal/msg"
	"github.com/OznOg/exanodes-admind/internal/stats"
)

// maxBcastParallel bounds how many members a single ExecCommand/Barrier/
// Bcast fanout sends to concurrently (grounded on aistore's
// MaxBcastParallel pattern in cluster/map.go).
const maxBcastParallel = 64

// pendingCall tracks one in-flight fan-out: the set of members it is
// still waiting on and the per-member result recorded so far.
type pendingCall struct {
	mu      sync.Mutex
	waiting map[cluster.NodeID]struct{}
	results map[cluster.NodeID]cmn.ErrKind
	done    chan struct{}
	closed  bool
}

func newPendingCall(members []cluster.NodeID) *pendingCall {
	p := &pendingCall{
		waiting: make(map[cluster.NodeID]struct{}, len(members)),
		results: make(map[cluster.NodeID]cmn.ErrKind, len(members)),
		done:    make(chan struct{}),
	}
	for _, m := range members {
		p.waiting[m] = struct{}{}
	}
	return p
}

// record stores a member's result; if every member has now reported,
// the call's done channel is closed exactly once.
func (p *pendingCall) record(from cluster.NodeID, kind cmn.ErrKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.waiting[from]; !ok {
		return // not a member of this call, or already recorded
	}
	p.results[from] = kind
	delete(p.waiting, from)
	if len(p.waiting) == 0 && !p.closed {
		p.closed = true
		close(p.done)
	}
}

func (p *pendingCall) snapshot() map[cluster.NodeID]cmn.ErrKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[cluster.NodeID]cmn.ErrKind, len(p.results))
	for k, v := range p.results {
		out[k] = v
	}
	return out
}

// WorkThread is the fan-out/barrier/broadcast engine (§4.4).
type WorkThread struct {
	sender Sender
	stats  stats.Recorder
	sem    *semaphore.Weighted

	nextCallID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*pendingCall
}

func NewWorkThread(sender Sender) *WorkThread {
	return &WorkThread{
		sender:  sender,
		sem:     semaphore.NewWeighted(maxBcastParallel),
		pending: make(map[uint64]*pendingCall),
	}
}

// WithStats attaches a metrics recorder; nil (the default) disables
// observation entirely.
func (w *WorkThread) WithStats(r stats.Recorder) *WorkThread {
	w.stats = r
	return w
}

// fanout sends payload to every member with no more than
// maxBcastParallel concurrent sends in flight, recording a
// NETWORK_DOWN result for any member whose send failed.
func (w *WorkThread) fanout(ctx context.Context, members []cluster.NodeID, mailbox msg.MailboxID, payload []byte, onFail func(cluster.NodeID)) {
	var wg sync.WaitGroup
	for _, m := range members {
		m := m
		if err := w.sem.Acquire(ctx, 1); err != nil {
			onFail(m)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer w.sem.Release(1)
			if err := w.sender.Send(ctx, m, mailbox, payload); err != nil {
				onFail(m)
			}
		}()
	}
	wg.Wait()
}

func (w *WorkThread) register(members []cluster.NodeID) (uint64, *pendingCall) {
	id := w.nextCallID.Add(1)
	p := newPendingCall(members)
	w.mu.Lock()
	w.pending[id] = p
	w.mu.Unlock()
	return id, p
}

func (w *WorkThread) unregister(id uint64) {
	w.mu.Lock()
	delete(w.pending, id)
	w.mu.Unlock()
}

// ExecCommand sends body to every member over mailbox and blocks until
// every member has replied, the context is cancelled, or a member goes
// down (via NodeDown). It returns the aggregate ErrKind per §4.4's
// precedence rule and the raw per-member results.
func (w *WorkThread) ExecCommand(ctx context.Context, members []cluster.NodeID, mailbox msg.MailboxID, body []byte) (cmn.ErrKind, map[cluster.NodeID]cmn.ErrKind, error) {
	if len(members) == 0 {
		return cmn.NothingToDo, nil, nil
	}
	id, p := w.register(members)
	defer w.unregister(id)

	req := CallRequest{CallID: id, Body: body}
	payload := cmn.MustMarshal(req)
	w.fanout(ctx, members, mailbox, payload, func(m cluster.NodeID) { p.record(m, cmn.NetworkDown) })

	select {
	case <-p.done:
	case <-ctx.Done():
		return cmn.NodeDown, p.snapshot(), ctx.Err()
	}

	results := p.snapshot()
	kinds := make([]cmn.ErrKind, 0, len(results))
	for _, k := range results {
		kinds = append(kinds, k)
	}
	return cmn.Aggregate(kinds), results, nil
}

// Barrier is ExecCommand with the barrier name added to the request:
// every participant must be calling the same named barrier at the same
// ordinal position. Replies do not echo the name, so a participant that
// is at a different barrier is not detected here.
func (w *WorkThread) Barrier(ctx context.Context, name BarrierName, members []cluster.NodeID, mailbox msg.MailboxID, body []byte) (cmn.ErrKind, error) {
	if len(members) == 0 {
		return cmn.NothingToDo, nil
	}
	start := time.Now()
	id, p := w.register(members)
	defer w.unregister(id)

	req := CallRequest{CallID: id, Barrier: name, Body: body}
	payload := cmn.MustMarshal(req)
	w.fanout(ctx, members, mailbox, payload, func(m cluster.NodeID) { p.record(m, cmn.NetworkDown) })

	select {
	case <-p.done:
	case <-ctx.Done():
		return cmn.NodeDown, ctx.Err()
	}

	if w.stats != nil {
		w.stats.ObserveBarrierLatencySeconds(string(name), time.Since(start).Seconds())
	}

	results := p.snapshot()
	kinds := make([]cmn.ErrKind, 0, len(results))
	for _, k := range results {
		kinds = append(kinds, k)
	}
	return cmn.Aggregate(kinds), nil
}

// Bcast is a fire-and-forget, non-barrier broadcast: it does not wait
// for replies (§4.4 distinguishes bcast from exec_command precisely on
// this point).
func (w *WorkThread) Bcast(ctx context.Context, members []cluster.NodeID, mailbox msg.MailboxID, body []byte) error {
	payload := cmn.MustMarshal(CallRequest{Body: body})
	var mu sync.Mutex
	var firstErr error
	w.fanout(ctx, members, mailbox, payload, func(m cluster.NodeID) {
		mu.Lock()
		if firstErr == nil {
			firstErr = cmn.NewErrDesc(cmn.NetworkDown, "bcast send to node %d failed", m)
		}
		mu.Unlock()
	})
	return firstErr
}

// OnReply feeds a decoded CallReply (received on a barrier/RPC
// mailbox) back into the matching pending call.
func (w *WorkThread) OnReply(from cluster.NodeID, reply CallReply) {
	w.mu.Lock()
	p, ok := w.pending[reply.CallID]
	w.mu.Unlock()
	if !ok {
		return
	}
	p.record(from, reply.Kind)
}

// NodeDown marks id as down in every in-flight call awaiting it,
// immediately resolving those that were only waiting on it (§4.4/§5:
// NODE_DOWN cancels outstanding waits instead of hanging forever).
func (w *WorkThread) NodeDown(id cluster.NodeID) {
	w.mu.Lock()
	calls := make([]*pendingCall, 0, len(w.pending))
	for _, p := range w.pending {
		calls = append(calls, p)
	}
	w.mu.Unlock()
	for _, p := range calls {
		p.record(id, cmn.NodeDown)
	}
}
