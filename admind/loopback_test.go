package admind

import (
	"context"
	"sync"

	"github.com/OznOg/exanodes-admind/cluster"
)

// loopbackHub is an in-process stand-in for the UDP network: every
// member's transport shares one hub, and a send or broadcast is just a
// channel push into the recipients' inboxes. Used only by tests to
// exercise CoreContext end to end without a real socket.
type loopbackHub struct {
	mu     sync.Mutex
	inbox  map[cluster.NodeID]chan []byte
	broken map[cluster.NodeID]bool
}

func newLoopbackHub() *loopbackHub {
	return &loopbackHub{inbox: make(map[cluster.NodeID]chan []byte), broken: make(map[cluster.NodeID]bool)}
}

func (h *loopbackHub) join(id cluster.NodeID) *loopbackTransport {
	h.mu.Lock()
	h.inbox[id] = make(chan []byte, 256)
	h.mu.Unlock()
	return &loopbackTransport{self: id, hub: h}
}

// sever makes every send to id silently fail, simulating a down link
// without tearing down the goroutine reading from it.
func (h *loopbackHub) sever(id cluster.NodeID, broken bool) {
	h.mu.Lock()
	h.broken[id] = broken
	h.mu.Unlock()
}

type loopbackTransport struct {
	self cluster.NodeID
	hub  *loopbackHub
}

func (t *loopbackTransport) Send(ctx context.Context, dest cluster.NodeID, raw []byte) error {
	t.hub.mu.Lock()
	ch, ok := t.hub.inbox[dest]
	broken := t.hub.broken[dest] || t.hub.broken[t.self]
	t.hub.mu.Unlock()
	if !ok || broken {
		return nil
	}
	select {
	case ch <- raw:
	default:
	}
	return nil
}

func (t *loopbackTransport) Broadcast(ctx context.Context, dest map[cluster.NodeID]struct{}, raw []byte) error {
	for id := range dest {
		_ = t.Send(ctx, id, raw)
	}
	return nil
}

func (t *loopbackTransport) Recv(ctx context.Context) ([]byte, error) {
	t.hub.mu.Lock()
	ch := t.hub.inbox[t.self]
	t.hub.mu.Unlock()
	select {
	case raw := <-ch:
		return raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
