// Package admind wires every core package (msg, sup, evmgr, wt, svc,
// rec, sb, cmd) into one running daemon: CoreContext holds the wiring,
// Run drives the goroutines, and UDPTransport is the concrete
// msg.Transport used outside of tests. Grounded on aistore's
// daemon.go (ais/daemon.go: one process-wide context assembled at
// startup, one Run loop, explicit goroutine lifecycle via an errgroup).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package admind

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/OznOg/exanodes-admind/cluster"
)

// UDPTransport is the msg.Transport implementation used outside of
// tests: point-to-point sends to each peer's recorded address over one
// shared UDP socket, cluster multicast over the configured group address (cmn.MulticastConfig),
// grounded on aistore's own choice of a single shared listener
// socket per daemon (ais/network.go's http.Server equivalent, adapted
// from HTTP to raw UDP datagrams per §6's wire format).
type UDPTransport struct {
	conn *net.UDPConn

	mu    sync.RWMutex
	peers map[cluster.NodeID]*net.UDPAddr

	mcastAddr *net.UDPAddr
}

func NewUDPTransport(conn *net.UDPConn, mcastAddr *net.UDPAddr) *UDPTransport {
	return &UDPTransport{conn: conn, peers: make(map[cluster.NodeID]*net.UDPAddr), mcastAddr: mcastAddr}
}

// SetPeerAddr records dest's current UDP address, updated whenever the
// cluster configuration or a view change tells us where a node lives.
func (t *UDPTransport) SetPeerAddr(id cluster.NodeID, addr *net.UDPAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[id] = addr
}

func (t *UDPTransport) peerAddr(id cluster.NodeID) (*net.UDPAddr, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	addr, ok := t.peers[id]
	if !ok {
		return nil, fmt.Errorf("admind: no known address for node %d", id)
	}
	return addr, nil
}

func (t *UDPTransport) Send(ctx context.Context, dest cluster.NodeID, raw []byte) error {
	addr, err := t.peerAddr(dest)
	if err != nil {
		return err
	}
	_, err = t.conn.WriteToUDP(raw, addr)
	return err
}

// Broadcast fans out over per-peer unicast sends when dest names
// specific nodes, falling back to the cluster multicast address when
// dest is empty (a true "every node" broadcast).
func (t *UDPTransport) Broadcast(ctx context.Context, dest map[cluster.NodeID]struct{}, raw []byte) error {
	if len(dest) == 0 {
		if t.mcastAddr == nil {
			return fmt.Errorf("admind: no multicast address configured")
		}
		_, err := t.conn.WriteToUDP(raw, t.mcastAddr)
		return err
	}
	var firstErr error
	for id := range dest {
		if err := t.Send(ctx, id, raw); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Recv blocks on the shared socket until a datagram arrives or ctx is
// cancelled. The read runs in its own goroutine and Recv selects on it
// and on ctx, so a cancelled context returns at once. No read deadline
// is set: after a cancel that goroutine stays blocked on the socket
// until the next datagram arrives (which is then dropped) or the
// socket is closed.
func (t *UDPTransport) Recv(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 64*1024)
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, _, err := t.conn.ReadFromUDP(buf)
		done <- result{n: n, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		out := make([]byte, r.n)
		copy(out, buf[:r.n])
		return out, nil
	}
}
