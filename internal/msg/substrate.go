package msg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
	"github.com/OznOg/exanodes-admind/internal/stats"
)

// Transport is the network dependency the substrate drives. A real
// implementation carries raw bytes over UDP multicast plus a
// point-to-point fallback; tests supply an in-memory fake.
type Transport interface {
	Send(ctx context.Context, dest cluster.NodeID, raw []byte) error
	Broadcast(ctx context.Context, dest map[cluster.NodeID]struct{}, raw []byte) error
	Recv(ctx context.Context) ([]byte, error)
}

const (
	retransmitCoalesceWindow = 400 * time.Millisecond
	backoffMax               = 80 * time.Millisecond
	backoffMin               = 0
	backoffIncreaseFactor    = 2
)

// peerState tracks per-sender sequencing for duplicate suppression and
// loss detection, and the adaptive retransmit backoff for that peer.
type peerState struct {
	incarnation uint16
	nextSeq     uint16
	seen        bool

	backoff         time.Duration
	lastRequestedAt map[uint16]time.Time
}

// Substrate is the messaging core (§4.1): it multiplexes one wire
// channel into per-component mailboxes, assigns and checks per-sender
// sequence numbers, coalesces retransmit requests, and keeps each
// peer's backoff bounded to [0, 80ms].
type Substrate struct {
	transport   Transport
	registry    *Registry
	selfID      cluster.NodeID
	selfName    string
	clusterUUID [16]byte
	nodeCount   int

	mu          sync.Mutex
	incarnation uint16
	outSeq      uint16
	peers       map[cluster.NodeID]*peerState
	fenced      cmn.StringSet

	stats stats.Recorder

	onSpecial func(*Envelope)
}

// WithStats attaches a metrics recorder; nil (the default) disables
// observation entirely.
func (s *Substrate) WithStats(r stats.Recorder) *Substrate {
	s.stats = r
	return s
}

// OnSpecial registers a callback invoked for every out-of-band special
// envelope (currently just pings) the receive loop decodes. Special
// envelopes are never sequence-checked or delivered to a mailbox
// (§4.1), so this is the only way a caller observes them — the
// supervisor uses it to record per-peer liveness.
func (s *Substrate) OnSpecial(fn func(*Envelope)) {
	s.onSpecial = fn
}

func NewSubstrate(t Transport, reg *Registry, selfID cluster.NodeID, selfName string, clusterUUID [16]byte, nodeCount int) *Substrate {
	return &Substrate{
		transport:   t,
		registry:    reg,
		selfID:      selfID,
		selfName:    selfName,
		clusterUUID: clusterUUID,
		nodeCount:   nodeCount,
		incarnation: 1,
		peers:       make(map[cluster.NodeID]*peerState),
		fenced:      cmn.StringSet{},
	}
}

// Fence stops delivering traffic from id (§4.1: a fenced node's
// messages are dropped, not queued, until Unfence).
func (s *Substrate) Fence(id cluster.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fenced.Add(fenceKey(id))
}

func (s *Substrate) Unfence(id cluster.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fenced, fenceKey(id))
}

func (s *Substrate) isFenced(id cluster.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fenced.Contains(fenceKey(id))
}

func fenceKey(id cluster.NodeID) string {
	return fmt.Sprintf("fence:%d", id)
}

// Send delivers payload to a single recipient mailbox on a single
// remote node, consuming the next outgoing sequence number.
func (s *Substrate) Send(ctx context.Context, dest cluster.NodeID, mailbox MailboxID, payload []byte) error {
	e := s.nextEnvelope(mailbox, payload)
	raw, err := Encode(e, s.nodeCount)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, dest, raw)
}

// Broadcast delivers payload to the same mailbox on every node in dest.
func (s *Substrate) Broadcast(ctx context.Context, dest map[cluster.NodeID]struct{}, mailbox MailboxID, payload []byte) error {
	e := s.nextEnvelope(mailbox, payload)
	e.DestNodes = dest
	raw, err := Encode(e, s.nodeCount)
	if err != nil {
		return err
	}
	return s.transport.Broadcast(ctx, dest, raw)
}

func (s *Substrate) nextEnvelope(mailbox MailboxID, payload []byte) *Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outSeq++
	return &Envelope{
		Protocol:    ProtocolTag,
		ClusterUUID: s.clusterUUID,
		SenderID:    s.selfID,
		SenderName:  s.selfName,
		Recipient:   mailbox,
		Incarnation: s.incarnation,
		Sequence:    s.outSeq,
		Payload:     payload,
	}
}

// Ping sends an out-of-band special message carrying the sender's next
// sequence number and its current nodes_seen set, per §4.1/§4.2: pings
// are not themselves sequence-checked so that a missed ping never
// triggers a spurious retransmit storm.
func (s *Substrate) Ping(ctx context.Context, dest cluster.NodeID, seen []cluster.NodeID) error {
	s.mu.Lock()
	seq := s.outSeq + 1
	s.mu.Unlock()
	e := &Envelope{
		Protocol:    ProtocolTag,
		ClusterUUID: s.clusterUUID,
		SenderID:    s.selfID,
		SenderName:  s.selfName,
		Recipient:   MailboxSup,
		Flags:       FlagSpecial,
		Incarnation: s.incarnation,
		Payload:     cmn.MustMarshal(PingPayload{Type: SpecialPing, Seq: seq, Seen: seen}),
	}
	raw, err := Encode(e, s.nodeCount)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, dest, raw)
}

// Run drains the transport until ctx is cancelled, decoding and
// sequencing every inbound envelope before fanning it into its
// recipient mailbox.
func (s *Substrate) Run(ctx context.Context) error {
	for {
		raw, err := s.transport.Recv(ctx)
		if err != nil {
			return err
		}
		e, err := Decode(raw, s.nodeCount)
		if err != nil {
			glog.Warningf("msg: dropping undecodable message: %v", err)
			continue
		}
		s.handle(ctx, e)
	}
}

func (s *Substrate) handle(ctx context.Context, e *Envelope) {
	if e.ClusterUUID != s.clusterUUID {
		return
	}
	if s.isFenced(e.SenderID) {
		return
	}
	if e.IsSpecial() {
		if s.onSpecial != nil {
			s.onSpecial(e)
		}
		return
	}
	if e.IsRetransmit() {
		s.onRetransmitRequest(ctx, e)
		return
	}

	s.mu.Lock()
	ps, ok := s.peers[e.SenderID]
	if !ok || ps.incarnation != e.Incarnation {
		ps = &peerState{incarnation: e.Incarnation, nextSeq: e.Sequence, lastRequestedAt: map[uint16]time.Time{}}
		s.peers[e.SenderID] = ps
	}

	switch {
	case e.Sequence == ps.nextSeq:
		ps.nextSeq++
		ps.backoff = decreaseBackoff(ps.backoff)
		s.mu.Unlock()
		s.registry.deliver(e)

	case seqBefore(e.Sequence, ps.nextSeq):
		// duplicate or stale retransmit reply, already delivered
		s.mu.Unlock()

	default:
		// gap: ask the sender to retransmit, coalesced so a burst of
		// out-of-order arrivals only issues one request per missing
		// sequence within the coalesce window.
		missing := ps.nextSeq
		last, asked := ps.lastRequestedAt[missing]
		shouldAsk := !asked || time.Since(last) > retransmitCoalesceWindow
		if shouldAsk {
			ps.lastRequestedAt[missing] = time.Now()
			ps.backoff = increaseBackoff(ps.backoff)
		}
		backoff := ps.backoff
		s.mu.Unlock()
		if shouldAsk {
			if s.stats != nil {
				s.stats.IncRetransmitRequested()
			}
			s.requestRetransmit(ctx, e.SenderID, missing, backoff)
		} else if s.stats != nil {
			s.stats.IncRetransmitCoalesced()
		}
	}
}

func seqBefore(a, b uint16) bool {
	return int16(a-b) < 0
}

func increaseBackoff(cur time.Duration) time.Duration {
	next := cur*backoffIncreaseFactor + time.Millisecond
	if next > backoffMax {
		return backoffMax
	}
	return next
}

func decreaseBackoff(cur time.Duration) time.Duration {
	next := cur - cur/4
	if next < backoffMin {
		return backoffMin
	}
	return next
}

func (s *Substrate) requestRetransmit(ctx context.Context, from cluster.NodeID, seq uint16, backoff time.Duration) {
	if backoff > 0 {
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
	e := s.nextEnvelope(MailboxSup, cmn.MustMarshal(RetransmitRequest{Seq: seq}))
	e.Flags = FlagRetransmit
	raw, err := Encode(e, s.nodeCount)
	if err != nil {
		return
	}
	_ = s.transport.Send(ctx, from, raw)
}

func (s *Substrate) onRetransmitRequest(ctx context.Context, e *Envelope) {
	var req RetransmitRequest
	if err := cmn.Unmarshal(e.Payload, &req); err != nil {
		return
	}
	glog.V(2).Infof("msg: retransmit requested by node %d for seq %d (not resent: history not retained by substrate)", e.SenderID, req.Seq)
}
