package msg

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
)

type fakeTransport struct {
	mu   sync.Mutex
	sent []*Envelope
}

func (f *fakeTransport) Send(ctx context.Context, dest cluster.NodeID, raw []byte) error {
	e, err := Decode(raw, 16)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, e)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Broadcast(ctx context.Context, dest map[cluster.NodeID]struct{}, raw []byte) error {
	return nil
}

func (f *fakeTransport) Recv(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestSubstrate() (*Substrate, *fakeTransport) {
	ft := &fakeTransport{}
	reg := NewRegistry()
	var uuid [16]byte
	s := NewSubstrate(ft, reg, cluster.NodeID(1), "self", uuid, 16)
	return s, ft
}

func envelopeFrom(sender cluster.NodeID, seq, incarnation uint16) *Envelope {
	return &Envelope{
		Protocol:    ProtocolTag,
		SenderID:    sender,
		Recipient:   MailboxSup,
		Incarnation: incarnation,
		Sequence:    seq,
		Payload:     []byte("x"),
	}
}

func TestHandleInOrderDelivers(t *testing.T) {
	s, _ := newTestSubstrate()
	ctx := context.Background()

	s.handle(ctx, envelopeFrom(2, 1, 1))

	box, err := s.registry.Mailbox(MailboxSup)
	require.NoError(t, err)
	select {
	case <-box.ch:
	default:
		t.Fatal("expected envelope delivered to mailbox")
	}
}

func TestHandleDuplicateNotRedelivered(t *testing.T) {
	s, _ := newTestSubstrate()
	ctx := context.Background()

	s.handle(ctx, envelopeFrom(2, 1, 1))
	box, err := s.registry.Mailbox(MailboxSup)
	require.NoError(t, err)
	<-box.ch

	s.handle(ctx, envelopeFrom(2, 1, 1)) // duplicate of already-delivered seq
	select {
	case <-box.ch:
		t.Fatal("duplicate should not be redelivered")
	default:
	}
}

func TestHandleGapRequestsRetransmitOnce(t *testing.T) {
	s, ft := newTestSubstrate()
	ctx := context.Background()

	s.handle(ctx, envelopeFrom(2, 1, 1)) // establishes nextSeq=2
	box, err := s.registry.Mailbox(MailboxSup)
	require.NoError(t, err)
	<-box.ch

	s.handle(ctx, envelopeFrom(2, 5, 1)) // gap: expected 2, got 5
	s.handle(ctx, envelopeFrom(2, 6, 1)) // same gap, within coalesce window

	require.Equal(t, 1, ft.sentCount(), "retransmit request should coalesce within the window")
	require.True(t, ft.sent[0].IsRetransmit())

	var req RetransmitRequest
	require.NoError(t, cmn.Unmarshal(ft.sent[0].Payload, &req))
	require.Equal(t, uint16(2), req.Seq)
}
