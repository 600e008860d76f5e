package msg

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OznOg/exanodes-admind/cluster"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := &Envelope{
		Protocol:    ProtocolTag,
		SenderID:    cluster.NodeID(3),
		SenderName:  "node3",
		Recipient:   MailboxSup,
		Flags:       FlagRetransmit,
		DestNodes:   map[cluster.NodeID]struct{}{1: {}, 4: {}, 9: {}},
		Incarnation: 2,
		Sequence:    42,
		Payload:     []byte("hello"),
	}
	copy(e.ClusterUUID[:], []byte("0123456789abcdef"))

	raw, err := Encode(e, 16)
	require.NoError(t, err)

	got, err := Decode(raw, 16)
	require.NoError(t, err)

	require.Equal(t, e.Protocol, got.Protocol)
	require.Equal(t, e.ClusterUUID, got.ClusterUUID)
	require.Equal(t, e.SenderID, got.SenderID)
	require.Equal(t, e.SenderName, got.SenderName)
	require.Equal(t, e.Recipient, got.Recipient)
	require.Equal(t, e.Flags, got.Flags)
	require.Equal(t, e.DestNodes, got.DestNodes)
	require.Equal(t, e.Incarnation, got.Incarnation)
	require.Equal(t, e.Sequence, got.Sequence)
	require.Equal(t, e.Payload, got.Payload)
}

func TestEncodeRejectsOversizePayload(t *testing.T) {
	e := &Envelope{Payload: make([]byte, MaxPayload+1)}
	_, err := Encode(e, 4)
	require.Error(t, err)
}

func TestEncodeRejectsOversizeSenderName(t *testing.T) {
	e := &Envelope{SenderName: string(make([]byte, senderNameLen))}
	_, err := Encode(e, 4)
	require.Error(t, err)
}

func TestDecodeRejectsShortMessage(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3}, 4)
	require.Error(t, err)
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	e := &Envelope{Protocol: ProtocolTag, Payload: []byte("abcd")}
	raw, err := Encode(e, 4)
	require.NoError(t, err)
	_, err = Decode(raw[:len(raw)-2], 4)
	require.Error(t, err)
}
