package sb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OznOg/exanodes-admind/internal/wt"
)

func TestTripletEncodeDecodeRoundTrip(t *testing.T) {
	in := Triplet{Committed: 7, Prepared: 8, InFlight: 9}
	out, err := DecodeMsg(in.EncodeMsg())
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestApplySyncSnapshotOverwritesLocalTriplet(t *testing.T) {
	w := wt.NewWorkThread(fakeSender{})
	m := NewManager(w)
	t2 := m.triplet("g1")
	t2.Committed = 1

	payload := Triplet{Committed: 9, Prepared: 9, InFlight: 0}.EncodeMsg()
	require.NoError(t, m.ApplySyncSnapshot("g1", payload))

	snap := m.Snapshot("g1")
	require.Equal(t, uint64(9), snap.Committed)
	require.Equal(t, uint64(9), snap.Prepared)
}
