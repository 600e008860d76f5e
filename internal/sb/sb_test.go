package sb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
	"github.com/OznOg/exanodes-admind/internal/msg"
	"github.com/OznOg/exanodes-admind/internal/wt"
)

type fakeSender struct{}

func (fakeSender) Send(ctx context.Context, dest cluster.NodeID, mailbox msg.MailboxID, payload []byte) error {
	return nil
}

func newAdministrableGroup(t *testing.T, uuid string, owners ...cluster.NodeID) *cluster.Group {
	g := cluster.NewGroup(uuid, "name-"+uuid, "raid1")
	for i, owner := range owners {
		d := &cluster.Disk{UUID: uuid + "-disk" + string(rune('a'+i)), OwnerNode: owner}
		require.NoError(t, g.AddDisk(d))
	}
	return g
}

func TestPrepareThenCommitAdvancesTriplet(t *testing.T) {
	w := wt.NewWorkThread(fakeSender{})
	m := NewManager(w)
	group := newAdministrableGroup(t, "g1", 1, 2)
	members := []cluster.NodeID{1, 2}
	writable := func(d *cluster.Disk) bool { return true }

	done := make(chan struct{})
	var prepKind cmn.ErrKind
	go func() {
		prepKind, _ = m.Prepare(context.Background(), group, members, writable)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	w.OnReply(1, wt.CallReply{CallID: 1, Kind: cmn.Success})
	w.OnReply(2, wt.CallReply{CallID: 1, Kind: cmn.Success})
	<-done
	require.Equal(t, cmn.Success, prepKind)
	require.Equal(t, uint64(1), m.Snapshot("g1").Prepared)

	done2 := make(chan struct{})
	var commitKind cmn.ErrKind
	go func() {
		commitKind, _ = m.Commit(context.Background(), group, members, writable)
		close(done2)
	}()
	time.Sleep(10 * time.Millisecond)
	w.OnReply(1, wt.CallReply{CallID: 2, Kind: cmn.Success})
	w.OnReply(2, wt.CallReply{CallID: 2, Kind: cmn.Success})
	<-done2
	require.Equal(t, cmn.Success, commitKind)

	snap := m.Snapshot("g1")
	require.Equal(t, uint64(1), snap.Committed)
	require.Equal(t, uint64(0), snap.InFlight)
}

func TestPrepareRefusesWhenNotAdministrable(t *testing.T) {
	w := wt.NewWorkThread(fakeSender{})
	m := NewManager(w)
	group := newAdministrableGroup(t, "g2")
	notWritable := func(d *cluster.Disk) bool { return false }

	kind, err := m.Prepare(context.Background(), group, []cluster.NodeID{1}, notWritable)
	require.NoError(t, err)
	require.Equal(t, cmn.GroupNotAdministrable, kind)
	require.Equal(t, uint64(0), m.Snapshot("g2").Prepared)
}

func TestSyncSnapshotRoundTripsThroughApplySyncSnapshot(t *testing.T) {
	src := NewManager(wt.NewWorkThread(fakeSender{}))
	t1 := src.triplet("g4")
	t1.Committed = 7
	t1.Prepared = 8
	t1.InFlight = 1

	dst := NewManager(wt.NewWorkThread(fakeSender{}))
	require.NoError(t, dst.ApplySyncSnapshot("g4", src.SyncSnapshot("g4")))
	require.Equal(t, src.Snapshot("g4"), dst.Snapshot("g4"))
}

func TestRecoverRollsBackUncommittedPrepare(t *testing.T) {
	w := wt.NewWorkThread(fakeSender{})
	m := NewManager(w)
	t2 := m.triplet("g3")
	t2.Committed = 3
	t2.Prepared = 5
	t2.InFlight = 5

	snap := m.Recover("g3")
	require.Equal(t, uint64(3), snap.Committed)
	require.Equal(t, uint64(3), snap.Prepared)
	require.Equal(t, uint64(0), snap.InFlight)
}
