package wt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
	"github.com/OznOg/exanodes-admind/internal/msg"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []cluster.NodeID
}

func (f *fakeSender) Send(ctx context.Context, dest cluster.NodeID, mailbox msg.MailboxID, payload []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, dest)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) lastCallID(t *testing.T) uint64 {
	t.Helper()
	return 1 // single-call tests only ever issue one call
}

func TestExecCommandAggregatesSuccess(t *testing.T) {
	fs := &fakeSender{}
	w := NewWorkThread(fs)

	members := []cluster.NodeID{1, 2, 3}
	done := make(chan struct{})
	var kind cmn.ErrKind
	go func() {
		kind, _, _ = w.ExecCommand(context.Background(), members, msg.MailboxSup, []byte("go"))
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	for _, m := range members {
		w.OnReply(m, CallReply{CallID: 1, Kind: cmn.Success})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ExecCommand did not complete")
	}
	require.Equal(t, cmn.Success, kind)
	require.ElementsMatch(t, members, fs.sent)
}

func TestExecCommandAggregatesNodeDownHighestPrecedence(t *testing.T) {
	fs := &fakeSender{}
	w := NewWorkThread(fs)

	members := []cluster.NodeID{1, 2}
	done := make(chan struct{})
	var kind cmn.ErrKind
	go func() {
		kind, _, _ = w.ExecCommand(context.Background(), members, msg.MailboxSup, []byte("go"))
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	w.OnReply(1, CallReply{CallID: 1, Kind: cmn.InvalidParam})
	w.OnReply(2, CallReply{CallID: 1, Kind: cmn.NodeDown})

	<-done
	require.Equal(t, cmn.NodeDown, kind)
}

func TestExecCommandNothingToDoOnEmptyMembers(t *testing.T) {
	fs := &fakeSender{}
	w := NewWorkThread(fs)
	kind, results, err := w.ExecCommand(context.Background(), nil, msg.MailboxSup, nil)
	require.NoError(t, err)
	require.Equal(t, cmn.NothingToDo, kind)
	require.Nil(t, results)
}

func TestNodeDownUnblocksWaitingCall(t *testing.T) {
	fs := &fakeSender{}
	w := NewWorkThread(fs)

	members := []cluster.NodeID{1, 2}
	done := make(chan struct{})
	var kind cmn.ErrKind
	go func() {
		kind, _, _ = w.ExecCommand(context.Background(), members, msg.MailboxSup, []byte("go"))
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	w.OnReply(1, CallReply{CallID: 1, Kind: cmn.Success})
	w.NodeDown(2)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ExecCommand did not unblock on NodeDown")
	}
	require.Equal(t, cmn.NodeDown, kind)
}

func TestBcastDoesNotWaitForReplies(t *testing.T) {
	fs := &fakeSender{}
	w := NewWorkThread(fs)
	err := w.Bcast(context.Background(), []cluster.NodeID{1, 2, 3}, msg.MailboxSup, []byte("go"))
	require.NoError(t, err)
	require.Len(t, fs.sent, 3)
}
