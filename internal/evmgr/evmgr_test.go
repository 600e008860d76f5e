package evmgr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OznOg/exanodes-admind/cluster"
)

func TestApplyComputesGoingUpAndDown(t *testing.T) {
	e := NewEventManager(1)
	e.Apply([]cluster.NodeID{1, 2, 3})

	change := e.Apply([]cluster.NodeID{1, 2, 4})
	require.Equal(t, []cluster.NodeID{1, 2, 4}, change.Up)
	require.Equal(t, []cluster.NodeID{4}, change.GoingUp)
	require.Equal(t, []cluster.NodeID{3}, change.GoingDown)
}

func TestApplyElectsLowestIDLeader(t *testing.T) {
	e := NewEventManager(2)
	change := e.Apply([]cluster.NodeID{3, 2, 5})
	require.Equal(t, cluster.NodeID(2), change.Leader)
	require.True(t, change.IsLeader)
}

func TestApplyInvokesOnChangeCallback(t *testing.T) {
	e := NewEventManager(1)
	var got MembershipChange
	e.OnChange(func(c MembershipChange) { got = c })
	e.Apply([]cluster.NodeID{1})
	require.Equal(t, []cluster.NodeID{1}, got.Up)
}

func TestFirstRoundEveryoneGoingUp(t *testing.T) {
	e := NewEventManager(1)
	change := e.Apply([]cluster.NodeID{1, 2})
	require.Equal(t, []cluster.NodeID{1, 2}, change.GoingUp)
	require.Empty(t, change.GoingDown)
}
