package sup

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OznOg/exanodes-admind/cluster"
)

func TestAgreementThreePhaseHappyPath(t *testing.T) {
	a := NewAgreement(1)
	a.StartChange([]cluster.NodeID{1, 2, 3})
	_, gen, state := a.Membership()
	require.Equal(t, cluster.ViewChange, state)

	require.False(t, a.OnAccept(gen, 1))
	require.False(t, a.OnAccept(gen, 2))
	require.True(t, a.OnAccept(gen, 3)) // last acceptor flips to ACCEPT

	_, _, state = a.Membership()
	require.Equal(t, cluster.ViewAccept, state)

	require.False(t, a.OnCommit(gen, 1))
	require.False(t, a.OnCommit(gen, 2))
	require.True(t, a.OnCommit(gen, 3))

	clique, _, state := a.Membership()
	require.Equal(t, cluster.ViewCommit, state)
	require.Equal(t, []cluster.NodeID{1, 2, 3}, clique)
}

func TestAgreementStaleGenerationIgnored(t *testing.T) {
	a := NewAgreement(1)
	a.StartChange([]cluster.NodeID{1, 2})
	_, gen, _ := a.Membership()

	a.StartChange([]cluster.NodeID{1, 2, 3}) // supersedes, bumps generation

	require.False(t, a.OnAccept(gen, 1)) // stale generation, ignored
	_, _, state := a.Membership()
	require.Equal(t, cluster.ViewChange, state)
}

func TestLeaderIsLowestCommittedID(t *testing.T) {
	l, ok := Leader([]cluster.NodeID{4, 1, 7})
	require.True(t, ok)
	require.Equal(t, cluster.NodeID(1), l)
}
