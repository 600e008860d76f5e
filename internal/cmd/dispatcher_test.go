package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OznOg/exanodes-admind/cmn"
)

func echoHandler(ctx context.Context, args Args) *cmn.ErrDesc {
	return cmn.NewErrDesc(cmn.Success, "ok")
}

func TestDispatchRejectsUnknownCode(t *testing.T) {
	d := NewDispatcher("cluster-a")
	got := d.Dispatch(context.Background(), ClCreate, "cluster-a", Args{})
	require.Equal(t, cmn.InvalidParam, got.Kind)
}

func TestDispatchRejectsDisallowedState(t *testing.T) {
	d := NewDispatcher("cluster-a")
	require.NoError(t, d.Register(&Command{
		Code:          ClDelete,
		AllowedStates: cmn.MaskOf(cmn.StateStarted),
		Handler:       echoHandler,
	}))
	d.SetState(cmn.StateStopped)

	got := d.Dispatch(context.Background(), ClDelete, "cluster-a", Args{})
	require.Equal(t, cmn.InvalidParam, got.Kind)
}

func TestDispatchRejectsClusterUUIDMismatch(t *testing.T) {
	d := NewDispatcher("cluster-a")
	require.NoError(t, d.Register(&Command{
		Code:               ClDelete,
		AllowedStates:      cmn.AnyState,
		RequireClusterUUID: true,
		Handler:            echoHandler,
	}))
	d.SetState(cmn.StateStarted)

	got := d.Dispatch(context.Background(), ClDelete, "cluster-b", Args{})
	require.Equal(t, cmn.InvalidParam, got.Kind)
}

func TestDispatchRejectsDuringRecoveryUnlessAllowed(t *testing.T) {
	d := NewDispatcher("cluster-a")
	require.NoError(t, d.Register(&Command{
		Code:          ClDelete,
		AllowedStates: cmn.AnyState,
		Handler:       echoHandler,
	}))
	d.SetState(cmn.StateStarted)
	d.SetRecovering(true)

	got := d.Dispatch(context.Background(), ClDelete, "cluster-a", Args{})
	require.Equal(t, cmn.InvalidParam, got.Kind)

	require.NoError(t, d.Register(&Command{
		Code:              ClInfo,
		AllowedStates:     cmn.AnyState,
		AllowedInRecovery: true,
		Handler:           echoHandler,
	}))
	got = d.Dispatch(context.Background(), ClInfo, "cluster-a", Args{})
	require.Equal(t, cmn.Success, got.Kind)
}

func TestRegisterRejectsDuplicateCode(t *testing.T) {
	d := NewDispatcher("cluster-a")
	require.NoError(t, d.Register(&Command{Code: ClInfo, AllowedStates: cmn.AnyState, Handler: echoHandler}))
	err := d.Register(&Command{Code: ClInfo, AllowedStates: cmn.AnyState, Handler: echoHandler})
	require.Error(t, err)
}
