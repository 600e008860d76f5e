package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
	"github.com/OznOg/exanodes-admind/internal/svc"
)

func threeNodeCluster(t *testing.T) *cluster.Cluster {
	cl := cluster.NewCluster(1)
	require.NoError(t, cl.AddNode(cluster.NewNode(1, "n1", 1)))
	require.NoError(t, cl.AddNode(cluster.NewNode(2, "n2", 1)))
	require.NoError(t, cl.AddNode(cluster.NewNode(3, "n3", 1)))
	return cl
}

func TestRegisterDefaultCatalogueRejectsDuplicates(t *testing.T) {
	d := NewDispatcher("cluster-a")
	cl := threeNodeCluster(t)
	tunes := NewTuneStore(map[string]string{"iops": "100"})
	require.NoError(t, RegisterDefaultCatalogue(d, cl, tunes, svc.NewRegistry()))
	require.Error(t, RegisterDefaultCatalogue(d, cl, tunes, svc.NewRegistry()))
}

func TestCatalogueTuneRestoresDefaultOnEmptyValue(t *testing.T) {
	d := NewDispatcher("cluster-a")
	cl := threeNodeCluster(t)
	tunes := NewTuneStore(map[string]string{"iops": "100"})
	require.NoError(t, RegisterDefaultCatalogue(d, cl, tunes, svc.NewRegistry()))
	d.SetState(cmn.StateStarted)

	got := d.Dispatch(context.Background(), ClTune, "cluster-a", Args{Values: map[string]string{"k": "iops", "v": "250"}})
	require.Equal(t, cmn.Success, got.Kind)
	v, _ := tunes.Get("iops")
	require.Equal(t, "250", v)

	got = d.Dispatch(context.Background(), ClTune, "cluster-a", Args{Values: map[string]string{"k": "iops", "v": ""}})
	require.Equal(t, cmn.Success, got.Kind)
	v, _ = tunes.Get("iops")
	require.Equal(t, "100", v)
}

func TestCatalogueNodeStopBlocksWhenQuorumWouldBreak(t *testing.T) {
	d := NewDispatcher("cluster-a")
	cl := cluster.NewCluster(1)
	require.NoError(t, cl.AddNode(cluster.NewNode(1, "n1", 1)))
	require.NoError(t, cl.AddNode(cluster.NewNode(2, "n2", 1)))
	tunes := NewTuneStore(nil)
	require.NoError(t, RegisterDefaultCatalogue(d, cl, tunes, svc.NewRegistry()))
	d.SetState(cmn.StateStarted)

	got := d.Dispatch(context.Background(), ClNodeStop, "cluster-a", Args{Values: map[string]string{"node": "2"}})
	require.Equal(t, cmn.QuorumPreserve, got.Kind)

	got = d.Dispatch(context.Background(), ClNodeStop, "cluster-a", Args{Values: map[string]string{"node": "2"}, Force: true})
	require.Equal(t, cmn.Success, got.Kind)
}

func TestCatalogueDiskAddEnforcesPerNodeBoundary(t *testing.T) {
	d := NewDispatcher("cluster-a")
	cl := threeNodeCluster(t)
	tunes := NewTuneStore(nil)
	require.NoError(t, RegisterDefaultCatalogue(d, cl, tunes, svc.NewRegistry()))
	d.SetState(cmn.StateStarted)

	for i := 0; i < cluster.MaxDisksPerNode; i++ {
		args := Args{Values: map[string]string{
			"uuid": uuidFor(i),
			"node": "1",
		}}
		got := d.Dispatch(context.Background(), ClDiskAdd, "cluster-a", args)
		require.Equal(t, cmn.Success, got.Kind)
	}

	got := d.Dispatch(context.Background(), ClDiskAdd, "cluster-a", Args{Values: map[string]string{
		"uuid": "one-too-many",
		"node": "1",
	}})
	require.Equal(t, cmn.TooManyDisksInNode, got.Kind)
}

func TestCatalogueDgCreateThenVlCreate(t *testing.T) {
	d := NewDispatcher("cluster-a")
	cl := threeNodeCluster(t)
	tunes := NewTuneStore(nil)
	require.NoError(t, RegisterDefaultCatalogue(d, cl, tunes, svc.NewRegistry()))
	d.SetState(cmn.StateStarted)

	got := d.Dispatch(context.Background(), DgCreate, "cluster-a", Args{Values: map[string]string{"name": "G"}})
	require.Equal(t, cmn.Success, got.Kind)

	groups := cl.Groups()
	require.Len(t, groups, 1)

	got = d.Dispatch(context.Background(), VlCreate, "cluster-a", Args{Values: map[string]string{
		"group": groups[0].UUID, "name": "v1", "size_kb": "1048576",
	}})
	require.Equal(t, cmn.Success, got.Kind)
	require.Len(t, groups[0].Volumes(), 1)
}

func TestCatalogueVlCreateRejectsUnknownGroup(t *testing.T) {
	d := NewDispatcher("cluster-a")
	cl := threeNodeCluster(t)
	tunes := NewTuneStore(nil)
	require.NoError(t, RegisterDefaultCatalogue(d, cl, tunes, svc.NewRegistry()))
	d.SetState(cmn.StateStarted)

	got := d.Dispatch(context.Background(), VlCreate, "cluster-a", Args{Values: map[string]string{
		"group": "no-such-group", "name": "v1", "size_kb": "1024",
	}})
	require.Equal(t, cmn.UnknownGroup, got.Kind)
}

func TestCatalogueFsCommandsAreInert(t *testing.T) {
	d := NewDispatcher("cluster-a")
	cl := threeNodeCluster(t)
	tunes := NewTuneStore(nil)
	require.NoError(t, RegisterDefaultCatalogue(d, cl, tunes, svc.NewRegistry()))
	d.SetState(cmn.StateStarted)

	got := d.Dispatch(context.Background(), FsExport, "cluster-a", Args{})
	require.Equal(t, cmn.InvalidParam, got.Kind)
}

func uuidFor(i int) string {
	const hex = "0123456789abcdef"
	b := []byte("disk-00000000")
	for p := len(b) - 1; i > 0 && p >= 0; p-- {
		b[p] = hex[i%16]
		i /= 16
	}
	return string(b)
}
