package cluster

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddDiskRejectsDuplicateUUID(t *testing.T) {
	c := NewCluster(1)
	require.NoError(t, c.AddDisk(&Disk{UUID: "d1", OwnerNode: 1}))
	require.Error(t, c.AddDisk(&Disk{UUID: "d1", OwnerNode: 1}))
}

func TestAddDiskEnforcesPerNodeBoundary(t *testing.T) {
	c := NewCluster(1)
	for i := 0; i < MaxDisksPerNode; i++ {
		require.NoError(t, c.AddDisk(&Disk{UUID: fmt.Sprintf("disk-%d", i), OwnerNode: 1}))
	}
	err := c.AddDisk(&Disk{UUID: "overflow", OwnerNode: 1})
	require.ErrorIs(t, err, ErrTooManyDisksInNode)
}

func TestRemoveDiskFreesSlot(t *testing.T) {
	c := NewCluster(1)
	require.NoError(t, c.AddDisk(&Disk{UUID: "d1", OwnerNode: 1}))
	c.RemoveDisk("d1")
	require.NoError(t, c.AddDisk(&Disk{UUID: "d1", OwnerNode: 1}))
}
