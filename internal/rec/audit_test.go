package rec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OznOg/exanodes-admind/cluster"
)

func TestAuditSnapshotOrderedOldestFirst(t *testing.T) {
	a := NewAudit()
	now := time.Unix(1000, 0)
	a.RecordGroupUUIDRace("g1", 1, now)
	a.RecordGroupUUIDRace("g2", 2, now.Add(time.Second))

	snap := a.Snapshot()
	require.Len(t, snap, 2)
	require.Equal(t, "g1", snap[0].GroupUUID)
	require.Equal(t, "g2", snap[1].GroupUUID)
}

func TestAuditRecordIOAdvisory(t *testing.T) {
	a := NewAudit()
	v := cluster.NewVolume("vuuid", "guuid", "vol0", 1024)
	a.RecordIOAdvisory(v, 3, time.Unix(2000, 0))

	snap := a.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, IOAdvisory, snap[0].Kind)
	require.Equal(t, "vuuid", snap[0].VolumeUUID)
}

func TestAuditWrapsAfterCapacity(t *testing.T) {
	a := NewAudit()
	for i := 0; i < auditCapacity+10; i++ {
		a.RecordGroupUUIDRace("g", uint64(i), time.Unix(int64(i), 0))
	}
	snap := a.Snapshot()
	require.Len(t, snap, auditCapacity)
	require.Equal(t, uint64(10), snap[0].Generation) // oldest 10 entries evicted
}
