package cluster

// Volume is a logical volume within a group (§3). The three per-node
// goal bitsets and the runtime flags are kept separate per §9's open
// question: "the volume started flag has nothing to do with whether
// it may return I/O errors" — see VolumeIOAdvisory below, which
// surfaces that distinction explicitly instead of conflating it.
type Volume struct {
	UUID      string
	GroupUUID string
	Name      string
	SizeKB    int64

	GoalStarted  map[NodeID]bool
	GoalStopped  map[NodeID]bool
	GoalReadonly map[NodeID]bool

	Started  bool
	Readonly bool
	Exported bool

	Committed bool

	ReadAhead int64 // bdev-only, 0 = unset
	LUN       int32 // iSCSI-only, -1 = unset

	// IOAdvisory records the open question from §9: a volume's
	// "started" bit does not by itself guarantee I/O will not return
	// errors (e.g. mid-recovery, or while LUM hasn't yet caught up).
	// Recorded here instead of silently assumed away.
	IOAdvisory VolumeIOAdvisory
}

// VolumeIOAdvisory is an explicit, named state for the open question
// noted in §9 around LUM notification: the engine marks it instead of
// assuming "started" implies "safe to issue I/O".
type VolumeIOAdvisory int

const (
	IOAdvisoryNone VolumeIOAdvisory = iota
	IOAdvisoryMayFail
)

func NewVolume(uuid, groupUUID, name string, sizeKB int64) *Volume {
	return &Volume{
		UUID:         uuid,
		GroupUUID:    groupUUID,
		Name:         name,
		SizeKB:       sizeKB,
		GoalStarted:  make(map[NodeID]bool),
		GoalStopped:  make(map[NodeID]bool),
		GoalReadonly: make(map[NodeID]bool),
		LUN:          -1,
	}
}
