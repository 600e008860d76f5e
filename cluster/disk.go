package cluster

// DiskFlags mirrors aistore's SnodeFlags bitset idiom (cluster/map.go).
type DiskFlags uint32

const (
	DiskImported DiskFlags = 1 << iota
	DiskUpInVrt
	DiskSuspended
	DiskBroken
)

func (f DiskFlags) Set(flags DiskFlags) DiskFlags   { return f | flags }
func (f DiskFlags) Clear(flags DiskFlags) DiskFlags { return f &^ flags }
func (f DiskFlags) IsSet(flags DiskFlags) bool      { return f&flags == flags }

// Disk is keyed by a stable UUID; ReplacementUUID ("virtualiser UUID")
// is re-issued when the physical disk behind it is replaced (§3).
type Disk struct {
	UUID            string
	ReplacementUUID string
	OwnerNode       NodeID
	Path            string
	GroupUUID       string
	Flags           DiskFlags
}

func (d *Disk) Up() bool { return d.Flags.IsSet(DiskUpInVrt) }

// Validate enforces the disk invariant from §3: up-in-vrt ⇒ imported.
func (d *Disk) Validate() error {
	if d.Flags.IsSet(DiskUpInVrt) && !d.Flags.IsSet(DiskImported) {
		return errInvariant("disk %s: up-in-vrt without imported", d.UUID)
	}
	return nil
}
