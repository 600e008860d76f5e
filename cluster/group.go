package cluster

import (
	"sort"
	"sync"
)

// Goal is a disk group's administrator-declared target state (§3).
type Goal int

const (
	GoalUndefined Goal = iota
	GoalStarted
	GoalStopped
)

// Group is the disk-group entity from §3. Disks and volumes are kept
// in maps keyed by UUID with a separately maintained ascending index,
// because the storage engine's correctness depends on UUID-ascending
// iteration order (§9).
type Group struct {
	mu sync.RWMutex

	UUID   string
	Name   string
	Layout string
	Goal   Goal

	Committed bool
	Tainted   bool
	Started   bool
	Offline   bool
	Synched   bool

	disks    map[string]*Disk   // disk UUID -> Disk
	diskOrd  []string           // ascending disk UUIDs
	volumes  map[string]*Volume // volume UUID -> Volume
	volOrd   []string           // ascending volume UUIDs
}

func NewGroup(uuid, name, layout string) *Group {
	return &Group{
		UUID:    uuid,
		Name:    name,
		Layout:  layout,
		Goal:    GoalUndefined,
		disks:   make(map[string]*Disk),
		volumes: make(map[string]*Volume),
	}
}

// AddDisk inserts a disk into the group's UUID-ordered index (§3, §9).
func (g *Group) AddDisk(d *Disk) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.disks[d.UUID]; exists {
		return errInvariant("group %s: duplicate disk uuid %s", g.UUID, d.UUID)
	}
	if d.GroupUUID != "" && d.GroupUUID != g.UUID {
		return errInvariant("disk %s: already owned by group %s", d.UUID, d.GroupUUID)
	}
	d.GroupUUID = g.UUID
	g.disks[d.UUID] = d
	g.diskOrd = insertSorted(g.diskOrd, d.UUID)
	return nil
}

func (g *Group) RemoveDisk(uuid string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.disks, uuid)
	g.diskOrd = removeSorted(g.diskOrd, uuid)
}

// Disks returns the group's member disks in ascending-UUID order.
func (g *Group) Disks() []*Disk {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Disk, 0, len(g.diskOrd))
	for _, id := range g.diskOrd {
		out = append(out, g.disks[id])
	}
	return out
}

func (g *Group) AddVolume(v *Volume) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.volumes[v.UUID]; exists {
		return errInvariant("group %s: duplicate volume uuid %s", g.UUID, v.UUID)
	}
	for _, id := range g.volOrd {
		if g.volumes[id].Name == v.Name {
			return errInvariant("group %s: duplicate volume name %s", g.UUID, v.Name)
		}
	}
	g.volumes[v.UUID] = v
	g.volOrd = insertSorted(g.volOrd, v.UUID)
	return nil
}

func (g *Group) RemoveVolume(uuid string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.volumes, uuid)
	g.volOrd = removeSorted(g.volOrd, uuid)
}

// Volumes returns the group's volumes in ascending-UUID order.
func (g *Group) Volumes() []*Volume {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Volume, 0, len(g.volOrd))
	for _, id := range g.volOrd {
		out = append(out, g.volumes[id])
	}
	return out
}

func (g *Group) Volume(uuid string) *Volume {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.volumes[uuid]
}

// Validate checks the §3 group invariants that don't require the
// cluster-wide registry (uniqueness of UUID/name across groups is
// checked by the registry in groups.go).
func (g *Group) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.Started && g.Goal != GoalStarted {
		return errInvariant("group %s: started while goal != STARTED", g.UUID)
	}
	if g.Offline && g.Synched {
		return errInvariant("group %s: offline but synched", g.UUID)
	}
	for _, id := range g.diskOrd {
		if g.disks[id].GroupUUID != g.UUID {
			return errInvariant("group %s: disk %s has foreign group_uuid %s", g.UUID, id, g.disks[id].GroupUUID)
		}
	}
	return nil
}

// Administrable reports whether strictly more than half of the nodes
// that own at least one of this group's disks currently have a
// writable (imported, not broken/suspended) disk in the group (§4.7).
func (g *Group) Administrable(writable func(d *Disk) bool) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	owners := make(map[NodeID]bool) // node -> has-writable
	for _, id := range g.diskOrd {
		d := g.disks[id]
		if _, ok := owners[d.OwnerNode]; !ok {
			owners[d.OwnerNode] = false
		}
		if writable(d) {
			owners[d.OwnerNode] = true
		}
	}
	if len(owners) == 0 {
		return false
	}
	writableOwners := 0
	for _, ok := range owners {
		if ok {
			writableOwners++
		}
	}
	return writableOwners*2 > len(owners)
}

func insertSorted(ord []string, id string) []string {
	i := sort.SearchStrings(ord, id)
	if i < len(ord) && ord[i] == id {
		return ord
	}
	ord = append(ord, "")
	copy(ord[i+1:], ord[i:])
	ord[i] = id
	return ord
}

func removeSorted(ord []string, id string) []string {
	i := sort.SearchStrings(ord, id)
	if i < len(ord) && ord[i] == id {
		return append(ord[:i], ord[i+1:]...)
	}
	return ord
}
