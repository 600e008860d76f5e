package cluster

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Cluster is the node-id → Node registry plus known_nodes and self
// (§3). It replaces the original's module-level globals with an
// explicit, passable context (§9 "global registries become explicit
// context").
type Cluster struct {
	mu           sync.RWMutex
	nodes        map[NodeID]*Node
	knownNodes   map[NodeID]struct{} // ever inserted by configuration
	self         NodeID
	disksByUUID  map[string]NodeID
	disksPerNode map[NodeID]int
	groups       map[string]*Group
	groupOrd     []string // ascending group UUIDs
}

// MaxDisks and MaxDisksPerNode are the cluster-wide and per-node disk
// count ceilings enforced by AddDisk (original source: adm_disk.h).
const (
	MaxDisks        = 4096
	MaxDisksPerNode = 256
)

func NewCluster(self NodeID) *Cluster {
	return &Cluster{
		nodes:        make(map[NodeID]*Node),
		knownNodes:   make(map[NodeID]struct{}),
		self:         self,
		disksByUUID:  make(map[string]NodeID),
		disksPerNode: make(map[NodeID]int),
		groups:       make(map[string]*Group),
	}
}

func (c *Cluster) Self() NodeID { return c.self }

// AddNode is how nodes are created, at configuration import (§3
// Lifecycles).
func (c *Cluster) AddNode(n *Node) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.nodes[n.ID]; exists {
		return fmt.Errorf("duplicate node id %d", n.ID)
	}
	c.nodes[n.ID] = n
	c.knownNodes[n.ID] = struct{}{}
	return nil
}

// RemoveNode implements clnodedel's precondition: only when stopped
// and owning no group disks. Callers are expected to have already
// checked that precondition via the disk/group registries; RemoveNode
// itself only enforces "known".
func (c *Cluster) RemoveNode(id NodeID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.nodes[id]; !ok {
		return fmt.Errorf("unknown node %d", id)
	}
	delete(c.nodes, id)
	return nil
}

func (c *Cluster) Node(id NodeID) *Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nodes[id]
}

func (c *Cluster) SelfNode() *Node { return c.Node(c.self) }

// KnownNodeIDs returns every node-id ever configured into the
// cluster, ascending — the candidate pool for clique computation
// (§4.2), independent of current liveness.
func (c *Cluster) KnownNodeIDs() []NodeID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]NodeID, 0, len(c.knownNodes))
	for id := range c.knownNodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LiveNodeIDs returns the ascending ids of nodes currently present in
// the registry (i.e., not yet removed by clnodedel).
func (c *Cluster) LiveNodeIDs() []NodeID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]NodeID, 0, len(c.nodes))
	for id := range c.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReachableNodeIDs returns the ascending ids of nodes touched within
// the last `within` duration — the input to clique computation (§4.2),
// as opposed to LiveNodeIDs' "not yet removed".
func (c *Cluster) ReachableNodeIDs(within time.Duration) []NodeID {
	c.mu.RLock()
	nodes := make([]*Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.RUnlock()

	ids := make([]NodeID, 0, len(nodes))
	for _, n := range nodes {
		if n.Age() <= within || n.ID == c.self {
			ids = append(ids, n.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (c *Cluster) Contains(id NodeID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.nodes[id]
	return ok
}

// ErrTooManyDisks and ErrTooManyDisksInNode are returned by AddDisk
// when a cldiskadd would exceed the cluster-wide or per-node disk
// ceiling (original source: exa_cldiskadd.c).
var (
	ErrTooManyDisks       = fmt.Errorf("cluster: too many disks, max %d", MaxDisks)
	ErrTooManyDisksInNode = fmt.Errorf("cluster: too many disks on node, max %d", MaxDisksPerNode)
)

// AddDisk enforces the MAX_DISKS / MAX_DISKS_PER_NODE boundaries before
// a disk is admitted cluster-wide; group membership is tracked
// separately by Group.AddDisk.
func (c *Cluster) AddDisk(d *Disk) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.disksByUUID[d.UUID]; exists {
		return fmt.Errorf("cluster: duplicate disk uuid %s", d.UUID)
	}
	if len(c.disksByUUID)+1 > MaxDisks {
		return ErrTooManyDisks
	}
	if c.disksPerNode[d.OwnerNode]+1 > MaxDisksPerNode {
		return ErrTooManyDisksInNode
	}
	c.disksByUUID[d.UUID] = d.OwnerNode
	c.disksPerNode[d.OwnerNode]++
	return nil
}

// RemoveDisk releases a disk's slot in the cluster-wide and per-node
// counters (clnodedel/dgdiskdel precondition bookkeeping).
func (c *Cluster) RemoveDisk(uuid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.disksByUUID[uuid]
	if !ok {
		return
	}
	delete(c.disksByUUID, uuid)
	c.disksPerNode[owner]--
}
