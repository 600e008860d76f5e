package cluster

import "fmt"

// AddGroup registers g cluster-wide, rejecting a duplicate UUID or a
// name collision with an existing group (§3: unique UUIDs/names).
func (c *Cluster) AddGroup(g *Group) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.groups[g.UUID]; exists {
		return fmt.Errorf("cluster: duplicate group uuid %s", g.UUID)
	}
	for _, id := range c.groupOrd {
		if c.groups[id].Name == g.Name {
			return fmt.Errorf("cluster: duplicate group name %s", g.Name)
		}
	}
	c.groups[g.UUID] = g
	c.groupOrd = insertSorted(c.groupOrd, g.UUID)
	return nil
}

// RemoveGroup deletes a group from the cluster-wide registry and its
// UUID index. It does not touch any export document: export lists that
// name the group's volumes are left as they are.
func (c *Cluster) RemoveGroup(uuid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.groups, uuid)
	c.groupOrd = removeSorted(c.groupOrd, uuid)
}

func (c *Cluster) Group(uuid string) *Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.groups[uuid]
}

// Groups returns every registered group in ascending-UUID order (§9).
func (c *Cluster) Groups() []*Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Group, 0, len(c.groupOrd))
	for _, id := range c.groupOrd {
		out = append(out, c.groups[id])
	}
	return out
}
