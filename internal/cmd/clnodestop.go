package cmd

import "github.com/OznOg/exanodes-admind/cluster"

// ViolatesQuorumPreserve reports whether stopping target would drop
// the cluster below a strict majority of its known nodes (original
// source: exa_clnodestop.c's QUORUM_PRESERVE check). Callers must
// require --force to proceed when this returns true.
func ViolatesQuorumPreserve(cl *cluster.Cluster, target cluster.NodeID) bool {
	known := cl.KnownNodeIDs()
	if len(known) == 0 {
		return false
	}
	remaining := 0
	for _, id := range cl.LiveNodeIDs() {
		if id != target {
			remaining++
		}
	}
	return remaining*2 <= len(known)
}
