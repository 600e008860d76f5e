package admind

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
	"github.com/OznOg/exanodes-admind/internal/cmd"
	"github.com/OznOg/exanodes-admind/internal/sup"
)

func testConfig(nodeID uint32) *cmn.Config {
	cfg := cmn.DefaultConfig()
	cfg.ClusterUUID = "scenario-cluster"
	cfg.NodeID = nodeID
	cfg.NodeName = "node"
	cfg.Incarnation = 1
	return cfg
}

var _ = Describe("successful volume creation", func() {
	It("creates a group then a volume inside it through the dispatcher", func() {
		cl := cluster.NewCluster(1)
		Expect(cl.AddNode(cluster.NewNode(1, "n1", 1))).To(Succeed())

		cc, err := NewCoreContext(testConfig(1), cl, loopbackNoop{}, nil)
		Expect(err).NotTo(HaveOccurred())
		cc.Dispatcher.SetState(cmn.StateStarted)

		got := cc.Dispatcher.Dispatch(context.Background(), cmd.DgCreate, "scenario-cluster", cmd.Args{
			Values: map[string]string{"name": "G"},
		})
		Expect(got.Kind).To(Equal(cmn.Success))

		groups := cl.Groups()
		Expect(groups).To(HaveLen(1))

		got = cc.Dispatcher.Dispatch(context.Background(), cmd.VlCreate, "scenario-cluster", cmd.Args{
			Values: map[string]string{"group": groups[0].UUID, "name": "v1", "size_kb": "1048576"},
		})
		Expect(got.Kind).To(Equal(cmn.Success))
		Expect(groups[0].Volumes()).To(HaveLen(1))
	})
})

var _ = Describe("group unadministrable refuses a superblock write", func() {
	It("returns GROUP_NOT_ADMINISTRABLE instead of advancing any version", func() {
		cl := cluster.NewCluster(1)
		Expect(cl.AddNode(cluster.NewNode(1, "n1", 1))).To(Succeed())

		cc, err := NewCoreContext(testConfig(1), cl, loopbackNoop{}, nil)
		Expect(err).NotTo(HaveOccurred())

		g := cluster.NewGroup("g1", "G", "raid1")
		d := &cluster.Disk{UUID: "d1", GroupUUID: "g1", OwnerNode: 1}
		Expect(g.AddDisk(d)).To(Succeed())

		neverWritable := func(*cluster.Disk) bool { return false }
		kind, err := cc.SB.Prepare(context.Background(), g, []cluster.NodeID{1}, neverWritable)
		Expect(err).NotTo(HaveOccurred())
		Expect(kind).To(Equal(cmn.GroupNotAdministrable))
		Expect(cc.SB.Snapshot("g1").Prepared).To(Equal(uint64(0)))
	})
})

// loopbackNoop satisfies msg.Transport for tests that never actually
// exchange network traffic (single-node dispatch scenarios).
type loopbackNoop struct{}

func (loopbackNoop) Send(ctx context.Context, dest cluster.NodeID, raw []byte) error { return nil }
func (loopbackNoop) Broadcast(ctx context.Context, dest map[cluster.NodeID]struct{}, raw []byte) error {
	return nil
}
func (loopbackNoop) Recv(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

var _ = Describe("clique membership agreement converges across a three-node cluster", func() {
	It("reaches COMMIT with the lowest-id node as leader once every node accepts", func() {
		hub := newLoopbackHub()
		ids := []cluster.NodeID{1, 2, 3}

		var ctxs []*CoreContext
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for _, id := range ids {
			cl := cluster.NewCluster(id)
			for _, peer := range ids {
				Expect(cl.AddNode(cluster.NewNode(peer, "n", 1))).To(Succeed())
			}
			transport := hub.join(id)
			cc, err := NewCoreContext(testConfig(uint32(id)), cl, transport, nil)
			Expect(err).NotTo(HaveOccurred())
			ctxs = append(ctxs, cc)

			go func() { _ = cc.Substrate.Run(ctx) }()
			go func() { _ = cc.pumpAgreementMailbox(ctx) }()
		}

		// Simulate every node's supervisor independently having just
		// detected the same fully-connected clique (the steady
		// state once pings have propagated). onCliqueChange only
		// acts on the coordinator (lowest id); it originates the
		// CHANGE and the wire-level CHANGE->ACCEPT->COMMIT exchange
		// carries the other two nodes to convergence on their own.
		for _, cc := range ctxs {
			cc.onCliqueChange(ids)
		}

		for _, cc := range ctxs {
			cc := cc
			Eventually(func() cluster.ViewState {
				_, _, state := cc.Supervisor.Agreement().Membership()
				return state
			}, 2*time.Second, 10*time.Millisecond).Should(Equal(cluster.ViewCommit))
		}

		for _, cc := range ctxs {
			clique, _, _ := cc.Supervisor.Agreement().Membership()
			Expect(clique).To(Equal(ids))
			leader, ok := sup.Leader(clique)
			Expect(ok).To(BeTrue())
			Expect(leader).To(Equal(cluster.NodeID(1)))
		}
	})
})
