/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package admind

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
	"github.com/OznOg/exanodes-admind/internal/cmd"
	"github.com/OznOg/exanodes-admind/internal/evmgr"
	"github.com/OznOg/exanodes-admind/internal/msg"
	"github.com/OznOg/exanodes-admind/internal/rec"
	"github.com/OznOg/exanodes-admind/internal/sb"
	"github.com/OznOg/exanodes-admind/internal/stats"
	"github.com/OznOg/exanodes-admind/internal/sup"
	"github.com/OznOg/exanodes-admind/internal/svc"
	"github.com/OznOg/exanodes-admind/internal/wt"
)

// CoreContext is the one process-wide object assembled at startup,
// grounded on aistore's daemon context in ais/daemon.go: every
// other package is constructed once, wired together here, and handed
// to the daemon runners instead of relying on package-level globals.
type CoreContext struct {
	Config *cmn.Config
	Stats  *stats.Registry

	Cluster   *cluster.Cluster
	Mailboxes *msg.Registry
	Substrate *msg.Substrate

	Supervisor *sup.Supervisor
	EventMgr   *evmgr.EventManager
	WorkThread *wt.WorkThread
	Services   *svc.Registry
	Recovery   *rec.Driver
	Audit      *rec.Audit
	SB         *sb.Manager
	Dispatcher *cmd.Dispatcher
	Tunes      *cmd.TuneStore
}

// NewCoreContext builds every core package and wires it to the others
// per the dependency order msg -> sup -> evmgr -> wt -> svc -> rec ->
// sb -> cmd. transport is the live network dependency (UDPTransport in
// production, an in-memory fake in tests).
func NewCoreContext(cfg *cmn.Config, cl *cluster.Cluster, transport msg.Transport, tunes map[string]string) (*CoreContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "admind: invalid configuration")
	}

	var clusterUUID [16]byte
	copy(clusterUUID[:], cfg.ClusterUUID)

	statsReg := stats.NewRegistry()

	mailboxes := msg.NewRegistry()
	substrate := msg.NewSubstrate(transport, mailboxes, cluster.NodeID(cfg.NodeID), cfg.NodeName, clusterUUID, len(cl.KnownNodeIDs())).
		WithStats(statsReg)

	supervisor := sup.NewSupervisor(cluster.NodeID(cfg.NodeID), cl, substrate, cfg.Membership)
	substrate.OnSpecial(func(e *msg.Envelope) {
		n := cl.Node(e.SenderID)
		if n == nil {
			return
		}
		n.Touch()
		var ping msg.PingPayload
		if err := cmn.Unmarshal(e.Payload, &ping); err != nil {
			return
		}
		n.SetSeen(ping.Seen)
	})

	eventMgr := evmgr.NewEventManager(cluster.NodeID(cfg.NodeID))

	workThread := wt.NewWorkThread(substrate).WithStats(statsReg)

	services := svc.NewRegistry()

	audit := rec.NewAudit()
	recoveryCall := &recoveryCaller{wt: workThread}
	driver := rec.NewDriver(services, audit, recoveryCall, cluster.NodeID(cfg.NodeID)).WithStats(statsReg)

	sbMgr := sb.NewManager(workThread)

	tuneStore := cmd.NewTuneStore(tunes)
	dispatcher := cmd.NewDispatcher(cfg.ClusterUUID)
	if err := cmd.RegisterDefaultCatalogue(dispatcher, cl, tuneStore, services); err != nil {
		return nil, errors.Wrap(err, "admind: registering command catalogue")
	}

	cc := &CoreContext{
		Config:     cfg,
		Stats:      statsReg,
		Cluster:    cl,
		Mailboxes:  mailboxes,
		Substrate:  substrate,
		Supervisor: supervisor,
		EventMgr:   eventMgr,
		WorkThread: workThread,
		Services:   services,
		Recovery:   driver,
		Audit:      audit,
		SB:         sbMgr,
		Dispatcher: dispatcher,
		Tunes:      tuneStore,
	}

	eventMgr.OnChange(cc.onMembershipChange)
	supervisor.OnCliqueChange(cc.onCliqueChange)

	return cc, nil
}

// onCliqueChange fires every time this node's own view of the
// reachable set changes. Only the clique's coordinator (lowest-id
// member, §4.2) originates a round: it proposes the next generation as
// one past the highest generation any clique member has reached,
// applies it locally, and broadcasts CHANGE so every other member
// adopts that exact value instead of computing its own. Followers
// reach CHANGE through applyAgreement's agreementChange case below,
// triggered by the wire message this broadcast produces.
func (c *CoreContext) onCliqueChange(clique []cluster.NodeID) {
	coord, ok := sup.Coordinator(clique)
	self := c.Cluster.Self()
	if !ok || coord != self {
		return
	}
	agreement := c.Supervisor.Agreement()
	generation := agreement.StartChange(clique)
	c.broadcastAgreement(agreementMsg{Phase: agreementChange, Generation: generation, From: self, Clique: clique}, clique)
	c.castAndBroadcast(agreementAccept, generation, clique)
}

type agreementPhase uint8

const (
	agreementChange agreementPhase = iota
	agreementAccept
	agreementCommit
)

type agreementMsg struct {
	Phase      agreementPhase   `json:"phase"`
	Generation uint64           `json:"generation"`
	From       cluster.NodeID   `json:"from"`
	Clique     []cluster.NodeID `json:"clique,omitempty"`
}

// broadcastAgreement sends am to every other member of clique, without
// touching local state — castAndBroadcast and onCliqueChange each apply
// am to this node separately, before or instead of calling this.
func (c *CoreContext) broadcastAgreement(am agreementMsg, clique []cluster.NodeID) {
	self := c.Cluster.Self()
	dest := make(map[cluster.NodeID]struct{}, len(clique))
	for _, id := range clique {
		if id != self {
			dest[id] = struct{}{}
		}
	}
	if len(dest) == 0 {
		return
	}
	if err := c.Substrate.Broadcast(context.Background(), dest, msg.MailboxSup, cmn.MustMarshal(am)); err != nil {
		glog.Warningf("admind: broadcasting agreement phase %d failed: %v", am.Phase, err)
	}
}

func (c *CoreContext) castAndBroadcast(phase agreementPhase, generation uint64, clique []cluster.NodeID) {
	am := agreementMsg{Phase: phase, Generation: generation, From: c.Cluster.Self()}
	c.applyAgreement(am)
	c.broadcastAgreement(am, clique)
}

// applyAgreement feeds one CHANGE/ACCEPT/COMMIT record (ours or a
// peer's) into the local Agreement state machine and advances the
// round when it does.
func (c *CoreContext) applyAgreement(am agreementMsg) {
	agreement := c.Supervisor.Agreement()
	switch am.Phase {
	case agreementChange:
		// Reached only by a follower: adopt the coordinator's
		// generation verbatim instead of computing a local one
		// (§4.2), then cast our own ACCEPT for it.
		agreement.OnChange(am.Generation, am.Clique)
		c.castAndBroadcast(agreementAccept, am.Generation, am.Clique)
	case agreementAccept:
		if agreement.OnAccept(am.Generation, am.From) {
			clique, generation, _ := agreement.Membership()
			c.castAndBroadcast(agreementCommit, generation, clique)
		}
	case agreementCommit:
		if agreement.OnCommit(am.Generation, am.From) {
			clique, _, _ := agreement.Membership()
			c.EventMgr.Apply(clique)
		}
	}
}

// onMembershipChange is evmgr's callback for every freshly committed
// round (§4.3): it fences departed nodes from further substrate
// traffic, cancels their in-flight work-thread calls, and — on the
// leader only, since "only the leader drives the pipeline" — runs a
// recovery pass fanned out to the rest of up ∪ going_up and, once that
// succeeds, resyncs every group's superblock triplet to the nodes that
// just came up.
func (c *CoreContext) onMembershipChange(change evmgr.MembershipChange) {
	for _, id := range change.GoingDown {
		c.Substrate.Fence(id)
		c.WorkThread.NodeDown(id)
	}
	for _, id := range change.GoingUp {
		c.Substrate.Unfence(id)
	}

	if !change.IsLeader {
		return
	}

	c.Dispatcher.SetRecovering(true)
	res := c.Recovery.Run(context.Background(), change.Up)
	c.Dispatcher.SetRecovering(false)

	if res.State == rec.StateDone && len(change.GoingUp) > 0 {
		c.resyncSuperblocks(context.Background(), change.GoingUp)
	}

	glog.Infof("admind: membership generation %d settled, recovery %s (leader=%v)", res.Generation, res.State, change.IsLeader)
}

// resyncSuperblocks sends every group's current superblock triplet to
// a newly-joined node as a fire-and-forget bcast, giving a rejoining
// node's sb.Manager the same (committed, prepared, in-flight) state as
// the rest of the cluster without waiting for its next natural
// prepare/commit cycle.
func (c *CoreContext) resyncSuperblocks(ctx context.Context, goingUp []cluster.NodeID) {
	for _, g := range c.Cluster.Groups() {
		body := cmn.MustMarshal(recoveryBody{SBGroupUUID: g.UUID, SBTriplet: c.SB.SyncSnapshot(g.UUID)})
		if err := c.WorkThread.Bcast(ctx, goingUp, msg.MailboxRecovery, body); err != nil {
			glog.Warningf("admind: bcasting superblock resync for group %s: %v", g.UUID, err)
		}
	}
}

// pumpAgreementMailbox drains MailboxSup for incoming agreement
// messages until ctx is cancelled. Ping's own special envelopes never
// reach a mailbox (msg.Substrate.OnSpecial handles those separately);
// everything else delivered here is a peer's CHANGE, ACCEPT or COMMIT.
func (c *CoreContext) pumpAgreementMailbox(ctx context.Context) error {
	box, err := c.Mailboxes.Mailbox(msg.MailboxSup)
	if err != nil {
		return err
	}
	for {
		e, err := box.Recv(ctx)
		if err != nil {
			return err
		}
		var am agreementMsg
		if err := cmn.Unmarshal(e.Payload, &am); err != nil {
			glog.Warningf("admind: undecodable agreement message from node %d: %v", e.SenderID, err)
			continue
		}
		c.applyAgreement(am)
	}
}

// pumpCallMailbox drains a barrier/exec_command reply mailbox,
// feeding every decoded wt.CallReply back into the work thread.
func (c *CoreContext) pumpCallMailbox(ctx context.Context, id msg.MailboxID) error {
	box, err := c.Mailboxes.Mailbox(id)
	if err != nil {
		return err
	}
	for {
		e, err := box.Recv(ctx)
		if err != nil {
			return err
		}
		var reply wt.CallReply
		if err := cmn.Unmarshal(e.Payload, &reply); err != nil {
			glog.Warningf("admind: undecodable call reply on mailbox %d from node %d: %v", id, e.SenderID, err)
			continue
		}
		c.WorkThread.OnReply(e.SenderID, reply)
	}
}

// recoveryBody is the wire body carried on msg.MailboxRecovery (§4.3,
// §4.7): either a phase to run locally (the leader's exec_command
// fan-out, awaiting a CallReply) or a superblock triplet to adopt
// outright (the leader's fire-and-forget resync bcast to a rejoining
// node, no reply expected).
type recoveryBody struct {
	Phase       *svc.Phase `json:"phase,omitempty"`
	SBGroupUUID string     `json:"sb_group_uuid,omitempty"`
	SBTriplet   []byte     `json:"sb_triplet,omitempty"`
}

// recoveryCaller adapts *wt.WorkThread to rec.Caller, marshaling each
// phase into a recoveryBody so internal/rec never needs to know the
// wire format.
type recoveryCaller struct {
	wt *wt.WorkThread
}

func (r *recoveryCaller) RunPhaseOn(ctx context.Context, members []cluster.NodeID, phase svc.Phase) (cmn.ErrKind, error) {
	p := phase
	body := cmn.MustMarshal(recoveryBody{Phase: &p})
	kind, _, err := r.wt.ExecCommand(ctx, members, msg.MailboxRecovery, body)
	return kind, err
}

// pumpRecoveryMailbox drains MailboxRecovery until ctx is cancelled,
// servicing both message shapes recoveryBody carries: a phase request
// from the leader (run it locally, reply with the aggregate result) or
// a superblock resync bcast (apply it, no reply).
func (c *CoreContext) pumpRecoveryMailbox(ctx context.Context) error {
	box, err := c.Mailboxes.Mailbox(msg.MailboxRecovery)
	if err != nil {
		return err
	}
	for {
		e, err := box.Recv(ctx)
		if err != nil {
			return err
		}
		var req wt.CallRequest
		if err := cmn.Unmarshal(e.Payload, &req); err != nil {
			glog.Warningf("admind: undecodable recovery request from node %d: %v", e.SenderID, err)
			continue
		}
		var body recoveryBody
		if err := cmn.Unmarshal(req.Body, &body); err != nil {
			glog.Warningf("admind: undecodable recovery body from node %d: %v", e.SenderID, err)
			continue
		}
		switch {
		case body.Phase != nil:
			c.Dispatcher.SetRecovering(true)
			kind, _ := svc.RunPhase(ctx, c.Services, *body.Phase)
			c.Dispatcher.SetRecovering(false)
			c.replyRecovery(ctx, e.SenderID, req.CallID, kind)
		case body.SBGroupUUID != "":
			if err := c.SB.ApplySyncSnapshot(body.SBGroupUUID, body.SBTriplet); err != nil {
				glog.Warningf("admind: applying superblock resync for group %s from node %d: %v", body.SBGroupUUID, e.SenderID, err)
			}
		}
	}
}

// replyRecovery answers a recovery phase request, routing the reply to
// the even or odd barrier-reply mailbox by the call id's parity — the
// same convention pumpCallMailbox already drains both halves of.
func (c *CoreContext) replyRecovery(ctx context.Context, dest cluster.NodeID, callID uint64, kind cmn.ErrKind) {
	mailbox := msg.MailboxBarrierEven
	if callID%2 == 1 {
		mailbox = msg.MailboxBarrierOdd
	}
	reply := wt.CallReply{CallID: callID, Kind: kind}
	if err := c.Substrate.Send(ctx, dest, mailbox, cmn.MustMarshal(reply)); err != nil {
		glog.Warningf("admind: replying recovery phase to node %d failed: %v", dest, err)
	}
}

// String identifies this context in logs, mirroring aistore's
// daemon-name-in-every-log-line convention.
func (c *CoreContext) String() string {
	return fmt.Sprintf("admind[%s/%d]", c.Config.ClusterUUID, c.Config.NodeID)
}
