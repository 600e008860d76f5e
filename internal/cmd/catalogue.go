package cmd

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
	"github.com/OznOg/exanodes-admind/internal/svc"
)

// stub returns a handler that does nothing and reports NOTHING_TO_DO
// with the command's name as its message — used for the part of the catalogue whose cluster-wide behaviour
// belongs to services not modeled by this core (fs* commands) or whose
// reference semantics are exercised at the svc/rec/sb layer rather than
// here (dg*/vl* structural commands).
func stub(msg string) Handler {
	return func(ctx context.Context, args Args) *cmn.ErrDesc {
		return cmn.NewErrDesc(cmn.NothingToDo, "%s", msg)
	}
}

// fsStub rejects fs* commands the way the original build does when
// compiled without filesystem-export support (original source: the
// #ifdef WITH_FS gate around the fs* command table).
func fsStub() Handler {
	return func(ctx context.Context, args Args) *cmn.ErrDesc {
		return cmn.NewErrDesc(cmn.InvalidParam, "filesystem service not compiled in")
	}
}

// RegisterDefaultCatalogue wires the full cl*/dg*/vl*/fs* command set
// (§2's "command catalogue (reference stubs)" budget item) into d.
// cl, tunes and services back the commands with real behaviour
// (clnodestop's quorum check and service stop, cltune/vltune's
// default-restore idempotence, cldiskadd's disk-count boundaries,
// dgcreate/vlcreate registering the new group or volume); the rest
// are reference stubs that validate dispatch plumbing without
// implementing per-service leaf logic, which is out of this core's
// scope (§1).
func RegisterDefaultCatalogue(d *Dispatcher, cl *cluster.Cluster, tunes *TuneStore, services *svc.Registry) error {
	started := cmn.MaskOf(cmn.StateStarted)
	startedOrStarting := cmn.MaskOf(cmn.StateStarting, cmn.StateStarted)

	cmds := []*Command{
		{Code: ClCreate, AllowedStates: cmn.MaskOf(cmn.StateNoConfig), Handler: stub("clcreate")},
		{Code: ClDelete, AllowedStates: started, RequireClusterUUID: true, Handler: stub("cldelete")},
		{Code: ClInfo, AllowedStates: cmn.AnyState, AllowedInRecovery: true, Handler: stub("clinfo")},
		{Code: ClInit, AllowedStates: cmn.MaskOf(cmn.StateStopped), Handler: stub("clinit")},
		{Code: ClDiskAdd, AllowedStates: started, RequireClusterUUID: true, Handler: clDiskAddHandler(cl)},
		{Code: ClDiskDel, AllowedStates: started, RequireClusterUUID: true, Handler: stub("cldiskdel")},
		{Code: ClNodeAdd, AllowedStates: started, RequireClusterUUID: true, Handler: stub("clnodeadd")},
		{Code: ClNodeDel, AllowedStates: started, RequireClusterUUID: true, Handler: stub("clnodedel")},
		{Code: ClNodeStop, AllowedStates: started, RequireClusterUUID: true, Handler: clNodeStopHandler(cl, services)},
		{Code: ClShutdown, AllowedStates: startedOrStarting, RequireClusterUUID: true, AllowedInRecovery: true, Handler: stub("clshutdown")},
		{Code: ClStats, AllowedStates: cmn.AnyState, AllowedInRecovery: true, Handler: stub("clstats")},
		{Code: ClTrace, AllowedStates: cmn.AnyState, AllowedInRecovery: true, Handler: stub("cltrace")},
		{Code: ClTune, AllowedStates: started, RequireClusterUUID: true, Handler: clTuneHandler(tunes)},

		{Code: DgCreate, AllowedStates: started, RequireClusterUUID: true, Handler: dgCreateHandler(cl)},
		{Code: DgDelete, AllowedStates: started, RequireClusterUUID: true, Handler: stub("dgdelete")},
		{Code: DgDiskAdd, AllowedStates: started, RequireClusterUUID: true, Handler: stub("dgdiskadd")},
		{Code: DgDiskRecover, AllowedStates: started, RequireClusterUUID: true, Handler: stub("dgdiskrecover")},
		{Code: DgStart, AllowedStates: started, RequireClusterUUID: true, Handler: stub("dgstart")},
		{Code: DgStop, AllowedStates: started, RequireClusterUUID: true, Handler: stub("dgstop")},
		{Code: DgReset, AllowedStates: started, RequireClusterUUID: true, Handler: stub("dgreset")},
		{Code: DgCheck, AllowedStates: cmn.AnyState, RequireClusterUUID: true, AllowedInRecovery: true, Handler: stub("dgcheck")},

		{Code: VlCreate, AllowedStates: started, RequireClusterUUID: true, Handler: vlCreateHandler(cl)},
		{Code: VlDelete, AllowedStates: started, RequireClusterUUID: true, Handler: stub("vldelete")},
		{Code: VlResize, AllowedStates: started, RequireClusterUUID: true, Handler: stub("vlresize")},
		{Code: VlStart, AllowedStates: started, RequireClusterUUID: true, Handler: stub("vlstart")},
		{Code: VlStop, AllowedStates: started, RequireClusterUUID: true, Handler: stub("vlstop")},
		{Code: VlTune, AllowedStates: started, RequireClusterUUID: true, Handler: clTuneHandler(tunes)},
		{Code: VlGetTune, AllowedStates: cmn.AnyState, RequireClusterUUID: true, AllowedInRecovery: true, Handler: stub("vlgettune")},

		{Code: FsExport, AllowedStates: cmn.AnyState, Handler: fsStub()},
		{Code: FsUnexport, AllowedStates: cmn.AnyState, Handler: fsStub()},
	}

	for _, c := range cmds {
		if err := d.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func clTuneHandler(tunes *TuneStore) Handler {
	return func(ctx context.Context, args Args) *cmn.ErrDesc {
		k, ok := args.Get("k")
		if !ok || k == "" {
			return cmn.NewErrDesc(cmn.InvalidParam, "missing tunable name")
		}
		v := args.GetDefault("v", "")
		applied := tunes.Set(k, v)
		return cmn.NewErrDesc(cmn.Success, "%s=%s", k, applied)
	}
}

func clNodeStopHandler(cl *cluster.Cluster, services *svc.Registry) Handler {
	return func(ctx context.Context, args Args) *cmn.ErrDesc {
		nodeArg, ok := args.Get("node")
		if !ok {
			return cmn.NewErrDesc(cmn.InvalidParam, "missing node argument")
		}
		target := parseNodeID(nodeArg)
		if !cl.Contains(target) {
			return cmn.NewErrDesc(cmn.UnknownNode, "node %s", nodeArg)
		}
		if !args.Force && ViolatesQuorumPreserve(cl, target) {
			return cmn.NewErrDesc(cmn.QuorumPreserve, "stopping node %s would break quorum, retry with --force", nodeArg)
		}
		nodes := []cluster.NodeID{target}
		if kind, _ := svc.RunStop(ctx, services, nodes); !kind.Benign() {
			return cmn.NewErrDesc(kind, "stopping node %s: service stop failed", nodeArg)
		}
		return cmn.NewErrDesc(cmn.Success, "node %s stopped", nodeArg)
	}
}

func clDiskAddHandler(cl *cluster.Cluster) Handler {
	return func(ctx context.Context, args Args) *cmn.ErrDesc {
		uuid, ok := args.Get("uuid")
		if !ok {
			return cmn.NewErrDesc(cmn.InvalidParam, "missing disk uuid")
		}
		nodeArg, ok := args.Get("node")
		if !ok {
			return cmn.NewErrDesc(cmn.InvalidParam, "missing node argument")
		}
		path := args.GetDefault("path", "")
		d := &cluster.Disk{UUID: uuid, OwnerNode: parseNodeID(nodeArg), Path: path}
		if err := cl.AddDisk(d); err != nil {
			switch err {
			case cluster.ErrTooManyDisks:
				return cmn.NewErrDesc(cmn.TooManyDisks, "%v", err)
			case cluster.ErrTooManyDisksInNode:
				return cmn.NewErrDesc(cmn.TooManyDisksInNode, "%v", err)
			default:
				return cmn.NewErrDesc(cmn.InvalidParam, "%v", err)
			}
		}
		return cmn.NewErrDesc(cmn.Success, "disk %s added", uuid)
	}
}

// dgCreateHandler registers a new group, generating its UUID with
// google/uuid when the caller does not supply one (original source:
// exa_dgcreate.c assigns a fresh uuid at creation time).
func dgCreateHandler(cl *cluster.Cluster) Handler {
	return func(ctx context.Context, args Args) *cmn.ErrDesc {
		name, ok := args.Get("name")
		if !ok {
			return cmn.NewErrDesc(cmn.InvalidParam, "missing group name")
		}
		layout := args.GetDefault("layout", "raid1")
		id := args.GetDefault("uuid", uuid.New().String())
		g := cluster.NewGroup(id, name, layout)
		if err := cl.AddGroup(g); err != nil {
			return cmn.NewErrDesc(cmn.ResourceInvalid, "%v", err)
		}
		return cmn.NewErrDesc(cmn.Success, "group %s created (%s)", name, id)
	}
}

// vlCreateHandler registers a new volume within an existing group,
// generating its UUID with google/uuid when the caller does not
// supply one.
func vlCreateHandler(cl *cluster.Cluster) Handler {
	return func(ctx context.Context, args Args) *cmn.ErrDesc {
		groupUUID, ok := args.Get("group")
		if !ok {
			return cmn.NewErrDesc(cmn.InvalidParam, "missing group uuid")
		}
		g := cl.Group(groupUUID)
		if g == nil {
			return cmn.NewErrDesc(cmn.UnknownGroup, "group %s", groupUUID)
		}
		name, ok := args.Get("name")
		if !ok {
			return cmn.NewErrDesc(cmn.InvalidParam, "missing volume name")
		}
		sizeKB, err := strconv.ParseInt(args.GetDefault("size_kb", "0"), 10, 64)
		if err != nil || sizeKB <= 0 {
			return cmn.NewErrDesc(cmn.InvalidParam, "invalid size_kb")
		}
		id := args.GetDefault("uuid", uuid.New().String())
		v := cluster.NewVolume(id, groupUUID, name, sizeKB)
		if err := g.AddVolume(v); err != nil {
			return cmn.NewErrDesc(cmn.ResourceInvalid, "%v", err)
		}
		return cmn.NewErrDesc(cmn.Success, "volume %s created in group %s (%s)", name, groupUUID, id)
	}
}

func parseNodeID(s string) cluster.NodeID {
	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + uint64(r-'0')
	}
	return cluster.NodeID(n)
}
