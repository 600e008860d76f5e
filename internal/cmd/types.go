// Package cmd implements the cluster command dispatcher and catalogue
// (§4.6): a closed command-code enum, per-command admind-state mask,
// cluster-uuid match and recovery-allowed flags, and registration that
// rejects duplicate codes at startup. Grounded on aistore's HTTP
// verb/action dispatch table (ais/prxclu.go's switch-on-action
// pattern), generalized to a typed registry instead of a string switch.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmd

import (
	"context"

	"github.com/OznOg/exanodes-admind/cmn"
)

// Code is the closed cluster-command enum (§6), covering the full
// cl*/dg*/vl*/fs* catalogue (original source: admind/src/commands/*.c).
type Code int

const (
	ClCreate Code = iota
	ClDelete
	ClInfo
	ClInit
	ClDiskAdd
	ClDiskDel
	ClNodeAdd
	ClNodeDel
	ClNodeStop
	ClShutdown
	ClStats
	ClTrace
	ClTune

	DgCreate
	DgDelete
	DgDiskAdd
	DgDiskRecover
	DgStart
	DgStop
	DgReset
	DgCheck

	VlCreate
	VlDelete
	VlResize
	VlStart
	VlStop
	VlTune
	VlGetTune

	FsExport
	FsUnexport
)

var codeNames = map[Code]string{
	ClCreate: "clcreate", ClDelete: "cldelete", ClInfo: "clinfo", ClInit: "clinit",
	ClDiskAdd: "cldiskadd", ClDiskDel: "cldiskdel", ClNodeAdd: "clnodeadd",
	ClNodeDel: "clnodedel", ClNodeStop: "clnodestop", ClShutdown: "clshutdown",
	ClStats: "clstats", ClTrace: "cltrace", ClTune: "cltune",
	DgCreate: "dgcreate", DgDelete: "dgdelete", DgDiskAdd: "dgdiskadd",
	DgDiskRecover: "dgdiskrecover", DgStart: "dgstart", DgStop: "dgstop",
	DgReset: "dgreset", DgCheck: "dgcheck",
	VlCreate: "vlcreate", VlDelete: "vldelete", VlResize: "vlresize",
	VlStart: "vlstart", VlStop: "vlstop", VlTune: "vltune", VlGetTune: "vlgettune",
	FsExport: "fsexport", FsUnexport: "fsunexport",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "unknown-command"
}

// Args is the typed argument document every command handler receives
// (§6): a flat key=value set plus the two defaults every leaf command
// honours unless it declares otherwise.
type Args struct {
	Values    map[string]string
	Recursive bool
	Force     bool
}

func (a Args) Get(key string) (string, bool) {
	v, ok := a.Values[key]
	return v, ok
}

func (a Args) GetDefault(key, def string) string {
	if v, ok := a.Values[key]; ok {
		return v
	}
	return def
}

// Handler implements one command's cluster-wide behaviour.
type Handler func(ctx context.Context, args Args) *cmn.ErrDesc

// Command is one catalogue entry (§4.6).
type Command struct {
	Code Code

	// AllowedStates is the admind-state mask the command may run in.
	AllowedStates cmn.StateMask

	// RequireClusterUUID, when true, rejects a call whose stamped
	// cluster-uuid does not match this admind's own.
	RequireClusterUUID bool

	// AllowedInRecovery permits the command to run while a recovery
	// pass is in progress (§4.6); most commands do not.
	AllowedInRecovery bool

	Handler Handler
}
