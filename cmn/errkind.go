// Package cmn provides the ambient stack shared by every core package:
// the closed error-kind enum, the global config owner, small debug
// asserts, and marshal/format helpers used throughout the engine.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "fmt"

// ErrKind is the closed list of error kinds from which every local
// handler, barrier, and cluster command reply is built. New members
// must never be added ad hoc by a component — the enum is the
// contract that exec_command/barrier aggregation (§4.4) depends on.
type ErrKind int

const (
	Success ErrKind = iota
	NothingToDo

	InvalidParam
	UnknownNode
	UnknownGroup
	UnknownVolume
	UnknownDisk

	ResourceInUse
	ResourceInvalid

	GroupNotStarted
	GroupNotStopped
	GroupOffline
	GroupNotAdministrable

	VolumeNotStarted
	VolumeNotStopped

	NodeDown

	NetworkDown
	NetworkFirewalled
	OutOfMemory

	MetadataCorruption

	License
	QuorumPreserve

	TooManyDisks
	TooManyDisksInNode
)

var errKindNames = map[ErrKind]string{
	Success:               "SUCCESS",
	NothingToDo:           "NOTHING_TO_DO",
	InvalidParam:          "INVALID_PARAM",
	UnknownNode:           "UNKNOWN_NODE",
	UnknownGroup:          "UNKNOWN_GROUP",
	UnknownVolume:         "UNKNOWN_VOLUME",
	UnknownDisk:           "UNKNOWN_DISK",
	ResourceInUse:         "RESOURCE_IN_USE",
	ResourceInvalid:       "RESOURCE_INVALID",
	GroupNotStarted:       "GROUP_NOT_STARTED",
	GroupNotStopped:       "GROUP_NOT_STOPPED",
	GroupOffline:          "GROUP_OFFLINE",
	GroupNotAdministrable: "GROUP_NOT_ADMINISTRABLE",
	VolumeNotStarted:      "VOLUME_NOT_STARTED",
	VolumeNotStopped:      "VOLUME_NOT_STOPPED",
	NodeDown:              "NODE_DOWN",
	NetworkDown:           "NETWORK_DOWN",
	NetworkFirewalled:     "NETWORK_FIREWALLED",
	OutOfMemory:           "OUT_OF_MEMORY",
	MetadataCorruption:    "METADATA_CORRUPTION",
	License:               "LICENSE",
	QuorumPreserve:        "QUORUM_PRESERVE",
	TooManyDisks:          "TOO_MANY_DISKS",
	TooManyDisksInNode:    "TOO_MANY_DISKS_IN_NODE",
}

func (k ErrKind) String() string {
	if s, ok := errKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrKind(%d)", int(k))
}

// transient reports whether retrying the same operation, unmodified,
// may eventually succeed (§7: NODE_DOWN, NETWORK_*, OUT_OF_MEMORY).
func (k ErrKind) Transient() bool {
	switch k {
	case NodeDown, NetworkDown, NetworkFirewalled, OutOfMemory:
		return true
	default:
		return false
	}
}

// Benign folds to success when aggregated (§7, §4.4 precedence table).
func (k ErrKind) Benign() bool {
	return k == Success || k == NothingToDo
}

// Fatal disables further writes to the affected group until an
// explicit reset (§7: METADATA_CORRUPTION).
func (k ErrKind) Fatal() bool {
	return k == MetadataCorruption
}

// ErrDesc is the single descriptor a cluster handler reports back to
// the CLI caller: a closed code plus a human message (§6).
type ErrDesc struct {
	Kind ErrKind
	Msg  string
}

func (e *ErrDesc) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func NewErrDesc(kind ErrKind, format string, a ...interface{}) *ErrDesc {
	return &ErrDesc{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

// Precedence implements the aggregation order from §4.4:
// METADATA_CORRUPTION > NODE_DOWN > any other nonzero code >
// NOTHING_TO_DO > SUCCESS.
func precedence(k ErrKind) int {
	switch {
	case k == MetadataCorruption:
		return 4
	case k == NodeDown:
		return 3
	case k == Success:
		return 0
	case k == NothingToDo:
		return 1
	default:
		return 2
	}
}

// Aggregate folds a batch of per-node results into the one cluster-wide
// result using the §4.4 precedence. It is the single implementation
// shared by exec_command, barrier, service phase runs, and the recovery
// driver, so
// every aggregation point in the engine agrees on tie-breaking.
func Aggregate(kinds []ErrKind) ErrKind {
	if len(kinds) == 0 {
		return Success
	}
	best := kinds[0]
	for _, k := range kinds[1:] {
		if precedence(k) > precedence(best) {
			best = k
		} else if precedence(k) == precedence(best) && precedence(k) == 2 && k != best {
			// two distinct "other nonzero" codes: keep the first seen,
			// deterministically, rather than silently picking either.
			continue
		}
	}
	return best
}
