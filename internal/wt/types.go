// Package wt implements the work-thread RPC-and-barrier primitive
// (§4.4): exec_command fan-out with result aggregation, named barriers,
// non-barrier broadcast, and NODE_DOWN-driven cancellation. Grounded on
// aistore's broadcast-then-collect loop in ais/metasync.go, which
// already tracks one pending call per in-flight sync and resolves it
// from asynchronous HTTP replies.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package wt

import (
	"context"

	"github.com/OznOg/exanodes-admind/cluster"
	"github.com/OznOg/exanodes-admind/cmn"
	"github.com/OznOg/exanodes-admind/internal/msg"
)

// BarrierName is an interned barrier identifier. Every participant
// must agree on both the name and its ordinal position in the
// service's barrier sequence. The name travels in CallRequest only;
// CallReply carries no name, so this package does not check cross-node
// equality and a divergent participant goes undetected here.
type BarrierName string

// CallRequest is the wire body carried inside a msg.Envelope payload
// for exec_command and barrier calls.
type CallRequest struct {
	CallID  uint64        `json:"call_id"`
	Barrier BarrierName   `json:"barrier,omitempty"`
	Body    []byte        `json:"body"`
}

// CallReply is the wire body for the matching response.
type CallReply struct {
	CallID uint64       `json:"call_id"`
	Kind   cmn.ErrKind  `json:"kind"`
	Body   []byte       `json:"body,omitempty"`
}

// Sender is the messaging dependency the work-thread drives; satisfied
// by *msg.Substrate.
type Sender interface {
	Send(ctx context.Context, dest cluster.NodeID, mailbox msg.MailboxID, payload []byte) error
}
