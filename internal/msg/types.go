// Package msg implements the messaging substrate (§4.1): per-component
// mailboxes and a cluster-wide multicast channel with per-sender
// sequence numbers, loss detection, retransmit requests, and fencing.
// Retransmit requests are sent and coalesced, but the substrate keeps
// no history of what it sent and does not resend a message in answer
// to one. It is the leaf dependency every other core package builds on
// (§2 item 1).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package msg

import "github.com/OznOg/exanodes-admind/cluster"

// MailboxID is the closed per-component enum from §6.
type MailboxID uint8

const (
	MailboxCLI MailboxID = iota
	MailboxInfo
	MailboxRecovery
	MailboxSup
	MailboxBarrierEven
	MailboxBarrierOdd

	numMailboxes
)

// Flags are the wire flag bits from §6.
type Flags uint8

const (
	FlagRetransmit Flags = 1 << iota // RTRANS: retransmit request
	FlagSpecial                      // SPECIAL: ping or other out-of-band
)

// SpecialType distinguishes special (out-of-band) message payloads.
type SpecialType int

const (
	SpecialPing SpecialType = iota
)

// PingPayload is the special ping message body (§4.1, §6): "carries
// the sender's next sequence number but [is] not themselves
// sequence-checked". Seen piggybacks the sender's own nodes_seen set
// (§3, §4.2: "each instance periodically broadcasts a ping carrying
// ... its nodes_seen"), which is what lets a peer's clique computation
// judge mutual visibility instead of assuming everyone shares the
// observer's own view.
type PingPayload struct {
	Type SpecialType
	Seq  uint16
	Seen []cluster.NodeID
}

// RetransmitRequest names the missing sequence a receiver is asking
// the sender to resend (§4.1).
type RetransmitRequest struct {
	Seq uint16
}

const (
	ProtocolTag = uint32(2)

	// MaxPayload bounds a single wire message to the §6 budget (~10KiB).
	MaxPayload = 10 * 1024
)

// Envelope is the decoded form of the §6 wire message.
type Envelope struct {
	Protocol      uint32
	ClusterUUID   [16]byte
	SenderID      cluster.NodeID
	SenderName    string // cstr(72)
	Recipient     MailboxID
	Flags         Flags
	DestNodes     map[cluster.NodeID]struct{}
	Incarnation   uint16
	Sequence      uint16
	Payload       []byte
}

func (e *Envelope) IsSpecial() bool     { return e.Flags&FlagSpecial != 0 }
func (e *Envelope) IsRetransmit() bool  { return e.Flags&FlagRetransmit != 0 }
