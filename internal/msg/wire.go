package msg

import (
	"encoding/binary"
	"fmt"

	"github.com/OznOg/exanodes-admind/cluster"
)

const senderNameLen = 72

// Encode produces the §6 wire layout:
//   [protocol u32][cluster-uuid 16B][sender-id u32][sender-name cstr(72)]
//   [recipient u8][flags u8][size u16][dest-bitmap][incarnation u16][sequence u16][payload]
//
// The dest-node-set bitmap is one bit per known node-id, sized to the
// caller-supplied node count so it never needs a separate length
// prefix (the node count is known to both ends from the current
// membership).
func Encode(e *Envelope, knownNodeCount int) ([]byte, error) {
	if len(e.Payload) > MaxPayload {
		return nil, fmt.Errorf("payload too large: %d > %d", len(e.Payload), MaxPayload)
	}
	if len(e.SenderName) > senderNameLen-1 {
		return nil, fmt.Errorf("sender name too long: %q", e.SenderName)
	}
	bitmapLen := (knownNodeCount + 7) / 8
	buf := make([]byte, 0, 4+16+4+senderNameLen+1+1+2+bitmapLen+2+2+len(e.Payload))

	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], e.Protocol)
	buf = append(buf, tmp4[:]...)

	buf = append(buf, e.ClusterUUID[:]...)

	binary.BigEndian.PutUint32(tmp4[:], uint32(e.SenderID))
	buf = append(buf, tmp4[:]...)

	name := make([]byte, senderNameLen)
	copy(name, e.SenderName)
	buf = append(buf, name...)

	buf = append(buf, byte(e.Recipient))
	buf = append(buf, byte(e.Flags))

	var tmp2 [2]byte
	binary.BigEndian.PutUint16(tmp2[:], uint16(len(e.Payload)))
	buf = append(buf, tmp2[:]...)

	bitmap := make([]byte, bitmapLen)
	for id := range e.DestNodes {
		byteIdx, bitIdx := int(id)/8, uint(id)%8
		if byteIdx < len(bitmap) {
			bitmap[byteIdx] |= 1 << bitIdx
		}
	}
	buf = append(buf, bitmap...)

	binary.BigEndian.PutUint16(tmp2[:], e.Incarnation)
	buf = append(buf, tmp2[:]...)
	binary.BigEndian.PutUint16(tmp2[:], e.Sequence)
	buf = append(buf, tmp2[:]...)

	buf = append(buf, e.Payload...)
	return buf, nil
}

func Decode(b []byte, knownNodeCount int) (*Envelope, error) {
	bitmapLen := (knownNodeCount + 7) / 8
	headerLen := 4 + 16 + 4 + senderNameLen + 1 + 1 + 2 + bitmapLen + 2 + 2
	if len(b) < headerLen {
		return nil, fmt.Errorf("short message: %d bytes < header %d", len(b), headerLen)
	}
	e := &Envelope{}
	off := 0
	e.Protocol = binary.BigEndian.Uint32(b[off:])
	off += 4
	copy(e.ClusterUUID[:], b[off:off+16])
	off += 16
	e.SenderID = cluster.NodeID(binary.BigEndian.Uint32(b[off:]))
	off += 4
	nameEnd := off
	for nameEnd < off+senderNameLen && b[nameEnd] != 0 {
		nameEnd++
	}
	e.SenderName = string(b[off:nameEnd])
	off += senderNameLen
	e.Recipient = MailboxID(b[off])
	off++
	e.Flags = Flags(b[off])
	off++
	size := binary.BigEndian.Uint16(b[off:])
	off += 2
	bitmap := b[off : off+bitmapLen]
	off += bitmapLen
	e.DestNodes = make(map[cluster.NodeID]struct{})
	for i, bb := range bitmap {
		for bit := 0; bit < 8; bit++ {
			if bb&(1<<uint(bit)) != 0 {
				e.DestNodes[cluster.NodeID(i*8+bit)] = struct{}{}
			}
		}
	}
	e.Incarnation = binary.BigEndian.Uint16(b[off:])
	off += 2
	e.Sequence = binary.BigEndian.Uint16(b[off:])
	off += 2
	if off+int(size) > len(b) {
		return nil, fmt.Errorf("truncated payload: want %d, have %d", size, len(b)-off)
	}
	e.Payload = b[off : off+int(size)]
	return e, nil
}
