package sb

import "github.com/tinylib/msgp/msgp"

// EncodeMsg packs a Triplet into its msgpack wire form, used for the
// full superblock-version snapshot the leader pushes to a rejoining
// node instead of the single-uint64 JSON body carried by the ordinary
// prepare/commit barriers (original source's adm_sb_sync full-resync
// path, as opposed to its per-step bump).
func (t Triplet) EncodeMsg() []byte {
	b := msgp.AppendArrayHeader(nil, 3)
	b = msgp.AppendUint64(b, t.Committed)
	b = msgp.AppendUint64(b, t.Prepared)
	b = msgp.AppendUint64(b, t.InFlight)
	return b
}

// DecodeMsg is the inverse of EncodeMsg.
func DecodeMsg(b []byte) (Triplet, error) {
	var t Triplet
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return t, err
	}
	if n != 3 {
		return t, msgp.ArrayError{Wanted: 3, Got: n}
	}
	if t.Committed, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return t, err
	}
	if t.Prepared, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return t, err
	}
	if t.InFlight, _, err = msgp.ReadUint64Bytes(b); err != nil {
		return t, err
	}
	return t, nil
}
