package utp

import (
	"github.com/wireloop/go-utp/internal/buffer"
)

// wireEncode serializes a buffer.Packet plus this connection's identity
// fields into a uTP v1 datagram (spec §6). Extensions are never emitted by
// this port (it only needs to skip unknown ones on receipt), so the
// extension field is always zero.
func wireEncode(connID uint16, timestamp, timeDiff uint32, pkt buffer.Packet) []byte {
	h := Header{
		Type:      pkt.Type,
		Version:   VERSION,
		Extension: 0,
		ConnID:    connID,
		Timestamp: timestamp,
		TimeDiff:  timeDiff,
		WndSize:   pkt.WndSz,
		SeqNr:     pkt.SeqNo,
		AckNr:     pkt.AckNo,
	}
	buf := h.Marshal()
	return append(buf, pkt.Payload...)
}

// wireDecode parses a raw datagram into a Header and the corresponding
// buffer.Packet, skipping any extension chain per spec §6.
func wireDecode(data []byte) (Header, buffer.Packet, error) {
	var h Header
	if err := h.Unmarshal(data); err != nil {
		return h, buffer.Packet{}, err
	}

	rest := data[HEADER_SIZE:]
	payloadOffset, err := h.SkipExtensions(rest)
	if err != nil {
		return h, buffer.Packet{}, err
	}

	pkt := buffer.Packet{
		Type:    h.Type,
		SeqNo:   h.SeqNr,
		AckNo:   h.AckNr,
		WndSz:   h.WndSize,
		Payload: rest[payloadOffset:],
	}
	return h, pkt, nil
}
