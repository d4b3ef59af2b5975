package types

import "encoding/binary"

// Wire-level constants for the framed stream protocol (spec §4.3 / §6).
const (
	// FrameMagic is the 4-byte magic constant every frame header must start
	// with. Pinned here so all implementations agree byte-for-byte.
	FrameMagic uint32 = 0x50544C4B // "PTLK"

	// ProtocolVersion is the only version this implementation speaks.
	ProtocolVersion uint8 = 1

	// HeaderSize is the fixed 10-byte header length (magic 4, version 1,
	// type 1, flags 1, seq 1, payload_len 2).
	HeaderSize = 10

	// CRCSize is the trailing CRC-16 length.
	CRCSize = 2

	// MessageMax is the default maximum payload length for a single frame.
	MessageMax = 4096

	// SlotMax is the default maximum payload length for a single send-queue
	// slot (distinct from MessageMax: a queued message must additionally
	// fit in one slot before it is ever framed).
	SlotMax = 256
)

// MessageType is the frame's application-level type (header offset 5).
type MessageType uint8

const (
	MessageData MessageType = iota
	MessagePing
	MessagePong
	MessageDisconnect
	MessageAck
)

func (t MessageType) String() string {
	switch t {
	case MessageData:
		return "Data"
	case MessagePing:
		return "Ping"
	case MessagePong:
		return "Pong"
	case MessageDisconnect:
		return "Disconnect"
	case MessageAck:
		return "Ack"
	default:
		return "Unknown"
	}
}

// Frame flag bits (header offset 6).
const (
	// FlagBatch is reserved by spec.md §9 Open Questions: "the first
	// implementation may keep one-message-per-frame and reserve the bit."
	// It is never set by this implementation and, if observed set on an
	// inbound frame, is ignored rather than parsed as a batch.
	FlagBatch uint8 = 1 << 0
)

// FrameHeader is the decoded form of the 10-byte wire header.
type FrameHeader struct {
	Magic      uint32
	Version    uint8
	Type       MessageType
	Flags      uint8
	Seq        uint8
	PayloadLen uint16
}

// Encode writes the header in wire format (big-endian multi-byte fields)
// into buf, which must be at least HeaderSize long.
func (h FrameHeader) Encode(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = byte(h.Type)
	buf[6] = h.Flags
	buf[7] = h.Seq
	binary.BigEndian.PutUint16(buf[8:10], h.PayloadLen)
}

// DecodeFrameHeader reads a header from a HeaderSize-length buffer.
func DecodeFrameHeader(buf []byte) FrameHeader {
	return FrameHeader{
		Magic:      binary.BigEndian.Uint32(buf[0:4]),
		Version:    buf[4],
		Type:       MessageType(buf[5]),
		Flags:      buf[6],
		Seq:        buf[7],
		PayloadLen: binary.BigEndian.Uint16(buf[8:10]),
	}
}

// Priority orders slots within a peer's send queue. Critical preempts all
// others; ordering within a priority is strict FIFO (spec §4.2).
type Priority uint8

const (
	Low Priority = iota
	Normal
	High
	Critical
	numPriorities = int(Critical) + 1
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "Low"
	case Normal:
		return "Normal"
	case High:
		return "High"
	case Critical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// NumPriorities is the number of distinct priority levels.
func NumPriorities() int { return numPriorities }

// CoalescePolicy picks which payload survives when two try_push calls share
// a CoalesceKey.
type CoalescePolicy uint8

const (
	// CoalesceNone disables coalescing for this push (no key supplied).
	CoalesceNone CoalescePolicy = iota
	// CoalesceNewest replaces the existing slot's payload with the new one,
	// keeping the slot's original FIFO position.
	CoalesceNewest
	// CoalesceOldest drops the new payload, keeping the existing slot untouched.
	CoalesceOldest
)

// SendFlags are the API-level flags accepted by SendEx (spec §6). They are
// orthogonal to the wire FrameHeader.Flags byte.
type SendFlags uint8

const (
	// FlagUnreliable routes the message through the transport's datagram
	// path, bypassing the send queue entirely.
	FlagUnreliable SendFlags = 1 << 0
	// FlagCoalesceNewest and FlagCoalesceOldest are mutually exclusive.
	FlagCoalesceNewest SendFlags = 1 << 1
	FlagCoalesceOldest SendFlags = 1 << 2
)

// CoalesceKey scopes coalescing to (domain id, peer id) per spec §4.2, so
// two peers coalescing an identical-looking key (e.g. "position") never
// collide.
type CoalesceKey struct {
	Domain uint32
	Peer   PeerId
	Key    uint64
}
