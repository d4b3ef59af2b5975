package core

import "github.com/jabolina/peertalk/pkg/peertalk/types"

// FramerState is the receive state machine's current phase (spec §4.3).
type FramerState uint8

const (
	AwaitHeader FramerState = iota
	AwaitPayload
	AwaitCrc
)

// DeliveredMessage is a fully validated, framed application message handed
// back to the dispatch layer.
type DeliveredMessage struct {
	Type    types.MessageType
	Seq     uint8
	Payload []byte
}

// FrameOutcome tells the caller (the poll driver) what happened on one
// Feed call.
type FrameOutcome uint8

const (
	// OutcomeNone: no complete frame yet, keep feeding.
	OutcomeNone FrameOutcome = iota
	// OutcomeMessage: a DeliveredMessage is ready.
	OutcomeMessage
	// OutcomeProtocolError: bad magic/version/oversize/CRC mismatch; the
	// framer has reset itself to AwaitHeader and the caller should close
	// the connection (spec §4.3, §7).
	OutcomeProtocolError
)

// Framer is the per-peer byte-stream-to-frame state machine (spec §4.3).
// It never blocks and never allocates steady-state buffers (payloadBuf is
// sized once at construction to MessageMax); the only allocation is the
// final validated payload copy handed to the application.
type Framer struct {
	phase       FramerState
	headerBuf   [types.HeaderSize]byte
	payloadBuf  []byte // len == messageMax, reused across frames
	crcBuf      [types.CRCSize]byte
	bytesNeeded int
	bytesFilled int
	header      types.FrameHeader
	crcRunning  uint16

	messageMax int

	crcFailures uint64
}

// NewFramer allocates a framer with a fixed-size payload buffer of
// messageMax bytes (use types.MessageMax for the default).
func NewFramer(messageMax int) *Framer {
	if messageMax <= 0 {
		messageMax = types.MessageMax
	}
	f := &Framer{
		payloadBuf: make([]byte, messageMax),
		messageMax: messageMax,
	}
	f.reset()
	return f
}

func (f *Framer) reset() {
	f.phase = AwaitHeader
	f.bytesNeeded = types.HeaderSize
	f.bytesFilled = 0
}

// CRCFailures returns the count of CRC mismatches observed since creation,
// for Stats.FramesCRCErr.
func (f *Framer) CRCFailures() uint64 { return f.crcFailures }

// Feed consumes as many bytes from in as the current phase needs, never
// blocking and never reading past one frame boundary per call, and reports
// what happened. Callers should call Feed repeatedly (spec §4.6 step 4:
// "invoke the framer repeatedly until it reports 'no more input'") passing
// successive chunks; `consumed` tells the caller how many bytes of `in`
// were used this call.
func (f *Framer) Feed(in []byte) (outcome FrameOutcome, consumed int, msg DeliveredMessage) {
	switch f.phase {
	case AwaitHeader:
		return f.feedHeader(in)
	case AwaitPayload:
		return f.feedPayload(in)
	case AwaitCrc:
		return f.feedCrc(in)
	default:
		f.reset()
		return OutcomeNone, 0, DeliveredMessage{}
	}
}

func (f *Framer) feedHeader(in []byte) (FrameOutcome, int, DeliveredMessage) {
	want := f.bytesNeeded - f.bytesFilled
	n := want
	if n > len(in) {
		n = len(in)
	}
	copy(f.headerBuf[f.bytesFilled:], in[:n])
	f.bytesFilled += n
	if f.bytesFilled < f.bytesNeeded {
		return OutcomeNone, n, DeliveredMessage{}
	}

	h := types.DecodeFrameHeader(f.headerBuf[:])
	if h.Magic != types.FrameMagic || h.Version != types.ProtocolVersion || int(h.PayloadLen) > f.messageMax {
		f.reset()
		return OutcomeProtocolError, n, DeliveredMessage{}
	}
	f.header = h
	f.crcRunning = CRC16Update(CRC16Seed, f.headerBuf[:])

	if h.PayloadLen == 0 {
		f.phase = AwaitCrc
		f.bytesNeeded = types.CRCSize
		f.bytesFilled = 0
		return OutcomeNone, n, DeliveredMessage{}
	}

	f.phase = AwaitPayload
	f.bytesNeeded = int(h.PayloadLen)
	f.bytesFilled = 0
	return OutcomeNone, n, DeliveredMessage{}
}

func (f *Framer) feedPayload(in []byte) (FrameOutcome, int, DeliveredMessage) {
	want := f.bytesNeeded - f.bytesFilled
	n := want
	if n > len(in) {
		n = len(in)
	}
	copy(f.payloadBuf[f.bytesFilled:f.bytesFilled+n], in[:n])
	f.bytesFilled += n
	if f.bytesFilled < f.bytesNeeded {
		return OutcomeNone, n, DeliveredMessage{}
	}
	f.crcRunning = CRC16Update(f.crcRunning, f.payloadBuf[:f.bytesNeeded])
	f.phase = AwaitCrc
	nextNeeded := types.CRCSize
	f.bytesNeeded = nextNeeded
	f.bytesFilled = 0
	return OutcomeNone, n, DeliveredMessage{}
}

func (f *Framer) feedCrc(in []byte) (FrameOutcome, int, DeliveredMessage) {
	want := f.bytesNeeded - f.bytesFilled
	n := want
	if n > len(in) {
		n = len(in)
	}
	copy(f.crcBuf[f.bytesFilled:], in[:n])
	f.bytesFilled += n
	if f.bytesFilled < f.bytesNeeded {
		return OutcomeNone, n, DeliveredMessage{}
	}

	received := uint16(f.crcBuf[0])<<8 | uint16(f.crcBuf[1])
	payloadLen := int(f.header.PayloadLen)
	if received != f.crcRunning {
		f.crcFailures++
		f.reset()
		return OutcomeProtocolError, n, DeliveredMessage{}
	}

	out := make([]byte, payloadLen)
	copy(out, f.payloadBuf[:payloadLen])
	msg := DeliveredMessage{
		Type:    f.header.Type,
		Seq:     f.header.Seq,
		Payload: out,
	}
	f.reset()
	return OutcomeMessage, n, msg
}

// EncodeFrame builds a complete wire frame (header ‖ payload ‖ CRC) for
// sending. payload must be <= messageMax.
func EncodeFrame(msgType types.MessageType, seq uint8, flags uint8, payload []byte) []byte {
	buf := make([]byte, types.HeaderSize+len(payload)+types.CRCSize)
	h := types.FrameHeader{
		Magic:      types.FrameMagic,
		Version:    types.ProtocolVersion,
		Type:       msgType,
		Flags:      flags,
		Seq:        seq,
		PayloadLen: uint16(len(payload)),
	}
	h.Encode(buf[:types.HeaderSize])
	copy(buf[types.HeaderSize:], payload)
	crc := CRC16Update(CRC16Update(CRC16Seed, buf[:types.HeaderSize]), payload)
	buf[len(buf)-2] = byte(crc >> 8)
	buf[len(buf)-1] = byte(crc)
	return buf
}
