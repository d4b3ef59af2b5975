package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

func TestFramer_RoundTrip(t *testing.T) {
	f := NewFramer(types.MessageMax)
	frame := EncodeFrame(types.MessageData, 7, 0, []byte("hello"))

	outcome, consumed, msg := feedAll(f, frame)
	require.Equal(t, OutcomeMessage, outcome)
	require.Equal(t, len(frame), consumed)
	require.Equal(t, types.MessageData, msg.Type)
	require.Equal(t, uint8(7), msg.Seq)
	require.Equal(t, "hello", string(msg.Payload))
}

func TestFramer_ZeroLengthPayload(t *testing.T) {
	f := NewFramer(types.MessageMax)
	frame := EncodeFrame(types.MessagePing, 1, 0, nil)
	outcome, _, msg := feedAll(f, frame)
	require.Equal(t, OutcomeMessage, outcome)
	require.Equal(t, types.MessagePing, msg.Type)
	require.Empty(t, msg.Payload)
}

func TestFramer_SplitAcrossFeeds(t *testing.T) {
	f := NewFramer(types.MessageMax)
	frame := EncodeFrame(types.MessageData, 3, 0, []byte("split-me"))

	var last FrameOutcome
	var msg DeliveredMessage
	for _, b := range frame {
		var consumed int
		last, consumed, msg = f.Feed([]byte{b})
		require.Equal(t, 1, consumed)
	}
	require.Equal(t, OutcomeMessage, last)
	require.Equal(t, "split-me", string(msg.Payload))
}

func TestFramer_BadMagicIsProtocolError(t *testing.T) {
	f := NewFramer(types.MessageMax)
	frame := EncodeFrame(types.MessageData, 1, 0, []byte("x"))
	frame[0] ^= 0xFF // corrupt magic

	outcome, _, _ := feedAll(f, frame)
	require.Equal(t, OutcomeProtocolError, outcome)
}

func TestFramer_CRCMismatchIsProtocolErrorAndCounted(t *testing.T) {
	f := NewFramer(types.MessageMax)
	frame := EncodeFrame(types.MessageData, 1, 0, []byte("x"))
	frame[len(frame)-1] ^= 0xFF // corrupt trailing CRC byte

	outcome, _, _ := feedAll(f, frame)
	require.Equal(t, OutcomeProtocolError, outcome)
	require.Equal(t, uint64(1), f.CRCFailures())
}

func TestFramer_ResetsAfterErrorAndAcceptsNextFrame(t *testing.T) {
	f := NewFramer(types.MessageMax)
	bad := EncodeFrame(types.MessageData, 1, 0, []byte("x"))
	bad[0] ^= 0xFF
	outcome, _, _ := feedAll(f, bad)
	require.Equal(t, OutcomeProtocolError, outcome)

	good := EncodeFrame(types.MessageData, 2, 0, []byte("good"))
	outcome, _, msg := feedAll(f, good)
	require.Equal(t, OutcomeMessage, outcome)
	require.Equal(t, "good", string(msg.Payload))
}

func TestFramer_OversizePayloadRejected(t *testing.T) {
	f := NewFramer(16)
	h := types.FrameHeader{Magic: types.FrameMagic, Version: types.ProtocolVersion, Type: types.MessageData, PayloadLen: 64}
	buf := make([]byte, types.HeaderSize)
	h.Encode(buf)

	outcome, _, _ := feedAll(f, buf)
	require.Equal(t, OutcomeProtocolError, outcome)
}

// feedAll drives Feed until the frame is fully consumed, returning the
// final outcome observed (frames never produce more than one message).
func feedAll(f *Framer, data []byte) (FrameOutcome, int, DeliveredMessage) {
	total := 0
	for len(data) > 0 {
		outcome, consumed, msg := f.Feed(data)
		total += consumed
		data = data[consumed:]
		if outcome != OutcomeNone {
			return outcome, total, msg
		}
		if consumed == 0 {
			break
		}
	}
	return OutcomeNone, total, DeliveredMessage{}
}
