package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC16_KnownVector(t *testing.T) {
	// CRC-16/CCITT-FALSE("123456789") == 0x29B1 is the standard check value
	// published for this variant.
	got := CRC16([]byte("123456789"))
	require.Equal(t, uint16(0x29B1), got)
}

func TestCRC16_IncrementalMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	oneShot := CRC16(data)

	running := CRC16Seed
	running = CRC16Update(running, data[:10])
	running = CRC16Update(running, data[10:])
	require.Equal(t, oneShot, running)
}

func TestCRC16_EmptyInput(t *testing.T) {
	require.Equal(t, CRC16Seed, CRC16(nil))
}
