package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActiveSet_BitmapAddRemoveIterate(t *testing.T) {
	s := NewActiveSet(8)
	s.Add(0)
	s.Add(3)
	s.Add(7)
	require.Equal(t, 3, s.Len())
	require.True(t, s.Contains(3))

	var seen []uint32
	s.Each(func(slot uint32) { seen = append(seen, slot) })
	require.ElementsMatch(t, []uint32{0, 3, 7}, seen)

	s.Remove(3)
	require.False(t, s.Contains(3))
	require.Equal(t, 2, s.Len())
}

func TestActiveSet_ArrayAddRemoveIterate(t *testing.T) {
	s := NewActiveSet(64) // forces arrayActiveSet
	s.Add(0)
	s.Add(40)
	s.Add(63)
	require.Equal(t, 3, s.Len())

	s.Remove(0)
	require.False(t, s.Contains(0))
	require.True(t, s.Contains(40))
	require.True(t, s.Contains(63))
	require.Equal(t, 2, s.Len())

	var seen []uint32
	s.Each(func(slot uint32) { seen = append(seen, slot) })
	require.ElementsMatch(t, []uint32{40, 63}, seen)
}

func TestActiveSet_ArrayAddIsIdempotent(t *testing.T) {
	s := NewActiveSet(64)
	s.Add(5)
	s.Add(5)
	require.Equal(t, 1, s.Len())
}

func TestActiveSet_RemoveAbsentIsNoop(t *testing.T) {
	s := NewActiveSet(64)
	s.Remove(9)
	require.Equal(t, 0, s.Len())
}
