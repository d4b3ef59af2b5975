package core

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jabolina/peertalk/pkg/peertalk/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueue_PriorityOrdering(t *testing.T) {
	q := NewQueue(16)
	require.NoError(t, q.TryPush([]byte("low"), types.Low, types.CoalesceKey{}, false))
	require.NoError(t, q.TryPush([]byte("high"), types.High, types.CoalesceKey{}, false))
	require.NoError(t, q.TryPush([]byte("critical"), types.Critical, types.CoalesceKey{}, false))

	r, ok := q.PopPriority()
	require.True(t, ok)
	require.Equal(t, types.Critical, r.Priority)
	require.Equal(t, "critical", string(r.Payload))

	r, ok = q.PopPriority()
	require.True(t, ok)
	require.Equal(t, types.High, r.Priority)

	r, ok = q.PopPriority()
	require.True(t, ok)
	require.Equal(t, types.Low, r.Priority)

	_, ok = q.PopPriority()
	require.False(t, ok)
}

// TestQueue_CriticalSucceedsWhenNormalFull exercises scenario S2: filling
// Normal's sub-queue must never block a Critical push, since each priority
// owns an independent free-list.
func TestQueue_CriticalSucceedsWhenNormalFull(t *testing.T) {
	q := NewQueue(16) // 4 slots per priority
	// Every free slot at Normal is occupied before any rejection: admission
	// is purely capacity-based, not a percentage pre-check.
	for i := 0; i < 4; i++ {
		require.NoError(t, q.TryPush([]byte("x"), types.Normal, types.CoalesceKey{}, false))
	}
	// Normal's sub-queue is now full, but global pressure (4/16 = 25%) is
	// well below the blocking threshold, so the rejection is the soft Resource.
	err := q.TryPush([]byte("overflow"), types.Normal, types.CoalesceKey{}, false)
	require.Equal(t, types.KindResource, types.KindOf(err))

	// Critical's own sub-queue is untouched by Normal's pressure.
	err = q.TryPush([]byte("urgent"), types.Critical, types.CoalesceKey{}, false)
	require.NoError(t, err)
}

// TestQueue_CapacityBoundary exercises the §8 boundary property: filling a
// priority to exactly its capacity and pushing one more is rejected;
// popping one frees a slot and the next push succeeds.
func TestQueue_CapacityBoundary(t *testing.T) {
	q := NewQueue(16)
	for i := 0; i < 4; i++ {
		require.NoError(t, q.TryPush([]byte("x"), types.Low, types.CoalesceKey{}, false))
	}
	require.Error(t, q.TryPush([]byte("overflow"), types.Low, types.CoalesceKey{}, false))

	_, ok := q.PopPriority()
	require.True(t, ok)
	require.NoError(t, q.TryPush([]byte("fits now"), types.Low, types.CoalesceKey{}, false))
}

// TestQueue_NormalBlocksAtGlobalPressure exercises scenario S4: once
// global pressure reaches the blocking threshold, a full non-Critical
// priority returns WouldBlock rather than Resource.
func TestQueue_NormalBlocksAtGlobalPressure(t *testing.T) {
	q := NewQueue(16) // 4 slots per priority, 16 total
	for _, pr := range []types.Priority{types.Low, types.Normal, types.High} {
		for i := 0; i < 4; i++ {
			require.NoError(t, q.TryPush([]byte("x"), pr, types.CoalesceKey{}, false))
		}
	}
	// 12/16 occupied, only Critical has free slots left; fill it too so the
	// whole queue is at 100% global pressure.
	for i := 0; i < 4; i++ {
		require.NoError(t, q.TryPush([]byte("x"), types.Critical, types.CoalesceKey{}, false))
	}
	require.GreaterOrEqual(t, q.Pressure(), BlockingPct)

	err := q.TryPush([]byte("y"), types.Normal, types.CoalesceKey{}, false)
	require.Equal(t, types.KindWouldBlock, types.KindOf(err))
}

func TestQueue_CoalesceNewestOverwritesInPlace(t *testing.T) {
	q := NewQueue(16)
	key := types.CoalesceKey{Domain: 1, Key: 42}
	require.NoError(t, q.TryPush([]byte("v1"), types.Normal, key, true))
	require.NoError(t, q.TryPush([]byte("v2"), types.Normal, key, true))
	require.Equal(t, 1, q.Len())

	r, ok := q.PopPriority()
	require.True(t, ok)
	require.Equal(t, "v2", string(r.Payload))
}

func TestQueue_CoalesceScopedByFullKey(t *testing.T) {
	q := NewQueue(16)
	k1 := types.CoalesceKey{Domain: 1, Peer: 1, Key: 1}
	k2 := types.CoalesceKey{Domain: 1, Peer: 2, Key: 1}
	require.NoError(t, q.TryPush([]byte("a"), types.Normal, k1, true))
	require.NoError(t, q.TryPush([]byte("b"), types.Normal, k2, true))
	require.Equal(t, 2, q.Len())
}

func TestQueue_PressureReachesBlockingThreshold(t *testing.T) {
	q := NewQueue(4) // 1 slot per priority, 4 total
	// Fill every priority: global pressure hits 100%, at or above
	// BlockingPct, so a subsequent push to any already-full priority
	// returns WouldBlock rather than the softer Resource.
	for _, pr := range []types.Priority{types.Low, types.Normal, types.High, types.Critical} {
		require.NoError(t, q.TryPush([]byte("x"), pr, types.CoalesceKey{}, false))
	}
	require.Equal(t, 100, q.Pressure())

	err := q.TryPush([]byte("b"), types.Low, types.CoalesceKey{}, false)
	require.Error(t, err)
	require.Equal(t, types.KindWouldBlock, types.KindOf(err))
}

func TestQueue_PayloadTooLarge(t *testing.T) {
	q := NewQueue(16)
	big := make([]byte, types.SlotMax+1)
	err := q.TryPush(big, types.Normal, types.CoalesceKey{}, false)
	require.Equal(t, types.KindMessageTooLarge, types.KindOf(err))
}
