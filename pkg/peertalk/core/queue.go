package core

import "github.com/jabolina/peertalk/pkg/peertalk/types"

// BlockingPct is the global pressure threshold (spec §4.2: "exact
// thresholds are implementation choices but must be stable and
// documented") at or above which a full, non-Critical priority rejects
// with WouldBlock instead of the softer Resource. A free slot at the
// target priority is always taken regardless of global pressure — a
// Critical push succeeds purely because Critical's own sub-queue has
// room, independent of how full Low/Normal/High are (spec S2:
// "free-list independent"). Pressure only enters the decision once the
// target priority's sub-queue is actually full.
const BlockingPct = 95

// slot is one pre-allocated send-queue entry.
type slot struct {
	payload        [types.SlotMax]byte
	length         int
	priority       types.Priority
	coalesceKey    types.CoalesceKey
	hasCoalesceKey bool
}

// subQueue is one priority's FIFO of occupied slot indices plus its own
// free-list, so that filling one priority never blocks another (spec's
// "priority free-lists").
type subQueue struct {
	slots []int // pre-allocated slot indices belonging to this priority
	free  []int // stack of currently-free indices from `slots`
	fifo  []int // occupied indices, oldest first
}

func (q *subQueue) capacity() int { return len(q.slots) }
func (q *subQueue) occupied() int { return len(q.fifo) }

// Queue is a bounded, pre-sized per-peer send queue with priority ordering
// and key-based coalescing (spec §4.2). It is single-threaded: callers
// (API entry points and the poll driver) must serialize access themselves
// (spec §5).
type Queue struct {
	slots    []slot
	byPrio   [4]subQueue // indexed by types.Priority
	coalesce map[types.CoalesceKey]coalesceLoc
	capacity int
}

type coalesceLoc struct {
	priority types.Priority
	index    int // index into slots
}

// NewQueue pre-allocates `capacity` slots split evenly across the four
// priority levels (spec: "typical 16 slots ... = ~4 KiB"; 16/4 = 4 per
// priority, matching the documented memory budget exactly). capacity is
// rounded down to a multiple of 4, with a minimum of 4.
func NewQueue(capacity int) *Queue {
	if capacity < types.NumPriorities() {
		capacity = types.NumPriorities()
	}
	perPrio := capacity / types.NumPriorities()
	if perPrio < 1 {
		perPrio = 1
	}
	total := perPrio * types.NumPriorities()

	q := &Queue{
		slots:    make([]slot, total),
		coalesce: make(map[types.CoalesceKey]coalesceLoc),
		capacity: total,
	}
	next := 0
	for p := 0; p < types.NumPriorities(); p++ {
		sq := subQueue{}
		for i := 0; i < perPrio; i++ {
			sq.slots = append(sq.slots, next)
			sq.free = append(sq.free, next)
			next++
		}
		q.byPrio[p] = sq
	}
	return q
}

// Capacity returns the total number of slots across all priorities.
func (q *Queue) Capacity() int { return q.capacity }

// Len returns the total number of occupied slots across all priorities.
func (q *Queue) Len() int {
	n := 0
	for i := range q.byPrio {
		n += q.byPrio[i].occupied()
	}
	return n
}

// IsEmpty reports whether no slot is occupied.
func (q *Queue) IsEmpty() bool { return q.Len() == 0 }

// Pressure is a monotone 0..100 function of global fill, reported to the
// application via GetQueuePressure.
func (q *Queue) Pressure() int {
	if q.capacity == 0 {
		return 0
	}
	return q.Len() * 100 / q.capacity
}

// TryPush attempts to enqueue payload at the given priority, optionally
// coalescing on key. It never blocks.
func (q *Queue) TryPush(payload []byte, priority types.Priority, key types.CoalesceKey, hasKey bool) error {
	const op = "Queue.TryPush"
	if len(payload) > types.SlotMax {
		return types.NewError(op, types.KindMessageTooLarge, "payload exceeds slot max")
	}
	if int(priority) < 0 || int(priority) >= types.NumPriorities() {
		return types.NewError(op, types.KindInvalidArg, "invalid priority")
	}

	if hasKey {
		if loc, ok := q.coalesce[key]; ok {
			s := &q.slots[loc.index]
			// A key hit always replaces the queued payload in place
			// (newest wins); CoalesceOldest is obtained by callers checking
			// HasCoalesced before calling TryPush (see SendEx).
			copy(s.payload[:], payload)
			s.length = len(payload)
			return nil
		}
	}

	sq := &q.byPrio[priority]
	if sq.occupied() >= sq.capacity() {
		// No free slot at this priority: fall back to the global pressure
		// reading to choose between a hard and a soft rejection. Critical
		// never gets the soft tier — if its own sub-queue is full there is
		// nothing higher to preempt it with.
		if priority == types.Critical {
			return types.NewError(op, types.KindWouldBlock, "priority sub-queue full")
		}
		if q.Pressure() >= BlockingPct {
			return types.NewError(op, types.KindWouldBlock, "queue at blocking pressure")
		}
		return types.NewError(op, types.KindResource, "priority sub-queue full")
	}

	idx := sq.free[len(sq.free)-1]
	sq.free = sq.free[:len(sq.free)-1]
	sq.fifo = append(sq.fifo, idx)
	q.byPrio[priority] = *sq

	s := &q.slots[idx]
	copy(s.payload[:], payload)
	s.length = len(payload)
	s.priority = priority
	s.hasCoalesceKey = hasKey
	if hasKey {
		s.coalesceKey = key
		q.coalesce[key] = coalesceLoc{priority: priority, index: idx}
	}
	return nil
}

// HasCoalesced reports whether a slot is already queued under key, letting
// callers implement CoalesceOldest semantics (drop the new payload, keep
// the existing slot untouched) on top of TryPush's default
// newest-wins-in-place behavior.
func (q *Queue) HasCoalesced(key types.CoalesceKey) bool {
	_, ok := q.coalesce[key]
	return ok
}

// PopResult is the payload and priority returned by PopPriority, plus
// enough of the original coalesce identity to re-enqueue it unchanged via
// PushFront.
type PopResult struct {
	Payload        []byte
	Priority       types.Priority
	CoalesceKey    types.CoalesceKey
	HasCoalesceKey bool
}

// PopPriority returns the oldest slot of the highest non-empty priority,
// O(1), releasing the slot back to its sub-queue's free-list and clearing
// any coalesce mapping pointing at it.
func (q *Queue) PopPriority() (PopResult, bool) {
	for p := types.NumPriorities() - 1; p >= 0; p-- {
		sq := &q.byPrio[p]
		if len(sq.fifo) == 0 {
			continue
		}
		idx := sq.fifo[0]
		sq.fifo = sq.fifo[1:]
		s := &q.slots[idx]
		out := make([]byte, s.length)
		copy(out, s.payload[:s.length])
		result := PopResult{Payload: out, Priority: types.Priority(p), CoalesceKey: s.coalesceKey, HasCoalesceKey: s.hasCoalesceKey}
		if s.hasCoalesceKey {
			delete(q.coalesce, s.coalesceKey)
		}
		sq.free = append(sq.free, idx)
		q.byPrio[p] = *sq
		return result, true
	}
	return PopResult{}, false
}

// PushFront re-admits a just-popped payload at the head of its priority's
// FIFO, so it is the next thing PopPriority returns rather than going to
// the back of the line (spec §4.6 step 5: a flow-controlled send must
// "leave in queue or re-enqueue at head", never silently drop). The slot
// PopPriority just released for this same payload is free by construction
// (single-threaded access, spec §5), so this only fails if the caller
// requeues something that didn't just come from PopPriority on this queue.
func (q *Queue) PushFront(r PopResult) bool {
	sq := &q.byPrio[r.Priority]
	if len(sq.free) == 0 {
		return false
	}
	idx := sq.free[len(sq.free)-1]
	sq.free = sq.free[:len(sq.free)-1]
	sq.fifo = append([]int{idx}, sq.fifo...)
	q.byPrio[r.Priority] = *sq

	s := &q.slots[idx]
	copy(s.payload[:], r.Payload)
	s.length = len(r.Payload)
	s.priority = r.Priority
	s.hasCoalesceKey = r.HasCoalesceKey
	if r.HasCoalesceKey {
		s.coalesceKey = r.CoalesceKey
		q.coalesce[r.CoalesceKey] = coalesceLoc{priority: r.Priority, index: idx}
	}
	return true
}
