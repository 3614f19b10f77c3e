// Package ring implements the single-producer/single-consumer frame rings
// shared between interrupt-context producers (the RX state machine) and
// foreground consumers (the public API). Capacity is a power of two,
// checked by New, so index wraparound is a mask, never a modulo or branch.
//
// head is advanced only by the producer, tail only by the consumer.
// Publication is a release store to head; consumption reads head with an
// acquire load before dereferencing the slot. No locks are used anywhere
// in this package.
package ring

import "sync/atomic"

// Ring is a fixed-capacity SPSC ring of N entries, N a power of two.
//
// T is held by value inside the ring's backing array so that steady-state
// operation never allocates; resetFn is used to clear a consumed slot
// in place ahead of reuse, since T's own Reset method (if any) typically
// has a pointer receiver and can't be named as a generic constraint
// without forcing T itself to be a pointer type.
type Ring[T any] struct {
	mask    uint32
	entries []T
	resetFn func(*T)

	head atomic.Uint32 // producer-owned
	tail atomic.Uint32 // consumer-owned

	dropped atomic.Uint32
}

// New allocates a ring with capacity entries, which must be a power of
// two. It panics otherwise: a non-power-of-two capacity is a programmer
// error caught at construction, not a runtime condition to recover from.
func New[T any](capacity int, resetFn func(*T)) *Ring[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}

	return &Ring[T]{
		mask:    uint32(capacity - 1),
		entries: make([]T, capacity),
		resetFn: resetFn,
	}
}

// Empty reports whether the ring currently holds no published frames.
// Safe to call from either side; the result is advisory outside its own
// owning context.
func (r *Ring[T]) Empty() bool {
	return r.head.Load() == r.tail.Load()
}

// full reports whether advancing head would collide with tail. head and
// tail are free-running counters that grow without bound (never masked
// themselves), so the collision check must mask both sides down to a
// slot index before comparing — masking only head and comparing against
// an unmasked tail would stop detecting collisions forever as soon as
// tail passed the capacity. Called only from the producer side.
func (r *Ring[T]) full(head uint32) bool {
	return (head+1)&r.mask == r.tail.Load()&r.mask
}

// ReserveHead returns a pointer to the slot the producer should fill
// next. It never blocks and never advances head. When the ring is full,
// the in-progress slot (the current head) is returned again so the
// producer overwrites a not-yet-published frame rather than a committed
// one; Dropped is incremented exactly once per such reuse.
//
// Producer-only; not safe to call concurrently with another ReserveHead
// or PublishHead.
func (r *Ring[T]) ReserveHead() *T {
	head := r.head.Load()

	if r.full(head) {
		r.dropped.Add(1)
		return &r.entries[head&r.mask]
	}

	return &r.entries[head&r.mask]
}

// PublishHead advances head by one slot with release ordering, making
// the slot most recently filled via ReserveHead visible to the consumer.
// If the ring is still full (the consumer hasn't freed a slot since the
// matching ReserveHead), the frame the producer just filled is discarded
// without publishing: ReserveHead already counted this frame as dropped,
// so no committed, unconsumed frame is ever evicted to make room for it.
func (r *Ring[T]) PublishHead() {
	head := r.head.Load()
	if r.full(head) {
		return
	}
	r.head.Store(head + 1)
}

// PeekTail returns a pointer to the oldest published, unconsumed frame
// and true, or nil and false if the ring is empty. Consumer-only.
func (r *Ring[T]) PeekTail() (*T, bool) {
	tail := r.tail.Load()
	if r.head.Load() == tail {
		return nil, false
	}
	return &r.entries[tail&r.mask], true
}

// ConsumeTail advances tail by one slot after the caller is done reading
// the frame returned by PeekTail. Consumer-only.
func (r *Ring[T]) ConsumeTail() {
	tail := r.tail.Load()
	if r.head.Load() == tail {
		return
	}
	if r.resetFn != nil {
		r.resetFn(&r.entries[tail&r.mask])
	}
	r.tail.Store(tail + 1)
}

// Dropped returns the number of frames overwritten before being consumed,
// because the ring was full when the producer needed a fresh slot.
func (r *Ring[T]) Dropped() uint32 {
	return r.dropped.Load()
}

// Clear resets every entry in place and returns the ring to empty. Used
// by direction.Controller on every direction change, so stale frames
// can't be consumed after the line changes mode; callers must
// ensure the producer side is stopped first.
func (r *Ring[T]) Clear() {
	if r.resetFn != nil {
		for i := range r.entries {
			r.resetFn(&r.entries[i])
		}
	}
	r.head.Store(0)
	r.tail.Store(0)
}
