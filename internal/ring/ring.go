// Package ring implements a bounded single-producer/single-consumer queue
// of book snapshots between the ingest goroutine and the persistence
// writer goroutine.
//
// Capacity is a power of two so index wrapping is a mask instead of a
// modulo. Write and read counters are monotonically increasing — they are
// only masked at the point of indexing into the backing array, never when
// computing occupancy — and live in separate padded structs so the
// producer and consumer don't bounce the same cache line.
package ring

import (
	"sync"
	"sync/atomic"

	"mbo-ingest/pkg/types"
)

// paddedCounter absorbs the rest of a 64-byte cache line after a counter,
// keeping the producer's and consumer's counters on separate lines.
type paddedCounter struct {
	v atomic.Uint64
	_ [56]byte
}

// Buffer is a bounded SPSC queue of types.BookSnapshot. It is safe for
// exactly one producer goroutine calling Push/TryPush and exactly one
// consumer goroutine calling Pop/TryPop concurrently; it is not safe for
// multiple producers or multiple consumers.
type Buffer struct {
	mask uint64
	buf  []types.BookSnapshot

	write paddedCounter
	read  paddedCounter

	mu     sync.Mutex
	cond   *sync.Cond
	closed atomic.Bool
}

// New creates a Buffer of the given capacity, which must be a power of
// two >= 2 (one slot is reserved to distinguish full from empty).
func New(capacity int) *Buffer {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two >= 2")
	}
	b := &Buffer{
		mask: uint64(capacity - 1),
		buf:  make([]types.BookSnapshot, capacity),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *Buffer) len() uint64 {
	return b.write.v.Load() - b.read.v.Load()
}

// Len reports the current occupancy.
func (b *Buffer) Len() int { return int(b.len()) }

// Cap reports the usable capacity (one less than the backing array, since
// a slot is reserved for full/empty disambiguation).
func (b *Buffer) Cap() int { return int(b.mask) }

// Full reports whether the buffer cannot accept another push.
func (b *Buffer) Full() bool { return b.len() >= b.mask }

// Empty reports whether the buffer has nothing to pop.
func (b *Buffer) Empty() bool { return b.len() == 0 }

// TryPush attempts a non-blocking push. It returns false if the buffer is
// full.
func (b *Buffer) TryPush(v types.BookSnapshot) bool {
	w := b.write.v.Load()
	if w-b.read.v.Load() >= b.mask {
		return false
	}
	b.buf[w&b.mask] = v
	b.write.v.Store(w + 1)
	b.broadcast()
	return true
}

// TryPop attempts a non-blocking pop. It returns false if the buffer is
// empty.
func (b *Buffer) TryPop() (types.BookSnapshot, bool) {
	r := b.read.v.Load()
	if b.write.v.Load() == r {
		return types.BookSnapshot{}, false
	}
	v := b.buf[r&b.mask]
	b.read.v.Store(r + 1)
	b.broadcast()
	return v, true
}

// broadcast wakes any blocked Push/Pop callers. It briefly takes the mutex
// purely to serialize against a waiter's check-then-wait sequence — a
// Broadcast issued between the waiter's predicate check and its Wait call
// would otherwise be lost.
func (b *Buffer) broadcast() {
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
}

// Push blocks until there is room or the buffer is closed, in which case
// it returns false.
func (b *Buffer) Push(v types.BookSnapshot) bool {
	b.mu.Lock()
	for {
		if b.closed.Load() {
			b.mu.Unlock()
			return false
		}
		w := b.write.v.Load()
		if w-b.read.v.Load() < b.mask {
			b.buf[w&b.mask] = v
			b.write.v.Store(w + 1)
			b.cond.Broadcast()
			b.mu.Unlock()
			return true
		}
		b.cond.Wait()
	}
}

// Pop blocks until an item is available, shouldExit reports true, or the
// buffer is closed. It returns false in the latter two cases. shouldExit
// is re-checked both before and after each wait so a late-arriving exit
// signal is never missed.
func (b *Buffer) Pop(shouldExit func() bool) (types.BookSnapshot, bool) {
	b.mu.Lock()
	for {
		r := b.read.v.Load()
		if b.write.v.Load() != r {
			v := b.buf[r&b.mask]
			b.read.v.Store(r + 1)
			b.cond.Broadcast()
			b.mu.Unlock()
			return v, true
		}
		if b.closed.Load() || (shouldExit != nil && shouldExit()) {
			b.mu.Unlock()
			return types.BookSnapshot{}, false
		}
		b.cond.Wait()
	}
}

// Close marks the buffer closed and wakes every blocked Push/Pop caller.
// Items already queued remain poppable via TryPop after Close; blocking
// Pop returns false only once the queue has drained.
func (b *Buffer) Close() {
	b.closed.Store(true)
	b.broadcast()
}
