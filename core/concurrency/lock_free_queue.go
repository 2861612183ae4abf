// File: core/concurrency/lock_free_queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded MPMC queue (Dmitry Vyukov's sequence-number scheme). The pool package
// keeps free slabs here, so allocate/free stay lock-free across I/O threads.

package concurrency

import "sync/atomic"

const cacheLinePad = 64

// LockFreeQueue is a bounded MPMC queue with per-cell sequence numbers.
type LockFreeQueue[T any] struct {
	head  atomic.Uint64
	_     [cacheLinePad]byte
	tail  atomic.Uint64
	_     [cacheLinePad]byte
	mask  uint64
	cells []cell[T]
}

type cell[T any] struct {
	sequence atomic.Uint64
	data     T
}

// NewLockFreeQueue creates a queue with capacity rounded up to a power of two.
func NewLockFreeQueue[T any](capacity int) *LockFreeQueue[T] {
	if capacity < 2 {
		capacity = 2
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	q := &LockFreeQueue[T]{
		mask:  uint64(size - 1),
		cells: make([]cell[T], size),
	}
	for i := range q.cells {
		q.cells[i].sequence.Store(uint64(i))
	}
	return q
}

// Cap returns the queue capacity.
func (q *LockFreeQueue[T]) Cap() int { return len(q.cells) }

// Len returns an approximate element count.
func (q *LockFreeQueue[T]) Len() int {
	n := int64(q.tail.Load()) - int64(q.head.Load())
	if n < 0 {
		return 0
	}
	return int(n)
}

// Enqueue adds val; returns false if full.
func (q *LockFreeQueue[T]) Enqueue(val T) bool {
	for {
		tail := q.tail.Load()
		c := &q.cells[tail&q.mask]
		dif := int64(c.sequence.Load()) - int64(tail)
		switch {
		case dif == 0:
			if q.tail.CompareAndSwap(tail, tail+1) {
				c.data = val
				c.sequence.Store(tail + 1)
				return true
			}
		case dif < 0:
			return false
		}
	}
}

// Dequeue removes and returns an item; ok false if empty.
func (q *LockFreeQueue[T]) Dequeue() (item T, ok bool) {
	for {
		head := q.head.Load()
		c := &q.cells[head&q.mask]
		dif := int64(c.sequence.Load()) - int64(head+1)
		switch {
		case dif == 0:
			if q.head.CompareAndSwap(head, head+1) {
				item = c.data
				var zero T
				c.data = zero
				c.sequence.Store(head + q.mask + 1)
				return item, true
			}
		case dif < 0:
			var zero T
			return zero, false
		}
	}
}
