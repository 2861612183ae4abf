// File: pool/slab_pool.go
// Package pool implements lock-free slab allocation over native memory.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-bridge/core/concurrency"
)

// Source is a pool of fixed-size slabs. Implementations are safe for
// concurrent use from any number of I/O threads.
type Source interface {
	SlabSize() int
	Acquire() ([]byte, error)
	Recycle(b []byte)
	Stats() Stats
	Close() error
}

// Stats aggregates slab accounting.
type Stats struct {
	SlabSize  int
	Allocated int64 // slabs carved from fresh memory
	Acquired  int64
	Recycled  int64
	Dropped   int64 // recycled slabs that did not fit the free list
	Idle      int
}

const (
	defaultPoolCapacity = 4096
	chunkBytes          = 256 << 10
)

// SlabPool carves slabs out of mapped chunks and keeps free slabs on a
// lock-free queue. Chunks are unmapped only on Close.
type SlabPool struct {
	size     int
	perChunk int
	queue    *concurrency.LockFreeQueue[[]byte]

	mu     sync.Mutex
	chunks []region
	closed atomic.Bool

	totalAlloc   atomic.Int64
	totalAcquire atomic.Int64
	totalRecycle atomic.Int64
	totalDrop    atomic.Int64
}

// NewSlabPool creates a pool of slabSize slabs keeping at most capacity idle slabs.
func NewSlabPool(slabSize, capacity int) *SlabPool {
	if slabSize <= 0 {
		slabSize = DefaultSlabSize
	}
	if capacity <= 0 {
		capacity = defaultPoolCapacity
	}
	per := chunkBytes / slabSize
	if per < 1 {
		per = 1
	}
	return &SlabPool{
		size:     slabSize,
		perChunk: per,
		queue:    concurrency.NewLockFreeQueue[[]byte](capacity),
	}
}

func (sp *SlabPool) SlabSize() int { return sp.size }

func (sp *SlabPool) Acquire() ([]byte, error) {
	if sp.closed.Load() {
		return nil, ErrPoolClosed
	}
	sp.totalAcquire.Add(1)
	if b, ok := sp.queue.Dequeue(); ok {
		return b, nil
	}
	return sp.grow()
}

// grow maps a new chunk, keeps the first slab and queues the rest.
func (sp *SlabPool) grow() ([]byte, error) {
	r := mapRegion(sp.size * sp.perChunk)
	sp.mu.Lock()
	if sp.closed.Load() {
		sp.mu.Unlock()
		_ = r.unmap()
		return nil, ErrPoolClosed
	}
	sp.chunks = append(sp.chunks, r)
	sp.mu.Unlock()

	sp.totalAlloc.Add(int64(sp.perChunk))
	first := r.raw[0:sp.size:sp.size]
	for i := 1; i < sp.perChunk; i++ {
		off := i * sp.size
		if !sp.queue.Enqueue(r.raw[off : off+sp.size : off+sp.size]) {
			sp.totalDrop.Add(1)
		}
	}
	return first, nil
}

func (sp *SlabPool) Recycle(b []byte) {
	if cap(b) != sp.size || sp.closed.Load() {
		return
	}
	sp.totalRecycle.Add(1)
	if !sp.queue.Enqueue(b[:sp.size]) {
		sp.totalDrop.Add(1)
	}
}

func (sp *SlabPool) Stats() Stats {
	return Stats{
		SlabSize:  sp.size,
		Allocated: sp.totalAlloc.Load(),
		Acquired:  sp.totalAcquire.Load(),
		Recycled:  sp.totalRecycle.Load(),
		Dropped:   sp.totalDrop.Load(),
		Idle:      sp.queue.Len(),
	}
}

// Close unmaps every chunk. Slabs still held by callers become invalid.
func (sp *SlabPool) Close() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if !sp.closed.CompareAndSwap(false, true) {
		return nil
	}
	for {
		if _, ok := sp.queue.Dequeue(); !ok {
			break
		}
	}
	var first error
	for _, r := range sp.chunks {
		if err := r.unmap(); err != nil && first == nil {
			first = err
		}
	}
	sp.chunks = nil
	return first
}

var _ Source = (*SlabPool)(nil)
