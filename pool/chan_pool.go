// File: pool/chan_pool.go
// Package pool
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Heap slab pool recycled through a bounded channel. Slabs that do not fit the
// channel are left to the GC.

package pool

import "sync/atomic"

// ChanPool is the heap-backed Source.
type ChanPool struct {
	size   int
	slabs  chan []byte
	closed atomic.Bool

	totalAlloc   atomic.Int64
	totalAcquire atomic.Int64
	totalRecycle atomic.Int64
	totalDrop    atomic.Int64
}

// NewChanPool creates a pool of slabSize slabs keeping at most capacity idle slabs.
func NewChanPool(slabSize, capacity int) *ChanPool {
	if slabSize <= 0 {
		slabSize = DefaultSlabSize
	}
	if capacity <= 0 {
		capacity = 1024
	}
	return &ChanPool{
		size:  slabSize,
		slabs: make(chan []byte, capacity),
	}
}

func (p *ChanPool) SlabSize() int { return p.size }

func (p *ChanPool) Acquire() ([]byte, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	p.totalAcquire.Add(1)
	select {
	case b := <-p.slabs:
		return b, nil
	default:
		p.totalAlloc.Add(1)
		return make([]byte, p.size), nil
	}
}

func (p *ChanPool) Recycle(b []byte) {
	if cap(b) < p.size || p.closed.Load() {
		return
	}
	p.totalRecycle.Add(1)
	select {
	case p.slabs <- b[:p.size:p.size]:
	default:
		p.totalDrop.Add(1)
	}
}

func (p *ChanPool) Stats() Stats {
	return Stats{
		SlabSize:  p.size,
		Allocated: p.totalAlloc.Load(),
		Acquired:  p.totalAcquire.Load(),
		Recycled:  p.totalRecycle.Load(),
		Dropped:   p.totalDrop.Load(),
		Idle:      len(p.slabs),
	}
}

func (p *ChanPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	for {
		select {
		case <-p.slabs:
		default:
			return nil
		}
	}
}

var _ Source = (*ChanPool)(nil)
