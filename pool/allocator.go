// File: pool/allocator.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync/atomic"

	"github.com/momentics/hioload-bridge/api"
)

// Recorder observes handle allocation and release.
type Recorder interface {
	HandleAllocated(origin Origin)
	HandleFreed(origin Origin)
}

// AllocatorStats counts handles by origin.
type AllocatorStats struct {
	Pooled     int64
	Standalone int64
	Frees      int64
	Live       int64
}

// Allocator is the api.BufferAllocator bound to one Source.
type Allocator struct {
	src Source
	rec Recorder

	pooled     atomic.Int64
	standalone atomic.Int64
	frees      atomic.Int64
}

// NewAllocator binds an allocator to src; a nil src makes every direct buffer standalone.
func NewAllocator(src Source) *Allocator {
	return &Allocator{src: src}
}

// WithRecorder attaches r; call before the allocator is shared.
func (a *Allocator) WithRecorder(r Recorder) *Allocator {
	a.rec = r
	return a
}

// Source returns the backing slab source.
func (a *Allocator) Source() Source { return a.src }

func (a *Allocator) allocate(n int) (*Handle, error) {
	h, err := Allocate(a.src, n)
	if err != nil {
		return nil, err
	}
	if h.Origin() == Pooled {
		a.pooled.Add(1)
	} else {
		a.standalone.Add(1)
	}
	if a.rec != nil {
		a.rec.HandleAllocated(h.Origin())
	}
	h.onFree = a.freed
	return h, nil
}

func (a *Allocator) freed(h *Handle) {
	a.frees.Add(1)
	if a.rec != nil {
		a.rec.HandleFreed(h.Origin())
	}
}

// Direct allocates a native buffer.
func (a *Allocator) Direct(capacity int) (api.Buffer, error) {
	return newDirectBuffer(a, capacity)
}

// Heap allocates a Go heap buffer.
func (a *Allocator) Heap(capacity int) api.Buffer {
	return NewHeapBuffer(capacity)
}

// IOBuffer prefers native memory for socket I/O.
func (a *Allocator) IOBuffer(capacity int) (api.Buffer, error) {
	return a.Direct(capacity)
}

func (a *Allocator) IsDirectPooled() bool { return a.src != nil }

// Stats returns handle counters.
func (a *Allocator) Stats() AllocatorStats {
	p, s, f := a.pooled.Load(), a.standalone.Load(), a.frees.Load()
	return AllocatorStats{Pooled: p, Standalone: s, Frees: f, Live: p + s - f}
}

var _ api.BufferAllocator = (*Allocator)(nil)
