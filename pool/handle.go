// File: pool/handle.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync/atomic"

	"github.com/momentics/hioload-bridge/api"
)

// Origin tags where a handle's memory came from.
type Origin uint8

const (
	// Pooled memory is a slab borrowed from a Source.
	Pooled Origin = iota
	// Standalone memory is a region sized exactly to the request.
	Standalone
)

func (o Origin) String() string {
	if o == Pooled {
		return "pooled"
	}
	return "standalone"
}

// Handle owns one native memory block until Free.
type Handle struct {
	origin Origin
	src    Source
	mem    []byte // usable block, cap is the hard limit
	reg    region // standalone only
	freed  atomic.Bool
	onFree func(*Handle)
}

// Allocate returns a pooled slab when n fits src's slab size, a standalone
// region of exactly n bytes otherwise. A nil src always yields standalone memory.
func Allocate(src Source, n int) (*Handle, error) {
	if n < 0 {
		return nil, ErrNegativeCapacity
	}
	if src != nil && n <= src.SlabSize() {
		b, err := src.Acquire()
		if err != nil {
			return nil, err
		}
		return &Handle{origin: Pooled, src: src, mem: b}, nil
	}
	r := mapRegion(n)
	return &Handle{origin: Standalone, mem: r.raw[:n:n], reg: r}, nil
}

// Origin reports the handle's memory source.
func (h *Handle) Origin() Origin { return h.origin }

// Cap is the largest capacity the handle can serve without reallocation.
func (h *Handle) Cap() int { return cap(h.mem) }

// Bytes returns the first n bytes of the block.
func (h *Handle) Bytes(n int) []byte { return h.mem[:n:n] }

// Freed reports whether Free has run.
func (h *Handle) Freed() bool { return h.freed.Load() }

// Free returns the memory to its origin. Only the first call has an effect;
// later calls return api.ErrDoubleFree.
func (h *Handle) Free() error {
	if !h.freed.CompareAndSwap(false, true) {
		return api.ErrDoubleFree
	}
	var err error
	switch h.origin {
	case Pooled:
		h.src.Recycle(h.mem[:cap(h.mem)])
	case Standalone:
		err = h.reg.unmap()
	}
	h.mem = nil
	if h.onFree != nil {
		h.onFree(h)
	}
	return err
}
