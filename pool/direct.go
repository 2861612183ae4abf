// File: pool/direct.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// DirectBuffer is a reference-counted api.Buffer over a Handle. The handle is
// freed by the deallocation hook when the count reaches zero, and on resize
// only after the replacement handle is acquired and filled.

package pool

import (
	"sync/atomic"

	"github.com/momentics/hioload-bridge/api"
)

// DirectBuffer is a framework buffer over native memory.
type DirectBuffer struct {
	alloc *Allocator
	h     *Handle
	buf   []byte // len(buf) is the capacity
	r, w  int
	refs  atomic.Int32
}

func newDirectBuffer(a *Allocator, capacity int) (*DirectBuffer, error) {
	h, err := a.allocate(capacity)
	if err != nil {
		return nil, err
	}
	b := &DirectBuffer{alloc: a, h: h, buf: h.Bytes(capacity)}
	b.refs.Store(1)
	return b, nil
}

// Handle exposes the backing handle; nil after deallocation.
func (b *DirectBuffer) Handle() *Handle { return b.h }

func (b *DirectBuffer) ReaderIndex() int { return b.r }
func (b *DirectBuffer) WriterIndex() int { return b.w }

func (b *DirectBuffer) SetReaderIndex(i int) {
	if i < 0 || i > b.w {
		panic("pool: reader index out of range")
	}
	b.r = i
}

func (b *DirectBuffer) SetWriterIndex(i int) {
	if i < b.r || i > len(b.buf) {
		panic("pool: writer index out of range")
	}
	b.w = i
}

func (b *DirectBuffer) ReadableBytes() int { return b.w - b.r }
func (b *DirectBuffer) WritableBytes() int { return len(b.buf) - b.w }
func (b *DirectBuffer) IsReadable() bool   { return b.w > b.r }
func (b *DirectBuffer) Capacity() int      { return len(b.buf) }
func (b *DirectBuffer) Bytes() []byte      { return b.buf[b.r:b.w] }
func (b *DirectBuffer) Writable() []byte   { return b.buf[b.w:] }
func (b *DirectBuffer) IsDirect() bool     { return true }
func (b *DirectBuffer) RefCnt() int32      { return b.refs.Load() }

// SetCapacity resizes the buffer. Growing past the handle's block acquires a
// new handle, copies the live bytes and only then frees the old handle.
func (b *DirectBuffer) SetCapacity(n int) error {
	if n < 0 {
		return ErrNegativeCapacity
	}
	if b.refs.Load() <= 0 {
		return api.ErrAlreadyReleased
	}
	if n == len(b.buf) {
		return nil
	}
	if n <= b.h.Cap() {
		b.buf = b.h.Bytes(n)
	} else {
		nh, err := b.alloc.allocate(n)
		if err != nil {
			return err
		}
		nb := nh.Bytes(n)
		if b.r < b.w {
			copy(nb[b.r:], b.buf[b.r:b.w])
		}
		old := b.h
		b.h, b.buf = nh, nb
		if err := old.Free(); err != nil {
			return err
		}
	}
	if b.w > n {
		b.w = n
	}
	if b.r > b.w {
		b.r = b.w
	}
	return nil
}

func (b *DirectBuffer) WriteBytes(p []byte) error {
	if need := b.w + len(p); need > len(b.buf) {
		if err := b.SetCapacity(growCapacity(len(b.buf), need)); err != nil {
			return err
		}
	}
	b.w += copy(b.buf[b.w:], p)
	return nil
}

func (b *DirectBuffer) Retain() api.Buffer {
	for {
		n := b.refs.Load()
		if n <= 0 {
			panic(api.ErrAlreadyReleased)
		}
		if b.refs.CompareAndSwap(n, n+1) {
			return b
		}
	}
}

func (b *DirectBuffer) Release() error {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return api.ErrAlreadyReleased
		}
		if b.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				return b.deallocate()
			}
			return nil
		}
	}
}

// deallocate is the single point where the handle is given back.
func (b *DirectBuffer) deallocate() error {
	h := b.h
	b.h, b.buf = nil, nil
	b.r, b.w = 0, 0
	return h.Free()
}

func growCapacity(cur, need int) int {
	n := cur * 2
	if n < 64 {
		n = 64
	}
	for n < need {
		n *= 2
	}
	return n
}

var _ api.Buffer = (*DirectBuffer)(nil)
