// File: pool/heap.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync/atomic"

	"github.com/momentics/hioload-bridge/api"
)

// HeapBuffer is an api.Buffer over a Go slice.
type HeapBuffer struct {
	buf  []byte
	r, w int
	refs atomic.Int32
}

// NewHeapBuffer returns an empty buffer with the given capacity.
func NewHeapBuffer(capacity int) *HeapBuffer {
	if capacity < 0 {
		capacity = 0
	}
	b := &HeapBuffer{buf: make([]byte, capacity)}
	b.refs.Store(1)
	return b
}

// Wrap exposes p as a readable buffer without copying.
func Wrap(p []byte) *HeapBuffer {
	b := &HeapBuffer{buf: p, w: len(p)}
	b.refs.Store(1)
	return b
}

// Copied returns a readable buffer holding a copy of p.
func Copied(p []byte) *HeapBuffer {
	return Wrap(append([]byte(nil), p...))
}

// CopiedString returns a readable buffer holding s.
func CopiedString(s string) *HeapBuffer {
	return Wrap([]byte(s))
}

func (b *HeapBuffer) ReaderIndex() int { return b.r }
func (b *HeapBuffer) WriterIndex() int { return b.w }

func (b *HeapBuffer) SetReaderIndex(i int) {
	if i < 0 || i > b.w {
		panic("pool: reader index out of range")
	}
	b.r = i
}

func (b *HeapBuffer) SetWriterIndex(i int) {
	if i < b.r || i > len(b.buf) {
		panic("pool: writer index out of range")
	}
	b.w = i
}

func (b *HeapBuffer) ReadableBytes() int { return b.w - b.r }
func (b *HeapBuffer) WritableBytes() int { return len(b.buf) - b.w }
func (b *HeapBuffer) IsReadable() bool   { return b.w > b.r }
func (b *HeapBuffer) Capacity() int      { return len(b.buf) }
func (b *HeapBuffer) Bytes() []byte      { return b.buf[b.r:b.w] }
func (b *HeapBuffer) Writable() []byte   { return b.buf[b.w:] }
func (b *HeapBuffer) IsDirect() bool     { return false }
func (b *HeapBuffer) RefCnt() int32      { return b.refs.Load() }

func (b *HeapBuffer) SetCapacity(n int) error {
	if n < 0 {
		return ErrNegativeCapacity
	}
	if b.refs.Load() <= 0 {
		return api.ErrAlreadyReleased
	}
	if n <= cap(b.buf) {
		b.buf = b.buf[:n]
	} else {
		nb := make([]byte, n)
		copy(nb, b.buf[:b.w])
		b.buf = nb
	}
	if b.w > n {
		b.w = n
	}
	if b.r > b.w {
		b.r = b.w
	}
	return nil
}

func (b *HeapBuffer) WriteBytes(p []byte) error {
	if need := b.w + len(p); need > len(b.buf) {
		if err := b.SetCapacity(growCapacity(len(b.buf), need)); err != nil {
			return err
		}
	}
	b.w += copy(b.buf[b.w:], p)
	return nil
}

func (b *HeapBuffer) Retain() api.Buffer {
	if b.refs.Add(1) <= 1 {
		panic(api.ErrAlreadyReleased)
	}
	return b
}

func (b *HeapBuffer) Release() error {
	for {
		n := b.refs.Load()
		if n <= 0 {
			return api.ErrAlreadyReleased
		}
		if b.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				b.buf = nil
				b.r, b.w = 0, 0
			}
			return nil
		}
	}
}

var _ api.Buffer = (*HeapBuffer)(nil)
