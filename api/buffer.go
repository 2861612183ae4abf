// Package api
// Author: momentics
//
// Reference-counted byte buffers, allocators and receive-size estimation.
//
// Buffers handed to a pipeline belong to whoever consumes them: a handler that
// stops propagation of a Buffer must Release it.

package api

import "io"

// Buffer describes a reference-counted region with independent reader and
// writer positions. Bytes between the reader and writer index are readable;
// bytes between the writer index and Capacity are writable.
type Buffer interface {
	ReaderIndex() int
	SetReaderIndex(i int)
	WriterIndex() int
	SetWriterIndex(i int)

	ReadableBytes() int
	WritableBytes() int
	IsReadable() bool

	// Capacity is the current size of the backing region.
	Capacity() int

	// SetCapacity resizes the backing region, preserving indices that still fit.
	SetCapacity(n int) error

	// Bytes returns the readable view [readerIndex, writerIndex).
	Bytes() []byte

	// Writable returns the writable tail [writerIndex, capacity).
	Writable() []byte

	// WriteBytes appends p at the writer index, growing the buffer if needed.
	WriteBytes(p []byte) error

	// IsDirect reports whether the buffer is backed by native (pooled or mapped) memory.
	IsDirect() bool

	Retain() Buffer

	// Release decrements the reference count and frees the backing memory when
	// it reaches zero. Releasing an already released buffer returns ErrAlreadyReleased.
	Release() error

	RefCnt() int32
}

// BufferAllocator hands out framework buffers.
type BufferAllocator interface {
	Direct(capacity int) (Buffer, error)
	Heap(capacity int) Buffer
	// IOBuffer returns the buffer type preferred for socket I/O.
	IOBuffer(capacity int) (Buffer, error)
	// IsDirectPooled reports whether Direct draws from a pool.
	IsDirectPooled() bool
}

// RecvAllocator creates per-channel receive size estimators.
type RecvAllocator interface {
	NewHandle() RecvHandle
}

// RecvHandle guesses the next receive buffer size and learns from actual reads.
type RecvHandle interface {
	Guess() int
	Record(actualReadBytes int)
}

// FileRegion is a byte range of a file sent with the provider's transfer primitive.
type FileRegion interface {
	Position() int64
	Count() int64
	Transferred() int64
	// TransferTo moves the next chunk of the region into sink and returns
	// the number of bytes moved; zero means the sink is full.
	TransferTo(sink SinkChannel) (int64, error)
	Release() error
}

// RegionSource is what a FileRegion reads from.
type RegionSource interface {
	io.ReaderAt
	io.Closer
}
