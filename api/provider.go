// File: api/provider.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// I/O provider contracts: workers, I/O threads and readiness-driven connections.
//
// Listeners registered on a connection run on the connection's I/O thread,
// except accept listeners of a server configured for direct delivery.

package api

import (
	"context"
	"io"
	"net"
	"time"
)

// Key cancels a timer created by IoThread.ExecuteAfter.
type Key interface {
	// Remove cancels the timer and reports whether it was still pending.
	Remove() bool
}

// IoThread is a single provider goroutine executing tasks and listeners.
type IoThread interface {
	Execute(task func()) error
	ExecuteAfter(task func(), delay time.Duration) Key
	InThread() bool
	GoroutineID() uint64
	Index() int
	Worker() Worker

	// OpenStreamConnection dials remote; the returned future yields a StreamConnection
	// bound to this thread. Options are applied before the connection is published.
	OpenStreamConnection(remote, local string, opts *OptionMap) Future
}

// Worker owns a fixed set of I/O threads.
type Worker interface {
	ID() string
	Name() string
	IoThreadCount() int
	// IoThread returns the next thread in rotation.
	IoThread() IoThread
	IoThreadAt(i int) IoThread

	CreateStreamConnectionServer(addr string, listener func(AcceptingChannel), opts *OptionMap) (AcceptingChannel, error)

	Shutdown()
	IsShutdown() bool
	IsTerminated() bool
	AwaitTermination(ctx context.Context) error
}

// StreamConnection is a full-duplex provider connection.
type StreamConnection interface {
	Source() SourceChannel
	Sink() SinkChannel
	IoThread() IoThread
	Worker() Worker

	IsOpen() bool
	IsReadShutdown() bool
	IsWriteShutdown() bool
	Close() error

	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// SetOption applies opt and returns the previous value.
	SetOption(opt Option, v any) (any, error)
	Option(opt Option) (any, error)
	SupportsOption(opt Option) bool

	SetCloseListener(fn func(StreamConnection))
}

// SourceChannel is the readable half of a connection.
type SourceChannel interface {
	// Read never blocks: (0, nil) means nothing is available, (0, io.EOF) that the peer closed.
	Read(p []byte) (int, error)

	ResumeReads()
	SuspendReads()
	IsReadResumed() bool
	ShutdownReads() error
	IsOpen() bool

	SetReadListener(fn func(SourceChannel))
	SetCloseListener(fn func(SourceChannel))
	IoThread() IoThread
}

// SinkChannel is the writable half of a connection.
type SinkChannel interface {
	// Write is a gathering, non-blocking write. It returns the number of bytes
	// accepted, which is zero when the sink is full.
	Write(bufs [][]byte) (int64, error)
	// TransferFrom moves up to count bytes starting at pos from r into the sink.
	TransferFrom(r io.ReaderAt, pos, count int64) (int64, error)

	ResumeWrites()
	SuspendWrites()
	IsWriteResumed() bool
	ShutdownWrites() error
	IsOpen() bool

	SetWriteListener(fn func(SinkChannel))
	SetCloseListener(fn func(SinkChannel))
	IoThread() IoThread
}

// AcceptingChannel is a listening provider socket.
type AcceptingChannel interface {
	// Accept never blocks: (nil, nil) means no connection is pending.
	Accept() (StreamConnection, error)

	ResumeAccepts()
	SuspendAccepts()
	IsAcceptResumed() bool
	SetAcceptListener(fn func(AcceptingChannel))

	IoThread() IoThread
	Worker() Worker
	IsOpen() bool
	Close() error
	LocalAddr() net.Addr

	SetOption(opt Option, v any) (any, error)
	Option(opt Option) (any, error)
}
