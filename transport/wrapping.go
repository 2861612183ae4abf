// File: transport/wrapping.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"sync"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
)

// WrappingSocketChannel drives an already established provider connection,
// either accepted by a server channel or handed over with Wrap.
type WrappingSocketChannel struct {
	socketChannel

	halfMu sync.Mutex
	input  *HalfCloseFuture
	output *HalfCloseFuture
}

func newWrapping(parent api.Channel, conn api.StreamConnection, cfg Config) (*WrappingSocketChannel, error) {
	c := &WrappingSocketChannel{}
	c.initSocket(c, parent, cfg)
	err := c.attach(conn)
	return c, err
}

// newAcceptedChannel wraps a connection accepted by parent with no-delay on.
func newAcceptedChannel(parent api.Channel, conn api.StreamConnection, cfg Config) (*WrappingSocketChannel, error) {
	c, err := newWrapping(parent, conn, cfg)
	if err != nil {
		return c, err
	}
	if conn.SupportsOption(api.OptTCPNoDelay) {
		if _, err := conn.SetOption(api.OptTCPNoDelay, true); err != nil {
			return c, &ChannelError{Op: "set", Option: api.OptTCPNoDelay, Err: err}
		}
	}
	return c, nil
}

// Wrap adopts conn as a standalone channel. It registers itself on a loop over
// the connection's IoThread and starts reading once registered.
func Wrap(conn api.StreamConnection, cfg Config) (*WrappingSocketChannel, api.Future) {
	c, err := newWrapping(nil, conn, cfg)
	if err != nil {
		_ = conn.Close()
		return c, concurrency.Failed(err)
	}
	f := NewEventLoop(nil, conn.IoThread()).Register(c, concurrency.NewPromise())
	f.AddListener(func(r api.Future) {
		if r.IsSuccess() {
			c.Read()
		}
	})
	return c, f
}

// Connect is rejected: the connection already exists.
func (c *WrappingSocketChannel) Connect(string, string) api.Future {
	return concurrency.Failed(api.ErrWrappedChannel)
}

// Bind is rejected: the connection already exists.
func (c *WrappingSocketChannel) Bind(string) api.Future {
	return concurrency.Failed(api.ErrWrappedChannel)
}

// ShutdownInput closes the read half. Repeated calls return the same future.
func (c *WrappingSocketChannel) ShutdownInput() api.Future { return c.shutdownInput() }

// ShutdownInputWith also completes p with the outcome.
func (c *WrappingSocketChannel) ShutdownInputWith(p api.Promise) api.Future {
	return c.shutdownInput().link(p)
}

// ShutdownOutput closes the write half. Repeated calls return the same future.
func (c *WrappingSocketChannel) ShutdownOutput() api.Future { return c.shutdownOutput() }

// ShutdownOutputWith also completes p with the outcome.
func (c *WrappingSocketChannel) ShutdownOutputWith(p api.Promise) api.Future {
	return c.shutdownOutput().link(p)
}

// Shutdown closes both halves.
func (c *WrappingSocketChannel) Shutdown() *ShutdownFuture {
	return NewShutdownFuture(c.shutdownInput(), c.shutdownOutput())
}

// IsShutdown reports whether both halves are closed.
func (c *WrappingSocketChannel) IsShutdown() bool {
	return c.IsInputShutdown() && c.IsOutputShutdown()
}

func (c *WrappingSocketChannel) shutdownInput() *HalfCloseFuture {
	c.halfMu.Lock()
	if c.input != nil {
		f := c.input
		c.halfMu.Unlock()
		return f
	}
	f := newHalfCloseFuture()
	c.input = f
	c.halfMu.Unlock()

	src := c.connection().Source()
	src.SetCloseListener(func(api.SourceChannel) { f.closed() })
	if err := src.ShutdownReads(); err != nil {
		f.failed(ioFailure("shutdown input", err))
	}
	return f
}

func (c *WrappingSocketChannel) shutdownOutput() *HalfCloseFuture {
	c.halfMu.Lock()
	if c.output != nil {
		f := c.output
		c.halfMu.Unlock()
		return f
	}
	f := newHalfCloseFuture()
	c.output = f
	c.halfMu.Unlock()

	snk := c.connection().Sink()
	snk.SetCloseListener(func(api.SinkChannel) { f.closed() })
	if err := snk.ShutdownWrites(); err != nil {
		f.failed(ioFailure("shutdown output", err))
	}
	return f
}

var _ api.Channel = (*WrappingSocketChannel)(nil)
