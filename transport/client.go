// File: transport/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"fmt"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
)

// SocketChannel is a client channel that opens its own provider connection.
// Provider options set before Connect are buffered and handed to the dial.
type SocketChannel struct {
	socketChannel

	connectPromise api.Promise
	connectFuture  api.Future
	timeout        api.ScheduledFuture
}

// NewSocketChannel returns an unconnected, unregistered client channel.
func NewSocketChannel(cfg Config) *SocketChannel {
	c := &SocketChannel{}
	c.initSocket(c, nil, cfg)
	c.pending = api.NewOptionMap()
	c.onClose = c.abortConnect
	return c
}

// Connect dials remote (optionally from local) on the channel's loop thread.
// The channel must be registered first.
func (c *SocketChannel) Connect(remote, local string) api.Future {
	p := concurrency.NewPromise()
	if c.eventLoop() == nil {
		p.TryFailure(api.ErrNotRegistered)
		return p
	}
	if err := c.runOnLoop(func() { c.connect0(remote, local, p) }); err != nil {
		p.TryFailure(err)
	}
	return p
}

func (c *SocketChannel) connect0(remote, local string, p api.Promise) {
	if p.IsDone() {
		return
	}
	switch {
	case c.connection() != nil:
		p.TryFailure(errAlreadyConnected)
		return
	case c.closed.Load():
		p.TryFailure(api.ErrChannelClosed)
		return
	case c.connectPromise != nil:
		p.TryFailure(errConnectPending)
		return
	}
	loop := c.eventLoop()
	c.connectPromise = p

	c.connMu.RLock()
	opts := c.pending.Clone()
	c.connMu.RUnlock()

	fut := loop.IoThread().OpenStreamConnection(remote, local, opts)
	c.connectFuture = fut
	if d := c.cfg.ConnectTimeout(); d > 0 {
		c.timeout = loop.Schedule(func() (any, error) {
			err := fmt.Errorf("%w: connection timed out: %s", api.ErrOperationTimeout, remote)
			if p.TryFailure(err) {
				c.close0(nil)
			}
			return nil, nil
		}, d)
	}
	fut.AddListener(func(f api.Future) {
		err := c.runOnLoop(func() { c.connected(f, p) })
		if err == nil {
			return
		}
		if conn, ok := f.Value().(api.StreamConnection); ok {
			_ = conn.Close()
		}
		p.TryFailure(err)
		c.runOrDefer(func() { c.close0(nil) })
	})
	p.AddListener(func(f api.Future) {
		if f.IsCancelled() {
			c.runOrDefer(func() {
				fut.Cancel()
				c.close0(nil)
			})
		}
	})
}

func (c *SocketChannel) connected(f api.Future, p api.Promise) {
	c.cancelTimeout()
	if c.connectPromise == p {
		c.connectPromise = nil
		c.connectFuture = nil
	}
	if !f.IsSuccess() {
		err := f.Err()
		if err == nil {
			err = api.ErrCancelled
		}
		if p.TryFailure(ioFailure("connect", err)) {
			c.close0(nil)
		}
		return
	}
	conn, ok := f.Value().(api.StreamConnection)
	if !ok {
		p.TryFailure(api.ErrInvalidArgument)
		c.close0(nil)
		return
	}
	if p.IsDone() || c.closed.Load() {
		_ = conn.Close()
		return
	}

	wasActive := c.IsActive()
	if err := c.attach(conn); err != nil {
		c.fireException(err)
	}
	promiseSet := p.TrySuccess(nil)
	if !wasActive && c.IsActive() {
		c.fireActive()
	}
	if !promiseSet {
		c.close0(nil)
		return
	}
	if c.cfg.AutoRead() {
		c.beginRead()
	}
}

func (c *SocketChannel) cancelTimeout() {
	if c.timeout != nil {
		c.timeout.Cancel()
		c.timeout = nil
	}
}

// abortConnect fails an in-flight connect when the channel closes under it.
func (c *SocketChannel) abortConnect() {
	c.cancelTimeout()
	if p := c.connectPromise; p != nil {
		c.connectPromise = nil
		p.TryFailure(api.ErrChannelClosed)
	}
	if f := c.connectFuture; f != nil {
		c.connectFuture = nil
		f.Cancel()
	}
}

// Bind is not supported; pass a local address to Connect instead.
func (c *SocketChannel) Bind(string) api.Future {
	return concurrency.Failed(api.ErrNotSupported)
}

// ShutdownOutput is not supported on client channels.
func (c *SocketChannel) ShutdownOutput() api.Future {
	return concurrency.Failed(api.ErrNotSupported)
}

var _ api.Channel = (*SocketChannel)(nil)
