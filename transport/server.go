// File: transport/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
)

// ServerSocketChannel accepts provider connections and fires each one as a
// WrappingSocketChannel through its pipeline.
type ServerSocketChannel struct {
	baseChannel

	mu       sync.RWMutex
	ac       api.AcceptingChannel
	pending  *api.OptionMap
	closed   atomic.Bool
	childCfg Config
	arenas   chan *acceptArena
}

// NewServerSocketChannel returns an unbound server channel; accepted children
// use childCfg.
func NewServerSocketChannel(cfg, childCfg Config) *ServerSocketChannel {
	c := &ServerSocketChannel{
		pending:  api.NewOptionMap(),
		childCfg: childCfg,
		arenas:   make(chan *acceptArena, 2),
	}
	c.init(c, nil, cfg, c)
	c.cfg.onAutoRead = func(on bool) {
		if on {
			c.Read()
		}
	}
	return c
}

// WrapAcceptingChannel adopts an existing provider server and registers it on
// group, or on a group over the server's worker when group is nil. The loop
// over the server's own thread is preferred.
func WrapAcceptingChannel(ac api.AcceptingChannel, group *EventLoopGroup, cfg, childCfg Config) (*ServerSocketChannel, api.Future) {
	c := NewServerSocketChannel(cfg, childCfg)
	c.ac = ac
	c.pending = nil
	ac.SetAcceptListener(c.handleAccept)
	if group == nil {
		group = NewEventLoopGroup(ac.Worker())
	}
	var f api.Future
	if l, ok := group.LoopFor(ac.IoThread()); ok {
		f = l.Register(c, concurrency.NewPromise())
	} else {
		f = group.Register(c)
	}
	f.AddListener(func(r api.Future) {
		if r.IsSuccess() {
			c.Read()
		}
	})
	return c, f
}

func (c *ServerSocketChannel) acceptor() api.AcceptingChannel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ac
}

// Acceptor returns the provider server, nil before Bind.
func (c *ServerSocketChannel) Acceptor() api.AcceptingChannel { return c.acceptor() }

func (c *ServerSocketChannel) setProviderOption(opt api.Option, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ac == nil {
		c.pending.Set(opt, v)
		return nil
	}
	_, err := c.ac.SetOption(opt, v)
	return err
}

func (c *ServerSocketChannel) providerOption(opt api.Option) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.ac == nil {
		v, _ := c.pending.Get(opt)
		return v, nil
	}
	return c.ac.Option(opt)
}

func (c *ServerSocketChannel) compatible(l *EventLoop) bool { return c.compatibleParent(l) }

func (c *ServerSocketChannel) afterRegister() {
	if c.IsActive() {
		c.fireActive()
		if c.cfg.AutoRead() {
			c.beginRead()
		}
	}
}

// Bind creates the provider server on addr. The channel must be registered;
// once bound its loop moves to the server's IoThread.
func (c *ServerSocketChannel) Bind(addr string) api.Future {
	p := concurrency.NewPromise()
	if c.eventLoop() == nil {
		p.TryFailure(api.ErrNotRegistered)
		return p
	}
	if err := c.runOnLoop(func() { c.bind0(addr, p) }); err != nil {
		p.TryFailure(err)
	}
	return p
}

func (c *ServerSocketChannel) bind0(addr string, p api.Promise) {
	if !p.SetUncancellable() {
		return
	}
	if c.closed.Load() {
		p.TryFailure(api.ErrChannelClosed)
		return
	}
	if c.acceptor() != nil {
		p.TryFailure(errAlreadyBound)
		return
	}
	loop := c.eventLoop()
	w := loop.IoThread().Worker()

	c.mu.RLock()
	opts := c.pending.Clone()
	c.mu.RUnlock()
	if _, ok := opts.Get(api.OptWorkerIOThreads); !ok {
		opts.Set(api.OptWorkerIOThreads, w.IoThreadCount())
	}

	ac, err := w.CreateStreamConnectionServer(addr, c.handleAccept, opts)
	if err != nil {
		p.TryFailure(ioFailure("bind", err))
		return
	}
	c.mu.Lock()
	c.ac = ac
	c.pending = nil
	c.mu.Unlock()

	next := NewEventLoop(loop.group, ac.IoThread())
	if g, ok := loop.group.(*EventLoopGroup); ok {
		if l, ok := g.LoopFor(ac.IoThread()); ok {
			next = l
		}
	}
	c.loop.Store(next)

	if c.cfg.AutoRead() {
		ac.ResumeAccepts()
	}
	p.TrySuccess(nil)
}

func (c *ServerSocketChannel) IsOpen() bool {
	ac := c.acceptor()
	return !c.closed.Load() && (ac == nil || ac.IsOpen())
}

func (c *ServerSocketChannel) IsActive() bool { return c.IsOpen() }

func (c *ServerSocketChannel) IsWritable() bool { return false }

func (c *ServerSocketChannel) LocalAddr() net.Addr {
	if ac := c.acceptor(); ac != nil {
		return ac.LocalAddr()
	}
	return nil
}

func (c *ServerSocketChannel) RemoteAddr() net.Addr { return nil }

// Read resumes accepting.
func (c *ServerSocketChannel) Read() { _ = c.runOnLoop(c.beginRead) }

func (c *ServerSocketChannel) beginRead() {
	if ac := c.acceptor(); ac != nil && !c.closed.Load() {
		ac.ResumeAccepts()
	}
}

func (c *ServerSocketChannel) Write(any) api.Future {
	return concurrency.Failed(api.ErrNotSupported)
}

func (c *ServerSocketChannel) Flush() {}

func (c *ServerSocketChannel) WriteAndFlush(any) api.Future {
	return concurrency.Failed(api.ErrNotSupported)
}

func (c *ServerSocketChannel) Close() api.Future {
	p := concurrency.NewPromise()
	c.runOrDefer(func() { c.close0(p) })
	return p
}

func (c *ServerSocketChannel) close0(p api.Promise) {
	if !c.closed.CompareAndSwap(false, true) {
		c.closeFuture.AddListener(func(api.Future) { p.TrySuccess(nil) })
		return
	}
	var closeErr error
	if ac := c.acceptor(); ac != nil {
		ac.SuspendAccepts()
		if err := ac.Close(); err != nil {
			closeErr = ioFailure("close", err)
		}
	}
	c.fireInactive()
	c.closeFuture.TrySuccess(nil)
	if closeErr != nil {
		p.TryFailure(closeErr)
		return
	}
	p.TrySuccess(nil)
}

var _ api.Channel = (*ServerSocketChannel)(nil)
