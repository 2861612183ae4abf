// File: transport/accept.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Accept listener. On the loop thread connections are accepted and fired
// directly. On any other thread they are first collected into an arena and
// replayed on the loop by one task, so the pipeline only ever sees loop calls.
// Either way at most MaxMessagesPerRead connections are taken per wakeup and
// exactly one ReadComplete follows them.

package transport

import "github.com/momentics/hioload-bridge/api"

// acceptArena carries accepted connections to the loop. Its backing array
// grows as needed and is kept for reuse.
type acceptArena struct {
	conns []api.StreamConnection
}

func (c *ServerSocketChannel) takeArena() *acceptArena {
	select {
	case a := <-c.arenas:
		return a
	default:
		return &acceptArena{}
	}
}

func (c *ServerSocketChannel) putArena(a *acceptArena) {
	clear(a.conns)
	a.conns = a.conns[:0]
	select {
	case c.arenas <- a:
	default:
	}
}

func (c *ServerSocketChannel) handleAccept(ac api.AcceptingChannel) {
	if c.closed.Load() {
		return
	}
	if !c.cfg.AutoRead() {
		ac.SuspendAccepts()
	}
	loop := c.eventLoop()
	if loop == nil || loop.InEventLoop() {
		c.acceptInLoop(ac)
		return
	}
	c.acceptForeign(ac, loop)
}

func (c *ServerSocketChannel) acceptInLoop(ac api.AcceptingChannel) {
	limit := c.cfg.MaxMessagesPerRead()
	rec := c.cfg.Recorder()
	for i := 0; i < limit; i++ {
		conn, err := ac.Accept()
		if err != nil {
			c.fireException(ioFailure("accept", err))
			break
		}
		if conn == nil {
			break
		}
		rec.Accepted()
		c.fireChild(conn)
	}
	c.pipeline.FireChannelReadComplete()
}

func (c *ServerSocketChannel) acceptForeign(ac api.AcceptingChannel, loop *EventLoop) {
	limit := c.cfg.MaxMessagesPerRead()
	rec := c.cfg.Recorder()
	arena := c.takeArena()
	var acceptErr error
	for len(arena.conns) < limit {
		conn, err := ac.Accept()
		if err != nil {
			acceptErr = err
			break
		}
		if conn == nil {
			break
		}
		arena.conns = append(arena.conns, conn)
	}

	err := loop.Execute(func() {
		if c.closed.Load() {
			closeAll(arena.conns)
			c.putArena(arena)
			return
		}
		for _, conn := range arena.conns {
			rec.Accepted()
			c.fireChild(conn)
		}
		if acceptErr != nil {
			c.fireException(ioFailure("accept", acceptErr))
		}
		c.pipeline.FireChannelReadComplete()
		c.putArena(arena)
	})
	if err != nil {
		closeAll(arena.conns)
		c.putArena(arena)
	}
}

func closeAll(conns []api.StreamConnection) {
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func (c *ServerSocketChannel) fireChild(conn api.StreamConnection) {
	child, err := newAcceptedChannel(c, conn, c.childCfg)
	if err != nil {
		_ = conn.Close()
		c.fireException(err)
		return
	}
	c.pipeline.FireChannelRead(child)
}
