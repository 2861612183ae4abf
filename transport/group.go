// File: transport/group.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"context"
	"sync/atomic"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
)

// EventLoopGroup exposes every IoThread of a worker as an event loop.
type EventLoopGroup struct {
	w     api.Worker
	loops []*EventLoop
	next  atomic.Uint32
}

// NewEventLoopGroup creates one loop per IoThread of w.
func NewEventLoopGroup(w api.Worker) *EventLoopGroup {
	g := &EventLoopGroup{w: w, loops: make([]*EventLoop, w.IoThreadCount())}
	for i := range g.loops {
		g.loops[i] = NewEventLoop(g, w.IoThreadAt(i))
	}
	return g
}

// Worker returns the provider worker behind the group.
func (g *EventLoopGroup) Worker() api.Worker { return g.w }

// Loops returns the loops in thread order.
func (g *EventLoopGroup) Loops() []*EventLoop { return g.loops }

// Next returns loops in round robin order.
func (g *EventLoopGroup) Next() api.EventLoop { return g.nextLoop() }

func (g *EventLoopGroup) nextLoop() *EventLoop {
	n := g.next.Add(1) - 1
	return g.loops[int(n%uint32(len(g.loops)))]
}

// LoopFor returns the loop wrapping t, or false when t belongs to another worker.
func (g *EventLoopGroup) LoopFor(t api.IoThread) (*EventLoop, bool) {
	if t == nil || t.Worker() != g.w {
		return nil, false
	}
	i := t.Index()
	if i < 0 || i >= len(g.loops) {
		return nil, false
	}
	return g.loops[i], true
}

// Register binds ch to a loop. A channel that already owns a connection goes
// to the loop of that connection's thread.
func (g *EventLoopGroup) Register(ch api.Channel) api.Future {
	promise := concurrency.NewPromise()
	if c, ok := ch.(interface{ connection() api.StreamConnection }); ok {
		if conn := c.connection(); conn != nil {
			loop, ok := g.LoopFor(conn.IoThread())
			if !ok {
				promise.TryFailure(api.ErrIncompatibleLoop)
				return promise
			}
			return loop.Register(ch, promise)
		}
	}
	return g.nextLoop().Register(ch, promise)
}

// Shutdown stops the worker without waiting.
func (g *EventLoopGroup) Shutdown() { g.w.Shutdown() }

// ShutdownGracefully stops the worker and waits for termination or ctx.
func (g *EventLoopGroup) ShutdownGracefully(ctx context.Context) error {
	g.w.Shutdown()
	return g.w.AwaitTermination(ctx)
}

func (g *EventLoopGroup) IsShutdown() bool   { return g.w.IsShutdown() }
func (g *EventLoopGroup) IsTerminated() bool { return g.w.IsTerminated() }

func (g *EventLoopGroup) AwaitTermination(ctx context.Context) error {
	return g.w.AwaitTermination(ctx)
}

var _ api.EventLoopGroup = (*EventLoopGroup)(nil)
