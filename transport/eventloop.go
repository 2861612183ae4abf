// File: transport/eventloop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventLoop presents one provider IoThread as a framework event loop.
// Tasks keep the thread's FIFO order and channel events for every channel
// registered here run on that thread.

package transport

import (
	"context"
	"time"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
)

// EventLoop bridges an api.IoThread to api.EventLoop.
type EventLoop struct {
	group  api.EventLoopGroup
	thread api.IoThread
}

// NewEventLoop wraps t. A nil group makes the loop its own single-member group.
func NewEventLoop(group api.EventLoopGroup, t api.IoThread) *EventLoop {
	return &EventLoop{group: group, thread: t}
}

// IoThread returns the wrapped provider thread.
func (l *EventLoop) IoThread() api.IoThread { return l.thread }

func (l *EventLoop) Execute(task func()) error {
	if task == nil {
		return api.ErrInvalidArgument
	}
	return l.thread.Execute(task)
}

func (l *EventLoop) InEventLoop() bool { return l.thread.InThread() }

func (l *EventLoop) InEventLoopGoroutine(id uint64) bool {
	return id != 0 && id == l.thread.GoroutineID()
}

func (l *EventLoop) Parent() api.EventLoopGroup {
	if l.group == nil {
		return soloGroup{l}
	}
	return l.group
}

// Compatible reports whether ch may be registered on this loop.
func (l *EventLoop) Compatible(ch api.Channel) bool {
	c, ok := ch.(channelImpl)
	if !ok {
		return false
	}
	return c.compatible(l)
}

func (l *EventLoop) Register(ch api.Channel, promise api.Promise) api.Future {
	if promise == nil {
		return concurrency.Failed(api.ErrInvalidArgument)
	}
	if ch == nil {
		promise.TryFailure(api.ErrInvalidArgument)
		return promise
	}
	c, ok := ch.(channelImpl)
	if !ok {
		promise.TryFailure(api.ErrInvalidArgument)
		return promise
	}
	if !c.compatible(l) {
		promise.TryFailure(api.ErrIncompatibleLoop)
		return promise
	}
	b := c.base()
	if !b.registered.CompareAndSwap(false, true) {
		promise.TryFailure(errAlreadyRegistered)
		return promise
	}
	b.loop.Store(l)

	register := func() {
		if !promise.SetUncancellable() || !ch.IsOpen() {
			b.registered.Store(false)
			promise.TryFailure(api.ErrChannelClosed)
			return
		}
		promise.TrySuccess(ch)
		b.pipeline.FireChannelRegistered()
		c.afterRegister()
	}
	if l.InEventLoop() {
		register()
		return promise
	}
	if err := l.Execute(register); err != nil {
		b.registered.Store(false)
		b.loop.Store(nil)
		promise.TryFailure(err)
	}
	return promise
}

func (l *EventLoop) Schedule(task func() (any, error), delay time.Duration) api.ScheduledFuture {
	f := newScheduled(l.thread, scheduleOnce, delay, 0)
	f.once = task
	return f.start()
}

func (l *EventLoop) ScheduleWithFixedDelay(task func() error, initialDelay, delay time.Duration) api.ScheduledFuture {
	f := newScheduled(l.thread, scheduleFixedDelay, initialDelay, delay)
	f.periodic = task
	return f.start()
}

func (l *EventLoop) ScheduleAtFixedRate(task func() error, initialDelay, period time.Duration) api.ScheduledFuture {
	f := newScheduled(l.thread, scheduleFixedRate, initialDelay, period)
	f.periodic = task
	return f.start()
}

// IsShutdown reports the state of the worker owning the thread.
func (l *EventLoop) IsShutdown() bool { return l.thread.Worker().IsShutdown() }

func (l *EventLoop) IsTerminated() bool { return l.thread.Worker().IsTerminated() }

func (l *EventLoop) AwaitTermination(ctx context.Context) error {
	return l.thread.Worker().AwaitTermination(ctx)
}

// ShutdownGracefully is not supported on a single loop; the worker owns the thread.
func (l *EventLoop) ShutdownGracefully(context.Context) error { return api.ErrNotSupported }

// TerminationFuture is not available for a single loop.
func (l *EventLoop) TerminationFuture() api.Future {
	return concurrency.Failed(api.ErrNotSupported)
}

// soloGroup is the parent of a loop created without a group.
type soloGroup struct{ loop *EventLoop }

func (g soloGroup) Next() api.EventLoop { return g.loop }

func (g soloGroup) Register(ch api.Channel) api.Future {
	return g.loop.Register(ch, concurrency.NewPromise())
}

func (g soloGroup) ShutdownGracefully(context.Context) error { return api.ErrNotSupported }
func (g soloGroup) IsShutdown() bool                         { return g.loop.IsShutdown() }
func (g soloGroup) IsTerminated() bool                       { return g.loop.IsTerminated() }

var (
	_ api.EventLoop      = (*EventLoop)(nil)
	_ api.EventLoopGroup = soloGroup{}
)
