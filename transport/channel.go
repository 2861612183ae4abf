// File: transport/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// State shared by every channel kind: identity, pipeline, loop binding,
// configuration and the close future.

package transport

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/pipeline"
)

// channelImpl is what an EventLoop needs from a channel it registers.
type channelImpl interface {
	api.Channel
	base() *baseChannel
	compatible(l *EventLoop) bool
	// afterRegister runs on the loop once the channel is bound.
	afterRegister()
}

type baseChannel struct {
	id          string
	parent      api.Channel
	pipeline    *pipeline.Pipeline
	loop        atomic.Pointer[EventLoop]
	registered  atomic.Bool
	activeFired atomic.Bool
	inactive    atomic.Bool
	closeFuture *concurrency.Promise
	cfg         *channelConfig
}

func (b *baseChannel) init(self api.Channel, parent api.Channel, cfg Config, provider providerOptions) {
	b.id = xid.New().String()
	b.parent = parent
	b.pipeline = pipeline.New(self)
	b.closeFuture = concurrency.NewPromise()
	b.closeFuture.SetUncancellable()
	b.cfg = newChannelConfig(cfg, provider)
}

func (b *baseChannel) base() *baseChannel { return b }

func (b *baseChannel) ID() string              { return b.id }
func (b *baseChannel) Parent() api.Channel     { return b.parent }
func (b *baseChannel) Pipeline() api.Pipeline  { return b.pipeline }
func (b *baseChannel) IsRegistered() bool      { return b.registered.Load() }
func (b *baseChannel) CloseFuture() api.Future { return b.closeFuture }

// EventLoop returns the loop the channel is bound to, or nil.
func (b *baseChannel) EventLoop() api.EventLoop {
	if l := b.loop.Load(); l != nil {
		return l
	}
	return nil
}

func (b *baseChannel) eventLoop() *EventLoop { return b.loop.Load() }

func (b *baseChannel) Alloc() api.BufferAllocator { return b.cfg.Allocator() }

func (b *baseChannel) SetOption(opt api.Option, v any) error { return b.cfg.Set(opt, v) }

func (b *baseChannel) Option(opt api.Option) (any, error) { return b.cfg.Get(opt) }

// Config returns a copy of the channel's framework options.
func (b *baseChannel) Config() Config { return b.cfg.Snapshot() }

// compatibleParent holds when the channel has no registered parent or the
// parent's loop belongs to the same group as l.
func (b *baseChannel) compatibleParent(l *EventLoop) bool {
	if b.parent == nil || !b.parent.IsRegistered() {
		return true
	}
	pl := b.parent.EventLoop()
	return pl != nil && pl.Parent() == l.Parent()
}

// runOnLoop runs fn on the channel's loop, inline when already there or
// when the channel is not bound yet. A loop that rejects the task may still
// be draining its queue, so fn is dropped and api.ErrShutdown returned.
func (b *baseChannel) runOnLoop(fn func()) error {
	l := b.loop.Load()
	if l == nil || l.InEventLoop() {
		fn()
		return nil
	}
	if err := l.Execute(fn); err != nil {
		return fmt.Errorf("%w: %v", api.ErrShutdown, err)
	}
	return nil
}

// runOrDefer is runOnLoop for work that must happen even on a stopped loop,
// such as the close path. Rejected work runs once the worker has terminated.
func (b *baseChannel) runOrDefer(fn func()) {
	if b.runOnLoop(fn) == nil {
		return
	}
	w := b.loop.Load().IoThread().Worker()
	go func() {
		_ = w.AwaitTermination(context.Background())
		fn()
	}()
}

// fireActive fires ChannelActive at most once per channel.
func (b *baseChannel) fireActive() {
	if b.activeFired.CompareAndSwap(false, true) {
		b.cfg.Recorder().ChannelActive()
		b.pipeline.FireChannelActive()
	}
}

// fireInactive fires ChannelInactive only after ChannelActive was fired.
func (b *baseChannel) fireInactive() {
	if b.activeFired.Load() && b.inactive.CompareAndSwap(false, true) {
		b.cfg.Recorder().ChannelInactive()
		b.pipeline.FireChannelInactive()
	}
}

func (b *baseChannel) fireException(err error) {
	b.cfg.Recorder().Exception()
	b.pipeline.FireExceptionCaught(err)
}

func logf(format string, args ...any) {
	log.Printf("[transport] "+format, args...)
}
