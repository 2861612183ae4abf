// File: api/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Framework-side channel and event loop contracts.

package api

import (
	"context"
	"net"
	"time"
)

// Channel is a framework channel driven by an event loop.
type Channel interface {
	ID() string
	Parent() Channel
	Pipeline() Pipeline
	EventLoop() EventLoop

	IsRegistered() bool
	IsOpen() bool
	IsActive() bool
	IsWritable() bool

	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	SetOption(opt Option, v any) error
	Option(opt Option) (any, error)
	Alloc() BufferAllocator

	// Read requests one more read cycle; relevant when auto-read is off.
	Read()
	Write(msg any) Future
	Flush()
	WriteAndFlush(msg any) Future
	Close() Future
	CloseFuture() Future
}

// EventLoop runs tasks on a single goroutine and owns registered channels.
type EventLoop interface {
	Execute(task func()) error
	// InEventLoop reports whether the caller runs on the loop goroutine.
	InEventLoop() bool
	// InEventLoopGoroutine compares a goroutine id with the loop goroutine.
	InEventLoopGoroutine(id uint64) bool
	Parent() EventLoopGroup

	// Register binds ch to this loop and completes promise once bound.
	Register(ch Channel, promise Promise) Future

	Schedule(task func() (any, error), delay time.Duration) ScheduledFuture
	ScheduleWithFixedDelay(task func() error, initialDelay, delay time.Duration) ScheduledFuture
	ScheduleAtFixedRate(task func() error, initialDelay, period time.Duration) ScheduledFuture
}

// EventLoopGroup hands out event loops.
type EventLoopGroup interface {
	Next() EventLoop
	Register(ch Channel) Future

	ShutdownGracefully(ctx context.Context) error
	IsShutdown() bool
	IsTerminated() bool
}
