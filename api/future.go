// File: api/future.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion contracts shared by channels, loops and the provider.

package api

import (
	"context"
	"time"
)

// Future is the read side of an asynchronous result.
type Future interface {
	IsDone() bool
	// IsSuccess reports completion without error.
	IsSuccess() bool
	IsCancelled() bool
	IsCancellable() bool

	// Err returns the failure cause once done, nil otherwise.
	Err() error
	// Value returns the result once done successfully.
	Value() any

	// Done is closed when the future completes.
	Done() <-chan struct{}

	// Await blocks until completion or until ctx ends; it returns ctx.Err() in the latter case.
	Await(ctx context.Context) error
	// AwaitTimeout blocks for at most d and reports whether the future completed.
	AwaitTimeout(d time.Duration) bool

	// AddListener runs fn once the future completes, immediately if it already has.
	AddListener(fn func(Future))

	Cancel() bool
}

// Promise is a writable Future.
type Promise interface {
	Future

	SetSuccess(v any) error
	TrySuccess(v any) bool
	SetFailure(err error) error
	TryFailure(err error) bool

	// SetUncancellable prevents later cancellation. It returns true when the
	// promise is now uncancellable and not cancelled.
	SetUncancellable() bool
}

// ScheduledFuture is a Future of a task executed after a delay.
type ScheduledFuture interface {
	Future

	// Delay is the remaining time until the next run, negative when overdue.
	Delay() time.Duration

	// CompareTo orders scheduled futures by remaining delay.
	CompareTo(other ScheduledFuture) int
}
