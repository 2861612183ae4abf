// File: transport/closefuture.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Futures for half close and full shutdown of a wrapped connection.

package transport

import (
	"context"
	"sync"
	"time"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
)

// HalfCloseFuture completes when the provider reports one half closed.
// When linked to a caller promise it completes that promise the same way.
type HalfCloseFuture struct {
	*concurrency.Promise
}

func newHalfCloseFuture() *HalfCloseFuture {
	f := &HalfCloseFuture{Promise: concurrency.NewPromise()}
	f.SetUncancellable()
	return f
}

func (f *HalfCloseFuture) closed() { f.TrySuccess(nil) }

func (f *HalfCloseFuture) failed(err error) { f.TryFailure(err) }

// link mirrors the outcome of f into p.
func (f *HalfCloseFuture) link(p api.Promise) api.Future {
	if p == nil {
		return f
	}
	f.AddListener(func(r api.Future) {
		if err := r.Err(); err != nil {
			p.TryFailure(err)
			return
		}
		p.TrySuccess(nil)
	})
	return p
}

// ShutdownFuture joins the input and output half close futures.
type ShutdownFuture struct {
	input, output api.Future

	once sync.Once
	done chan struct{}
}

// NewShutdownFuture composes two halves.
func NewShutdownFuture(input, output api.Future) *ShutdownFuture {
	return &ShutdownFuture{input: input, output: output}
}

func (f *ShutdownFuture) IsDone() bool { return f.input.IsDone() && f.output.IsDone() }

func (f *ShutdownFuture) IsSuccess() bool { return f.input.IsSuccess() && f.output.IsSuccess() }

func (f *ShutdownFuture) IsCancelled() bool { return f.input.IsCancelled() && f.output.IsCancelled() }

func (f *ShutdownFuture) IsCancellable() bool {
	return f.input.IsCancellable() && f.output.IsCancellable()
}

// Err reports the input failure first.
func (f *ShutdownFuture) Err() error {
	if err := f.input.Err(); err != nil {
		return err
	}
	return f.output.Err()
}

func (f *ShutdownFuture) Value() any { return nil }

// Done is closed once both halves completed.
func (f *ShutdownFuture) Done() <-chan struct{} {
	f.once.Do(func() {
		f.done = make(chan struct{})
		go func() {
			<-f.input.Done()
			<-f.output.Done()
			close(f.done)
		}()
	})
	return f.done
}

func (f *ShutdownFuture) Await(ctx context.Context) error {
	if err := f.input.Await(ctx); err != nil {
		return err
	}
	return f.output.Await(ctx)
}

// AwaitTimeout waits for both halves within one shared deadline. The second
// half is still polled when the first used up the budget.
func (f *ShutdownFuture) AwaitTimeout(d time.Duration) bool {
	deadline := time.Now().Add(d)
	if !f.input.AwaitTimeout(d) {
		return false
	}
	return f.output.AwaitTimeout(max(time.Until(deadline), 0))
}

// AddListener runs fn after both halves completed.
func (f *ShutdownFuture) AddListener(fn func(api.Future)) {
	if fn == nil {
		return
	}
	f.input.AddListener(func(api.Future) {
		f.output.AddListener(func(api.Future) { fn(f) })
	})
}

// Cancel succeeds only when both halves cancel.
func (f *ShutdownFuture) Cancel() bool {
	in := f.input.Cancel()
	out := f.output.Cancel()
	return in && out
}

var _ api.Future = (*ShutdownFuture)(nil)
