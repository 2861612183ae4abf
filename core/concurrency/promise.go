// File: core/concurrency/promise.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Promise is the default api.Promise. Listeners run on the completing goroutine,
// in registration order; a listener added after completion runs immediately.

package concurrency

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/momentics/hioload-bridge/api"
)

type promiseState uint8

const (
	statePending promiseState = iota
	stateSuccess
	stateFailure
	stateCancelled
)

// Promise is a write-once result.
type Promise struct {
	mu            sync.Mutex
	done          chan struct{}
	state         promiseState
	uncancellable bool
	value         any
	err           error
	listeners     []func(api.Future)
}

// NewPromise returns a pending promise.
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Succeeded returns a promise already completed with v.
func Succeeded(v any) *Promise {
	p := NewPromise()
	p.TrySuccess(v)
	return p
}

// Failed returns a promise already failed with err.
func Failed(err error) *Promise {
	p := NewPromise()
	p.TryFailure(err)
	return p
}

func (p *Promise) IsDone() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != statePending
}

func (p *Promise) IsSuccess() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateSuccess
}

func (p *Promise) IsCancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == stateCancelled
}

func (p *Promise) IsCancellable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == statePending && !p.uncancellable
}

func (p *Promise) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Promise) Value() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value
}

func (p *Promise) Done() <-chan struct{} { return p.done }

func (p *Promise) Await(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Promise) AwaitTimeout(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-p.done:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.done:
		return true
	case <-t.C:
		return false
	}
}

func (p *Promise) AddListener(fn func(api.Future)) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	if p.state == statePending {
		p.listeners = append(p.listeners, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.notify(fn)
}

func (p *Promise) Cancel() bool {
	p.mu.Lock()
	if p.state != statePending || p.uncancellable {
		p.mu.Unlock()
		return false
	}
	return p.completeLocked(stateCancelled, nil, api.ErrCancelled)
}

func (p *Promise) SetUncancellable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == stateCancelled {
		return false
	}
	if p.state == statePending {
		p.uncancellable = true
	}
	return true
}

func (p *Promise) SetSuccess(v any) error {
	if !p.TrySuccess(v) {
		return api.ErrAlreadyCompleted
	}
	return nil
}

func (p *Promise) TrySuccess(v any) bool {
	p.mu.Lock()
	if p.state != statePending {
		p.mu.Unlock()
		return false
	}
	return p.completeLocked(stateSuccess, v, nil)
}

func (p *Promise) SetFailure(err error) error {
	if !p.TryFailure(err) {
		return api.ErrAlreadyCompleted
	}
	return nil
}

func (p *Promise) TryFailure(err error) bool {
	if err == nil {
		err = api.NewError(api.ErrCodeInternal, "promise failed without cause")
	}
	p.mu.Lock()
	if p.state != statePending {
		p.mu.Unlock()
		return false
	}
	return p.completeLocked(stateFailure, nil, err)
}

// completeLocked finishes the promise; p.mu must be held and is released.
func (p *Promise) completeLocked(st promiseState, v any, err error) bool {
	p.state = st
	p.value = v
	p.err = err
	close(p.done)
	ls := p.listeners
	p.listeners = nil
	p.mu.Unlock()
	for _, fn := range ls {
		p.notify(fn)
	}
	return true
}

func (p *Promise) notify(fn func(api.Future)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[concurrency] promise listener panic: %v", r)
		}
	}()
	fn(p)
}

var _ api.Promise = (*Promise)(nil)
