// File: transport/scheduled.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduled tasks on top of IoThread timers. A task error or panic fails the
// future and ends a periodic chain; nothing escapes to the I/O thread.

package transport

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
)

type scheduleKind uint8

const (
	scheduleOnce scheduleKind = iota
	scheduleFixedDelay
	scheduleFixedRate
)

const (
	schedPending int32 = iota
	schedClaimed
	schedRunning
	schedFinished
)

type scheduledFuture struct {
	*concurrency.Promise

	thread   api.IoThread
	kind     scheduleKind
	once     func() (any, error)
	periodic func() error
	origin   time.Time
	initial  time.Duration
	period   time.Duration
	runs     int64

	mu       sync.Mutex
	key      api.Key
	deadline time.Time

	state atomic.Int32
}

func newScheduled(t api.IoThread, kind scheduleKind, initial, period time.Duration) *scheduledFuture {
	if initial < 0 {
		initial = 0
	}
	return &scheduledFuture{
		Promise: concurrency.NewPromise(),
		thread:  t,
		kind:    kind,
		origin:  time.Now(),
		initial: initial,
		period:  period,
	}
}

// start arms the first run, or fails the future when it cannot be armed.
func (f *scheduledFuture) start() *scheduledFuture {
	if f.once == nil && f.periodic == nil {
		f.state.Store(schedFinished)
		f.TryFailure(api.ErrInvalidArgument)
		return f
	}
	if f.kind != scheduleOnce && f.period <= 0 {
		f.state.Store(schedFinished)
		f.TryFailure(api.ErrInvalidArgument)
		return f
	}
	if f.thread.Worker() != nil && f.thread.Worker().IsShutdown() {
		f.state.Store(schedFinished)
		f.TryFailure(api.ErrShutdown)
		return f
	}
	f.arm(f.initial)
	return f
}

// arm publishes the next deadline and timer key, then reopens the future
// to cancellation.
func (f *scheduledFuture) arm(delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadline = time.Now().Add(delay)
	f.state.Store(schedPending)
	f.key = f.thread.ExecuteAfter(f.run, delay)
}

func (f *scheduledFuture) run() {
	for !f.state.CompareAndSwap(schedPending, schedRunning) {
		if f.state.Load() != schedClaimed {
			return
		}
		runtime.Gosched()
	}

	v, err := f.invoke()
	if err != nil {
		f.state.Store(schedFinished)
		f.TryFailure(err)
		return
	}
	switch f.kind {
	case scheduleOnce:
		f.state.Store(schedFinished)
		f.TrySuccess(v)
	case scheduleFixedDelay:
		f.runs++
		f.rearm(f.period)
	case scheduleFixedRate:
		f.runs++
		next := f.origin.Add(f.initial + time.Duration(f.runs)*f.period)
		f.rearm(max(time.Until(next), 0))
	}
}

// rearm schedules the next periodic run. A stopped worker drops timers, so
// the chain ends with api.ErrShutdown instead.
func (f *scheduledFuture) rearm(delay time.Duration) {
	if w := f.thread.Worker(); w != nil && w.IsShutdown() {
		f.state.Store(schedFinished)
		f.TryFailure(api.ErrShutdown)
		return
	}
	f.arm(delay)
}

func (f *scheduledFuture) invoke() (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	if f.kind == scheduleOnce {
		return f.once()
	}
	return nil, f.periodic()
}

// Cancel removes the pending timer. It fails while the task is running,
// including a cancel issued from inside the task itself.
func (f *scheduledFuture) Cancel() bool {
	if !f.state.CompareAndSwap(schedPending, schedClaimed) {
		return false
	}
	f.mu.Lock()
	key := f.key
	f.mu.Unlock()
	if key == nil || !key.Remove() {
		f.state.Store(schedPending)
		return false
	}
	f.state.Store(schedFinished)
	return f.Promise.Cancel()
}

// Delay is the time left until the next run.
func (f *scheduledFuture) Delay() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Until(f.deadline)
}

func (f *scheduledFuture) CompareTo(other api.ScheduledFuture) int {
	d := f.Delay() - other.Delay()
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	}
	return 0
}

var _ api.ScheduledFuture = (*scheduledFuture)(nil)
