// Package fake
// Author: momentics <momentics@gmail.com>
//
// Provider doubles for tests. Threads are real single-goroutine task loops so
// thread identity checks behave as in production; connections, sinks and
// acceptors are scripted by the test.

package fake

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
)

// Worker is an api.Worker over fake threads.
type Worker struct {
	threads []*Thread
	next    atomic.Uint32
	shut    atomic.Bool

	// Listen, when set, backs CreateStreamConnectionServer.
	Listen func(addr string, listener func(api.AcceptingChannel), opts *api.OptionMap) (api.AcceptingChannel, error)
}

// NewWorker starts n threads.
func NewWorker(n int) *Worker {
	w := &Worker{}
	for i := 0; i < n; i++ {
		t := &Thread{w: w, index: i, loop: concurrency.NewTaskLoop(fmt.Sprintf("fake-%d", i), 0)}
		t.loop.Start(nil)
		w.threads = append(w.threads, t)
	}
	return w
}

func (w *Worker) ID() string         { return "fake" }
func (w *Worker) Name() string       { return "fake" }
func (w *Worker) IoThreadCount() int { return len(w.threads) }

func (w *Worker) IoThread() api.IoThread {
	n := w.next.Add(1) - 1
	return w.threads[int(n%uint32(len(w.threads)))]
}

func (w *Worker) IoThreadAt(i int) api.IoThread { return w.threads[i] }

// Thread returns the concrete thread i.
func (w *Worker) Thread(i int) *Thread { return w.threads[i] }

func (w *Worker) CreateStreamConnectionServer(addr string, listener func(api.AcceptingChannel), opts *api.OptionMap) (api.AcceptingChannel, error) {
	if w.Listen == nil {
		return nil, api.ErrNotSupported
	}
	return w.Listen(addr, listener, opts)
}

func (w *Worker) Shutdown() {
	if !w.shut.CompareAndSwap(false, true) {
		return
	}
	for _, t := range w.threads {
		t.loop.Stop()
	}
}

func (w *Worker) IsShutdown() bool   { return w.shut.Load() }
func (w *Worker) IsTerminated() bool { return w.shut.Load() }

func (w *Worker) AwaitTermination(ctx context.Context) error {
	for _, t := range w.threads {
		select {
		case <-t.loop.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Thread is an api.IoThread backed by a TaskLoop.
type Thread struct {
	w     *Worker
	index int
	loop  *concurrency.TaskLoop

	mu    sync.Mutex
	dials []Dial

	// DialFunc, when set, answers OpenStreamConnection.
	DialFunc func(remote, local string, opts *api.OptionMap) api.Future
}

// Dial records one OpenStreamConnection call.
type Dial struct {
	Remote, Local string
	Options       *api.OptionMap
}

func (t *Thread) Execute(task func()) error { return t.loop.Execute(task) }

func (t *Thread) ExecuteAfter(task func(), delay time.Duration) api.Key {
	k, err := t.loop.ExecuteAfter(task, delay)
	if err != nil {
		return deadKey{}
	}
	return k
}

func (t *Thread) InThread() bool      { return t.loop.InLoop() }
func (t *Thread) GoroutineID() uint64 { return t.loop.GoroutineID() }
func (t *Thread) Index() int          { return t.index }
func (t *Thread) Worker() api.Worker  { return t.w }

func (t *Thread) OpenStreamConnection(remote, local string, opts *api.OptionMap) api.Future {
	t.mu.Lock()
	t.dials = append(t.dials, Dial{Remote: remote, Local: local, Options: opts})
	fn := t.DialFunc
	t.mu.Unlock()
	if fn == nil {
		return concurrency.Failed(api.ErrNotSupported)
	}
	return fn(remote, local, opts)
}

// Dials returns the recorded dial attempts.
func (t *Thread) Dials() []Dial {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Dial(nil), t.dials...)
}

// Sync waits until every task queued on t before the call has run.
func (t *Thread) Sync() {
	done := make(chan struct{})
	if err := t.loop.Execute(func() { close(done) }); err != nil {
		return
	}
	<-done
}

// Run executes fn on t and waits for it.
func (t *Thread) Run(fn func()) {
	done := make(chan struct{})
	if err := t.loop.Execute(func() { defer close(done); fn() }); err != nil {
		fn()
		return
	}
	<-done
}

type deadKey struct{}

func (deadKey) Remove() bool { return false }

var (
	_ api.Worker   = (*Worker)(nil)
	_ api.IoThread = (*Thread)(nil)
)
