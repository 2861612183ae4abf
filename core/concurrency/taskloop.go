// File: core/concurrency/taskloop.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TaskLoop is a single-goroutine executor: a FIFO task queue plus a timer heap.
// Tasks submitted to one loop run in submission order on one goroutine whose id
// is captured at start, so callers can ask whether they already run on the loop.
//
// Panics raised by tasks are recovered and reported; they never stop the loop.

package concurrency

import (
	"container/heap"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
)

// TaskLoop runs tasks and timers on one goroutine.
type TaskLoop struct {
	name      string
	batchSize int

	mu     sync.Mutex
	tasks  *queue.Queue // of func()
	timers timerHeap
	seq    uint64

	wake    chan struct{} // capacity 1
	quitCh  chan struct{} // closed on Stop()
	doneCh  chan struct{} // closed after run() exits
	running atomic.Bool
	stopped atomic.Bool
	gid     atomic.Uint64

	// OnPanic receives recovered task panics; nil logs them.
	OnPanic func(v any)
}

// NewTaskLoop creates a stopped loop. batchSize bounds the tasks run between
// two timer checks.
func NewTaskLoop(name string, batchSize int) *TaskLoop {
	if batchSize <= 0 {
		batchSize = 256
	}
	return &TaskLoop{
		name:      name,
		batchSize: batchSize,
		tasks:     queue.New(),
		wake:      make(chan struct{}, 1),
		quitCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Name returns the loop name.
func (l *TaskLoop) Name() string { return l.name }

// Start launches the loop goroutine. init, when non-nil, runs first on that
// goroutine (thread pinning hooks go there). Start waits until the goroutine
// id is known.
func (l *TaskLoop) Start(init func()) {
	if !l.running.CompareAndSwap(false, true) {
		return
	}
	ready := make(chan struct{})
	go l.run(init, ready)
	<-ready
}

// GoroutineID returns the id of the loop goroutine, 0 before Start.
func (l *TaskLoop) GoroutineID() uint64 { return l.gid.Load() }

// InLoop reports whether the caller runs on the loop goroutine.
func (l *TaskLoop) InLoop() bool {
	id := l.gid.Load()
	return id != 0 && id == GoroutineID()
}

// Execute enqueues task. It fails with ErrLoopStopped once Stop was called.
func (l *TaskLoop) Execute(task func()) error {
	if task == nil {
		return ErrNilTask
	}
	l.mu.Lock()
	if l.stopped.Load() {
		l.mu.Unlock()
		return ErrLoopStopped
	}
	l.tasks.Add(task)
	l.mu.Unlock()
	l.signal()
	return nil
}

// ExecuteAfter runs task on the loop once delay has elapsed.
func (l *TaskLoop) ExecuteAfter(task func(), delay time.Duration) (*TimerKey, error) {
	if task == nil {
		return nil, ErrNilTask
	}
	if delay < 0 {
		delay = 0
	}
	l.mu.Lock()
	if l.stopped.Load() {
		l.mu.Unlock()
		return nil, ErrLoopStopped
	}
	l.seq++
	k := &TimerKey{loop: l, when: time.Now().Add(delay), seq: l.seq, task: task, index: -1}
	heap.Push(&l.timers, k)
	first := k.index == 0
	l.mu.Unlock()
	if first {
		l.signal()
	}
	return k, nil
}

// Pending returns the number of queued tasks and timers.
func (l *TaskLoop) Pending() (tasks, timers int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length(), l.timers.Len()
}

// Stop rejects new work, lets queued tasks drain, and waits for the loop to exit.
// Pending timers are dropped.
func (l *TaskLoop) Stop() {
	l.mu.Lock()
	if l.stopped.CompareAndSwap(false, true) {
		close(l.quitCh)
	}
	l.mu.Unlock()

	if l.running.Load() && !l.InLoop() {
		<-l.doneCh
	}
}

// IsStopped reports whether Stop was called.
func (l *TaskLoop) IsStopped() bool { return l.stopped.Load() }

// Done is closed once the loop goroutine has exited.
func (l *TaskLoop) Done() <-chan struct{} { return l.doneCh }

func (l *TaskLoop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *TaskLoop) run(init func(), ready chan<- struct{}) {
	l.gid.Store(GoroutineID())
	defer close(l.doneCh)
	if init != nil {
		l.safeRun(init)
	}
	close(ready)

	batch := make([]func(), 0, l.batchSize)

	quit := l.quitCh

	// Create a reusable timer, initially stopped
	timer := time.NewTimer(time.Hour)
	stopTimer(timer)

	for {
		batch = batch[:0]
		now := time.Now()

		l.mu.Lock()
		for l.timers.Len() > 0 && !l.timers[0].when.After(now) {
			k := heap.Pop(&l.timers).(*TimerKey)
			batch = append(batch, k.task)
			k.task = nil
		}
		for len(batch) < cap(batch) && l.tasks.Length() > 0 {
			batch = append(batch, l.tasks.Remove().(func()))
		}
		var next time.Duration = -1
		if l.timers.Len() > 0 {
			next = l.timers[0].when.Sub(now)
		}
		quitting := l.stopped.Load()
		drained := l.tasks.Length() == 0
		l.mu.Unlock()

		if len(batch) > 0 {
			for i, task := range batch {
				l.safeRun(task)
				batch[i] = nil
			}
			continue
		}
		if quitting && drained {
			return
		}

		if next >= 0 {
			timer.Reset(next)
		}
		select {
		case <-quit:
			// drain what is left, then exit on the next pass
			stopTimer(timer)
			quit = nil
		case <-l.wake:
			stopTimer(timer)
		case <-timer.C:
		}
	}
}

func (l *TaskLoop) safeRun(task func()) {
	defer func() {
		if r := recover(); r != nil {
			if l.OnPanic != nil {
				l.OnPanic(r)
				return
			}
			log.Printf("[concurrency] loop %s: task panic: %v", l.name, r)
		}
	}()
	task()
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
