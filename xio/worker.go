// File: xio/worker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package xio

import (
	"context"
	"fmt"
	"log"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/momentics/hioload-bridge/affinity"
	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
)

// WorkerConfig sizes a worker.
type WorkerConfig struct {
	Name        string        `yaml:"name" mapstructure:"name"`
	IoThreads   int           `yaml:"io_threads" mapstructure:"io_threads"`
	PinThreads  bool          `yaml:"pin_threads" mapstructure:"pin_threads"`
	TaskBatch   int           `yaml:"task_batch" mapstructure:"task_batch"`
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
}

// DefaultWorkerConfig returns one thread per CPU.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Name:        "xio",
		IoThreads:   runtime.NumCPU(),
		TaskBatch:   256,
		DialTimeout: 30 * time.Second,
	}
}

// Worker is the api.Worker implementation.
type Worker struct {
	id      string
	cfg     WorkerConfig
	threads []*IoThread
	next    atomic.Uint64

	shutdown   atomic.Bool
	terminated chan struct{}

	mu      sync.Mutex
	servers map[*Server]struct{}
}

// NewWorker starts cfg.IoThreads task loops.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.IoThreads <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreadCount, cfg.IoThreads)
	}
	if cfg.Name == "" {
		cfg.Name = "xio"
	}
	w := &Worker{
		id:         xid.New().String(),
		cfg:        cfg,
		terminated: make(chan struct{}),
		servers:    make(map[*Server]struct{}),
	}
	w.threads = make([]*IoThread, cfg.IoThreads)
	for i := range w.threads {
		t := &IoThread{
			w:     w,
			index: i,
			loop:  concurrency.NewTaskLoop(fmt.Sprintf("%s-io-%d", cfg.Name, i), cfg.TaskBatch),
		}
		w.threads[i] = t
		t.loop.Start(t.init)
	}
	return w, nil
}

func (w *Worker) ID() string         { return w.id }
func (w *Worker) Name() string       { return w.cfg.Name }
func (w *Worker) IoThreadCount() int { return len(w.threads) }

// IoThread returns threads round robin.
func (w *Worker) IoThread() api.IoThread { return w.nextThread() }

func (w *Worker) nextThread() *IoThread {
	n := w.next.Add(1) - 1
	return w.threads[n%uint64(len(w.threads))]
}

// IoThreadAt returns thread i, or nil when out of range.
func (w *Worker) IoThreadAt(i int) api.IoThread {
	if i < 0 || i >= len(w.threads) {
		return nil
	}
	return w.threads[i]
}

// CreateStreamConnectionServer listens on addr. The accept listener runs on the
// server's IoThread unless OptDirectAcceptDelivery is set.
func (w *Worker) CreateStreamConnectionServer(addr string, listener func(api.AcceptingChannel), opts *api.OptionMap) (api.AcceptingChannel, error) {
	if w.shutdown.Load() {
		return nil, api.ErrShutdown
	}
	if opts == nil {
		opts = api.NewOptionMap()
	}
	lc := net.ListenConfig{Control: socketControl(opts)}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, err
	}
	s, err := newServer(w, w.nextThread(), ln.(*net.TCPListener), listener, opts)
	if err != nil {
		ln.Close()
		return nil, err
	}
	w.mu.Lock()
	w.servers[s] = struct{}{}
	w.mu.Unlock()
	go s.acceptLoop()
	return s, nil
}

func (w *Worker) forgetServer(s *Server) {
	w.mu.Lock()
	delete(w.servers, s)
	w.mu.Unlock()
}

// Shutdown closes servers and stops every thread once queued tasks drain.
func (w *Worker) Shutdown() {
	if !w.shutdown.CompareAndSwap(false, true) {
		return
	}
	w.mu.Lock()
	servers := make([]*Server, 0, len(w.servers))
	for s := range w.servers {
		servers = append(servers, s)
	}
	w.mu.Unlock()
	for _, s := range servers {
		s.Close()
	}
	go func() {
		for _, t := range w.threads {
			t.loop.Stop()
		}
		close(w.terminated)
	}()
}

func (w *Worker) IsShutdown() bool { return w.shutdown.Load() }

func (w *Worker) IsTerminated() bool {
	select {
	case <-w.terminated:
		return true
	default:
		return false
	}
}

// AwaitTermination blocks until every thread exited or ctx ends.
func (w *Worker) AwaitTermination(ctx context.Context) error {
	select {
	case <-w.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IoThread is one provider loop.
type IoThread struct {
	w     *Worker
	index int
	loop  *concurrency.TaskLoop
}

func (t *IoThread) init() {
	if !t.w.cfg.PinThreads {
		return
	}
	runtime.LockOSThread()
	if err := affinity.SetAffinity(affinity.CPUFor(t.index)); err != nil {
		log.Printf("[xio] %s: cpu pinning disabled: %v", t.loop.Name(), err)
	}
}

func (t *IoThread) Execute(task func()) error {
	if err := t.loop.Execute(task); err != nil {
		return fmt.Errorf("%s: %w", t.loop.Name(), api.ErrShutdown)
	}
	return nil
}

func (t *IoThread) ExecuteAfter(task func(), delay time.Duration) api.Key {
	k, err := t.loop.ExecuteAfter(task, delay)
	if err != nil {
		return deadKey{}
	}
	return k
}

func (t *IoThread) InThread() bool      { return t.loop.InLoop() }
func (t *IoThread) GoroutineID() uint64 { return t.loop.GoroutineID() }
func (t *IoThread) Index() int          { return t.index }
func (t *IoThread) Worker() api.Worker  { return t.w }

// run executes task on the thread, or inline once the thread is stopped.
func (t *IoThread) run(task func()) {
	if t.InThread() {
		task()
		return
	}
	if err := t.loop.Execute(task); err != nil {
		task()
	}
}

// OpenStreamConnection dials remote in the background. Cancelling the returned
// future aborts the dial.
func (t *IoThread) OpenStreamConnection(remote, local string, opts *api.OptionMap) api.Future {
	p := concurrency.NewPromise()
	if t.w.shutdown.Load() {
		p.TryFailure(api.ErrShutdown)
		return p
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.AddListener(func(api.Future) { cancel() })

	go func() {
		d := net.Dialer{Timeout: t.w.cfg.DialTimeout, Control: socketControl(opts)}
		if local != "" {
			la, err := net.ResolveTCPAddr("tcp", local)
			if err != nil {
				p.TryFailure(err)
				return
			}
			d.LocalAddr = la
		}
		nc, err := d.DialContext(ctx, "tcp", remote)
		if err != nil {
			p.TryFailure(err)
			return
		}
		c, err := newConnection(t, nc.(*net.TCPConn), opts)
		if err != nil {
			nc.Close()
			p.TryFailure(err)
			return
		}
		if !p.TrySuccess(c) {
			c.Close()
		}
	}()
	return p
}

// deadKey is returned when a timer could not be armed.
type deadKey struct{}

func (deadKey) Remove() bool { return false }

var (
	_ api.Worker   = (*Worker)(nil)
	_ api.IoThread = (*IoThread)(nil)
)
