// File: xio/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package xio

import (
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-bridge/api"
)

const (
	defaultBacklog   = 128
	directBurst      = 16
	maxAcceptBackoff = time.Second
)

// Server is the api.AcceptingChannel implementation. An acceptor goroutine
// stages connections until the accept listener takes them.
type Server struct {
	w  *Worker
	t  *IoThread
	ln *net.TCPListener

	ready  readiness
	closed atomic.Bool

	mu        sync.Mutex
	cond      *sync.Cond
	pending   *queue.Queue
	acceptErr error
	open      int
	paused    bool
	listener  func(api.AcceptingChannel)
	opts      map[api.Option]any
	connOpts  *api.OptionMap

	// snapshot of options read on the accept path
	backlog    int
	highWater  int
	lowWater   int
	balancing  int
	direct     bool
	balanceRun int
	balanceTo  *IoThread
}

func newServer(w *Worker, t *IoThread, ln *net.TCPListener, listener func(api.AcceptingChannel), opts *api.OptionMap) (*Server, error) {
	s := &Server{
		w:        w,
		t:        t,
		ln:       ln,
		pending:  queue.New(),
		listener: listener,
		opts:     make(map[api.Option]any),
		connOpts: api.NewOptionMap(),
		backlog:  defaultBacklog,
	}
	s.cond = sync.NewCond(&s.mu)
	s.ready = readiness{t: t, ready: s.acceptable, fire: s.fireAccept}

	var err error
	opts.Each(func(opt api.Option, v any) bool {
		_, err = s.SetOption(opt, v)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) acceptLoop() {
	var backoff time.Duration
	for {
		s.mu.Lock()
		for !s.closed.Load() && (s.paused || s.pending.Length() >= s.backlog) {
			s.cond.Wait()
		}
		s.mu.Unlock()
		if s.closed.Load() {
			return
		}

		nc, err := s.ln.AcceptTCP()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.mu.Lock()
			s.acceptErr = err
			s.mu.Unlock()
			s.notify()
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			log.Printf("[xio] accept %s: %v; retrying in %v", s.ln.Addr(), err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		c, err := newConnection(s.connThread(), nc, s.connOpts)
		if err != nil {
			nc.Close()
			s.mu.Lock()
			s.acceptErr = err
			s.mu.Unlock()
			s.notify()
			continue
		}
		c.setRelease(s.connClosed)

		s.mu.Lock()
		s.open++
		if s.highWater > 0 && s.open >= s.highWater {
			s.paused = true
		}
		s.pending.Add(c)
		s.mu.Unlock()
		s.notify()
	}
}

// connThread hands connections to threads in runs of OptBalancingConnections.
func (s *Server) connThread() *IoThread {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balanceTo == nil || s.balanceRun <= 0 {
		s.balanceTo = s.w.nextThread()
		s.balanceRun = max(s.balancing, 1)
	}
	s.balanceRun--
	return s.balanceTo
}

func (s *Server) connClosed() {
	s.mu.Lock()
	s.open--
	if s.paused && s.open <= s.lowWater {
		s.paused = false
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// Accept returns staged connections first, then a pending accept error.
func (s *Server) Accept() (api.StreamConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Length() > 0 {
		c := s.pending.Remove().(*Connection)
		s.cond.Broadcast()
		return c, nil
	}
	if err := s.acceptErr; err != nil {
		s.acceptErr = nil
		return nil, err
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return nil, nil
}

func (s *Server) acceptable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Length() > 0 || s.acceptErr != nil
}

func (s *Server) fireAccept() {
	s.mu.Lock()
	fn := s.listener
	s.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (s *Server) notify() {
	s.mu.Lock()
	direct := s.direct
	s.mu.Unlock()
	if !direct {
		s.ready.notify()
		return
	}
	for i := 0; i < directBurst && s.ready.isResumed() && s.acceptable(); i++ {
		s.fireAccept()
	}
}

func (s *Server) ResumeAccepts() {
	s.ready.resumed.Store(true)
	s.notify()
}

func (s *Server) SuspendAccepts()       { s.ready.suspend() }
func (s *Server) IsAcceptResumed() bool { return s.ready.isResumed() }

func (s *Server) SetAcceptListener(fn func(api.AcceptingChannel)) {
	s.mu.Lock()
	s.listener = fn
	s.mu.Unlock()
}

func (s *Server) IoThread() api.IoThread { return s.t }
func (s *Server) Worker() api.Worker     { return s.w }
func (s *Server) IsOpen() bool           { return !s.closed.Load() }
func (s *Server) LocalAddr() net.Addr    { return s.ln.Addr() }

// Close stops accepting and closes connections nobody has taken yet.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.ready.suspend()
	err := s.ln.Close()

	s.mu.Lock()
	staged := make([]*Connection, 0, s.pending.Length())
	for s.pending.Length() > 0 {
		staged = append(staged, s.pending.Remove().(*Connection))
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, c := range staged {
		c.Close()
	}
	s.w.forgetServer(s)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Server) Option(opt api.Option) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.opts[opt]; ok {
		return v, nil
	}
	if v, ok := s.connOpts.Get(opt); ok {
		return v, nil
	}
	switch opt {
	case api.OptBacklog:
		return s.backlog, nil
	case api.OptWorkerIOThreads:
		return s.w.IoThreadCount(), nil
	case api.OptDirectAcceptDelivery:
		return s.direct, nil
	}
	return nil, nil
}

// SetOption stores server options and the options applied to accepted connections.
func (s *Server) SetOption(opt api.Option, v any) (any, error) {
	switch opt {
	case api.OptTCPNoDelay, api.OptKeepAlive, api.OptReuseAddresses:
		if _, err := boolValue(opt, v); err != nil {
			return nil, err
		}
		return s.setConnOption(opt, v), nil
	case api.OptSendBuffer, api.OptReceiveBuffer:
		if _, err := intValue(opt, v, 1, 0); err != nil {
			return nil, err
		}
		return s.setConnOption(opt, v), nil
	case api.OptTrafficClass:
		if _, err := intValue(opt, v, 0, 255); err != nil {
			return nil, err
		}
		return s.setConnOption(opt, v), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.opts[opt]
	switch opt {
	case api.OptBacklog:
		n, err := intValue(opt, v, 1, 0)
		if err != nil {
			return nil, err
		}
		s.backlog = n
	case api.OptConnectionHighWater:
		n, err := intValue(opt, v, 0, 0)
		if err != nil {
			return nil, err
		}
		s.highWater = n
	case api.OptConnectionLowWater:
		n, err := intValue(opt, v, 0, 0)
		if err != nil {
			return nil, err
		}
		s.lowWater = n
	case api.OptBalancingConnections:
		n, err := intValue(opt, v, 0, 0)
		if err != nil {
			return nil, err
		}
		s.balancing = n
	case api.OptBalancingTokens, api.OptWorkerIOThreads:
		if _, err := intValue(opt, v, 0, 0); err != nil {
			return nil, err
		}
	case api.OptDirectAcceptDelivery:
		on, err := boolValue(opt, v)
		if err != nil {
			return nil, err
		}
		s.direct = on
	default:
		return nil, unsupported(opt)
	}
	s.opts[opt] = v
	if s.paused && (s.highWater == 0 || s.open <= s.lowWater) {
		s.paused = false
	}
	s.cond.Broadcast()
	return prev, nil
}

func (s *Server) setConnOption(opt api.Option, v any) any {
	prev, _ := s.connOpts.Get(opt)
	s.connOpts.Set(opt, v)
	return prev
}

func (s *Server) String() string {
	return fmt.Sprintf("xio.Server(%s)", s.ln.Addr())
}

var _ api.AcceptingChannel = (*Server)(nil)
