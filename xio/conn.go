// File: xio/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection wraps a TCP socket in a non-blocking, readiness-driven facade.
// A pump goroutine stages inbound bytes and a drain goroutine flushes staged
// outbound bytes; listeners are notified on the connection's IoThread.

package xio

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-bridge/api"
)

// Connection is the api.StreamConnection implementation.
type Connection struct {
	t   *IoThread
	nc  *net.TCPConn
	src *source
	snk *sink

	closed atomic.Bool

	mu      sync.Mutex
	opts    map[api.Option]any
	closeFn func(api.StreamConnection)
	release func()
}

func newConnection(t *IoThread, nc *net.TCPConn, opts *api.OptionMap) (*Connection, error) {
	c := &Connection{
		t:  t,
		nc: nc,
		opts: map[api.Option]any{
			api.OptTCPNoDelay:    true,
			api.OptKeepAlive:     true,
			api.OptSendBuffer:    defaultStageSize,
			api.OptReceiveBuffer: defaultStageSize,
		},
	}
	c.src = newSource(c, defaultStageSize)
	c.snk = newSink(c, defaultStageSize)

	var err error
	opts.Each(func(opt api.Option, v any) bool {
		if !c.SupportsOption(opt) {
			return true
		}
		if _, err = c.SetOption(opt, v); err != nil {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	go c.src.pump()
	go c.snk.drain()
	return c, nil
}

func (c *Connection) Source() api.SourceChannel { return c.src }
func (c *Connection) Sink() api.SinkChannel     { return c.snk }
func (c *Connection) IoThread() api.IoThread    { return c.t }
func (c *Connection) Worker() api.Worker        { return c.t.w }
func (c *Connection) LocalAddr() net.Addr       { return c.nc.LocalAddr() }
func (c *Connection) RemoteAddr() net.Addr      { return c.nc.RemoteAddr() }

func (c *Connection) IsOpen() bool          { return !c.closed.Load() }
func (c *Connection) IsReadShutdown() bool  { return !c.src.IsOpen() }
func (c *Connection) IsWriteShutdown() bool { return !c.snk.IsOpen() }

// Close releases the socket. Half close listeners that have not fired yet fire
// before the connection close listener.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.nc.Close()
	c.src.wake()
	c.snk.wake()
	c.src.fireClose()
	c.snk.fireClose()

	c.mu.Lock()
	fn, release := c.closeFn, c.release
	c.release = nil
	c.mu.Unlock()
	if release != nil {
		release()
	}
	if fn != nil {
		c.t.run(func() { fn(c) })
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// checkBothShut closes the connection once both halves are shut down.
func (c *Connection) checkBothShut() {
	if c.src.isShut() && c.snk.isDone() {
		c.Close()
	}
}

func (c *Connection) SetCloseListener(fn func(api.StreamConnection)) {
	c.mu.Lock()
	c.closeFn = fn
	c.mu.Unlock()
}

func (c *Connection) setRelease(fn func()) {
	c.mu.Lock()
	c.release = fn
	c.mu.Unlock()
}

func (c *Connection) SupportsOption(opt api.Option) bool {
	switch opt {
	case api.OptTCPNoDelay, api.OptKeepAlive, api.OptSendBuffer, api.OptReceiveBuffer,
		api.OptTrafficClass, api.OptReuseAddresses:
		return true
	}
	return false
}

func (c *Connection) Option(opt api.Option) (any, error) {
	if !c.SupportsOption(opt) {
		return nil, unsupported(opt)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts[opt], nil
}

// SetOption applies opt to the socket and returns the previous value.
func (c *Connection) SetOption(opt api.Option, v any) (any, error) {
	if !c.SupportsOption(opt) {
		return nil, unsupported(opt)
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := c.apply(opt, v); err != nil {
		return nil, err
	}
	c.mu.Lock()
	prev := c.opts[opt]
	c.opts[opt] = v
	c.mu.Unlock()
	return prev, nil
}

func (c *Connection) apply(opt api.Option, v any) error {
	switch opt {
	case api.OptTCPNoDelay:
		on, err := boolValue(opt, v)
		if err != nil {
			return err
		}
		return c.nc.SetNoDelay(on)
	case api.OptKeepAlive:
		on, err := boolValue(opt, v)
		if err != nil {
			return err
		}
		return c.nc.SetKeepAlive(on)
	case api.OptSendBuffer:
		n, err := intValue(opt, v, 1, 0)
		if err != nil {
			return err
		}
		if err := c.nc.SetWriteBuffer(n); err != nil {
			return err
		}
		c.snk.setLimit(max(n, minStageSize))
		return nil
	case api.OptReceiveBuffer:
		n, err := intValue(opt, v, 1, 0)
		if err != nil {
			return err
		}
		if err := c.nc.SetReadBuffer(n); err != nil {
			return err
		}
		c.src.setLimit(max(n, minStageSize))
		return nil
	case api.OptTrafficClass:
		tc, err := intValue(opt, v, 0, 255)
		if err != nil {
			return err
		}
		return c.control(func(fd uintptr) error { return setTrafficClass(fd, tc) })
	case api.OptReuseAddresses:
		on, err := boolValue(opt, v)
		if err != nil {
			return err
		}
		return c.control(func(fd uintptr) error { return setReuseAddr(fd, on) })
	}
	return unsupported(opt)
}

func (c *Connection) control(fn func(fd uintptr) error) error {
	rc, err := c.nc.SyscallConn()
	if err != nil {
		return err
	}
	return rawControl(rc, fn)
}

func (c *Connection) String() string {
	return fmt.Sprintf("xio.Connection(%s -> %s)", c.nc.LocalAddr(), c.nc.RemoteAddr())
}

// source stages inbound bytes between the socket and the reader.
type source struct {
	c     *Connection
	ready readiness

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	limit   int
	eof     bool
	err     error
	shut    bool
	fired   bool
	readFn  func(api.SourceChannel)
	closeFn func(api.SourceChannel)
}

func newSource(c *Connection, limit int) *source {
	s := &source{c: c, limit: limit}
	s.cond = sync.NewCond(&s.mu)
	s.ready = readiness{t: c.t, ready: s.readable, fire: s.fireRead}
	return s
}

func (s *source) pump() {
	tmp := make([]byte, 32<<10)
	for {
		s.mu.Lock()
		for len(s.buf) >= s.limit && !s.shut && !s.c.closed.Load() {
			s.cond.Wait()
		}
		if s.shut || s.c.closed.Load() {
			s.mu.Unlock()
			return
		}
		room := min(s.limit-len(s.buf), len(tmp))
		s.mu.Unlock()

		n, err := s.c.nc.Read(tmp[:room])

		s.mu.Lock()
		s.buf = append(s.buf, tmp[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
			} else {
				s.err = err
			}
		}
		s.mu.Unlock()
		s.ready.notify()
		if err != nil {
			return
		}
	}
}

func (s *source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.shut:
		return 0, io.EOF
	case s.c.closed.Load():
		return 0, ErrClosed
	case len(s.buf) > 0:
		n := copy(p, s.buf)
		rest := copy(s.buf, s.buf[n:])
		s.buf = s.buf[:rest]
		s.cond.Signal()
		return n, nil
	case s.err != nil:
		return 0, s.err
	case s.eof:
		return 0, io.EOF
	}
	return 0, nil
}

func (s *source) readable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shut || s.c.closed.Load() {
		return false
	}
	return len(s.buf) > 0 || s.eof || s.err != nil
}

func (s *source) fireRead() {
	s.mu.Lock()
	fn := s.readFn
	s.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (s *source) setLimit(n int) {
	s.mu.Lock()
	s.limit = n
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *source) wake() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *source) isShut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shut
}

func (s *source) ResumeReads()        { s.ready.resume() }
func (s *source) SuspendReads()       { s.ready.suspend() }
func (s *source) IsReadResumed() bool { return s.ready.isResumed() }
func (s *source) IoThread() api.IoThread {
	return s.c.t
}

func (s *source) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.shut && !s.c.closed.Load()
}

// ShutdownReads discards staged input and half-closes the socket.
func (s *source) ShutdownReads() error {
	s.mu.Lock()
	if s.shut {
		s.mu.Unlock()
		return nil
	}
	s.shut = true
	s.buf = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	var err error
	if !s.c.closed.Load() {
		err = s.c.nc.CloseRead()
	}
	s.fireClose()
	s.c.checkBothShut()
	return err
}

func (s *source) SetReadListener(fn func(api.SourceChannel)) {
	s.mu.Lock()
	s.readFn = fn
	s.mu.Unlock()
}

// SetCloseListener fires fn right away when the half is already closed.
func (s *source) SetCloseListener(fn func(api.SourceChannel)) {
	s.mu.Lock()
	s.closeFn = fn
	fired := s.fired
	s.mu.Unlock()
	if fired && fn != nil {
		s.c.t.run(func() { fn(s) })
	}
}

func (s *source) fireClose() {
	s.mu.Lock()
	if s.fired {
		s.mu.Unlock()
		return
	}
	s.fired = true
	fn := s.closeFn
	s.mu.Unlock()
	if fn != nil {
		s.c.t.run(func() { fn(s) })
	}
}

// sink stages outbound bytes between the writer and the socket.
type sink struct {
	c     *Connection
	ready readiness

	mu      sync.Mutex
	cond    *sync.Cond
	pending []byte
	spare   []byte
	limit   int
	err     error
	shut    bool
	done    bool
	fired   bool
	writeFn func(api.SinkChannel)
	closeFn func(api.SinkChannel)
}

func newSink(c *Connection, limit int) *sink {
	s := &sink{c: c, limit: limit}
	s.cond = sync.NewCond(&s.mu)
	s.ready = readiness{t: c.t, ready: s.writable, fire: s.fireWrite}
	return s
}

func (s *sink) drain() {
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.shut && !s.c.closed.Load() {
			s.cond.Wait()
		}
		if s.c.closed.Load() {
			s.mu.Unlock()
			return
		}
		if len(s.pending) == 0 {
			s.mu.Unlock()
			s.finish()
			return
		}
		chunk := s.pending
		s.pending, s.spare = s.spare[:0], nil
		s.mu.Unlock()

		_, err := s.c.nc.Write(chunk)

		s.mu.Lock()
		s.spare = chunk[:0]
		if err != nil {
			s.err = err
		}
		s.mu.Unlock()
		s.ready.notify()
		if err != nil {
			return
		}
	}
}

// finish half-closes the socket once everything staged has been written.
func (s *sink) finish() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()
	if !s.c.closed.Load() {
		s.c.nc.CloseWrite()
	}
	s.fireClose()
	s.c.checkBothShut()
}

// Write copies as much of bufs as the staging area accepts.
func (s *sink) Write(bufs [][]byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErrLocked(); err != nil {
		return 0, err
	}
	var n int64
	for _, b := range bufs {
		room := s.limit - len(s.pending)
		if room <= 0 {
			break
		}
		k := min(room, len(b))
		s.pending = append(s.pending, b[:k]...)
		n += int64(k)
	}
	if n > 0 {
		s.cond.Signal()
	}
	return n, nil
}

// TransferFrom stages up to count bytes of r starting at pos.
func (s *sink) TransferFrom(r io.ReaderAt, pos, count int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErrLocked(); err != nil {
		return 0, err
	}
	room := int64(s.limit - len(s.pending))
	if room <= 0 || count <= 0 {
		return 0, nil
	}
	k := min(room, count)
	off := len(s.pending)
	s.pending = append(s.pending, make([]byte, k)...)
	n, err := r.ReadAt(s.pending[off:off+int(k)], pos)
	s.pending = s.pending[:off+n]
	if n > 0 {
		s.cond.Signal()
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return int64(n), err
	}
	return int64(n), nil
}

func (s *sink) writeErrLocked() error {
	switch {
	case s.c.closed.Load(), s.shut:
		return ErrClosed
	case s.err != nil:
		return s.err
	}
	return nil
}

func (s *sink) writable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shut || s.c.closed.Load() {
		return false
	}
	return len(s.pending) < s.limit || s.err != nil
}

func (s *sink) fireWrite() {
	s.mu.Lock()
	fn := s.writeFn
	s.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (s *sink) setLimit(n int) {
	s.mu.Lock()
	s.limit = n
	s.mu.Unlock()
	s.ready.notify()
}

func (s *sink) wake() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *sink) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *sink) ResumeWrites()          { s.ready.resume() }
func (s *sink) SuspendWrites()         { s.ready.suspend() }
func (s *sink) IsWriteResumed() bool   { return s.ready.isResumed() }
func (s *sink) IoThread() api.IoThread { return s.c.t }

func (s *sink) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.shut && !s.c.closed.Load()
}

// ShutdownWrites stops accepting data; the socket is half-closed after the
// staged bytes are flushed.
func (s *sink) ShutdownWrites() error {
	s.mu.Lock()
	if s.shut {
		s.mu.Unlock()
		return nil
	}
	s.shut = true
	failed := s.err != nil
	s.cond.Broadcast()
	s.mu.Unlock()
	if failed {
		s.finish()
	}
	return nil
}

func (s *sink) SetWriteListener(fn func(api.SinkChannel)) {
	s.mu.Lock()
	s.writeFn = fn
	s.mu.Unlock()
}

// SetCloseListener fires fn right away when the half is already closed.
func (s *sink) SetCloseListener(fn func(api.SinkChannel)) {
	s.mu.Lock()
	s.closeFn = fn
	fired := s.fired
	s.mu.Unlock()
	if fired && fn != nil {
		s.c.t.run(func() { fn(s) })
	}
}

func (s *sink) fireClose() {
	s.mu.Lock()
	if s.fired {
		s.mu.Unlock()
		return
	}
	s.fired = true
	fn := s.closeFn
	s.mu.Unlock()
	if fn != nil {
		s.c.t.run(func() { fn(s) })
	}
}

var (
	_ api.StreamConnection = (*Connection)(nil)
	_ api.SourceChannel    = (*source)(nil)
	_ api.SinkChannel      = (*sink)(nil)
)
