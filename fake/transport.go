// Package fake
// Author: momentics <momentics@gmail.com>
//
// Scripted stream connection: the test feeds inbound chunks and sets how many
// bytes the sink accepts. Listeners run on the connection's thread.

package fake

import (
	"io"
	"net"
	"slices"
	"sync"

	"github.com/momentics/hioload-bridge/api"
)

// Conn is a scripted api.StreamConnection.
type Conn struct {
	t   *Thread
	src *Source
	snk *Sink

	mu      sync.Mutex
	open    bool
	opts    map[api.Option]any
	closes  int
	closeFn func(api.StreamConnection)

	// OptionErr, when set, is returned by SetOption.
	OptionErr error
	// Unsupported lists provider options SupportsOption rejects.
	Unsupported []api.Option
}

// NewConn returns an open connection bound to t whose sink accepts everything.
func NewConn(t *Thread) *Conn {
	c := &Conn{t: t, open: true, opts: make(map[api.Option]any)}
	c.src = &Source{c: c}
	c.snk = &Sink{c: c, room: -1}
	return c
}

func (c *Conn) Source() api.SourceChannel { return c.src }
func (c *Conn) Sink() api.SinkChannel     { return c.snk }
func (c *Conn) IoThread() api.IoThread    { return c.t }
func (c *Conn) Worker() api.Worker        { return c.t.w }

// Src and Snk return the concrete halves.
func (c *Conn) Src() *Source { return c.src }
func (c *Conn) Snk() *Sink   { return c.snk }

func (c *Conn) LocalAddr() net.Addr  { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1} }
func (c *Conn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2} }

func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Conn) IsReadShutdown() bool  { return !c.src.IsOpen() }
func (c *Conn) IsWriteShutdown() bool { return !c.snk.IsOpen() }

// Closes counts Close calls.
func (c *Conn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closes++
	if !c.open {
		c.mu.Unlock()
		return nil
	}
	c.open = false
	fn := c.closeFn
	c.mu.Unlock()
	c.src.closeHalf()
	c.snk.closeHalf()
	if fn != nil {
		c.post(func() { fn(c) })
	}
	return nil
}

func (c *Conn) SetOption(opt api.Option, v any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OptionErr != nil {
		return nil, c.OptionErr
	}
	old := c.opts[opt]
	c.opts[opt] = v
	return old, nil
}

func (c *Conn) Option(opt api.Option) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts[opt], nil
}

func (c *Conn) SupportsOption(opt api.Option) bool {
	return opt.IsProvider() && !slices.Contains(c.Unsupported, opt)
}

func (c *Conn) SetCloseListener(fn func(api.StreamConnection)) {
	c.mu.Lock()
	c.closeFn = fn
	c.mu.Unlock()
}

// post runs fn on the connection thread, inline when already there or once
// the thread is gone.
func (c *Conn) post(fn func()) {
	if c.t.InThread() {
		fn()
		return
	}
	c.async(fn)
}

// async queues fn on the connection thread like a readiness notification.
func (c *Conn) async(fn func()) {
	if err := c.t.Execute(fn); err != nil {
		fn()
	}
}

// Source is the scripted read half.
type Source struct {
	c *Conn

	mu      sync.Mutex
	chunks  [][]byte
	eof     bool
	err     error
	resumed bool
	shut    bool
	fired   bool
	readFn  func(api.SourceChannel)
	closeFn func(api.SourceChannel)
	reads   int
}

// Feed queues inbound bytes and notifies the read listener when reads are resumed.
func (s *Source) Feed(p []byte) {
	s.mu.Lock()
	s.chunks = append(s.chunks, append([]byte(nil), p...))
	s.mu.Unlock()
	s.Notify()
}

// FeedEOF makes reads report end of stream once queued bytes are consumed.
func (s *Source) FeedEOF() {
	s.mu.Lock()
	s.eof = true
	s.mu.Unlock()
	s.Notify()
}

// FeedError makes the next empty read fail with err.
func (s *Source) FeedError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.Notify()
}

// Notify invokes the read listener on the thread if reads are resumed. Like a
// level-triggered provider it notifies again while input remains.
func (s *Source) Notify() {
	s.mu.Lock()
	fn, ok := s.readFn, s.resumed
	s.mu.Unlock()
	if fn == nil || !ok {
		return
	}
	s.c.async(func() {
		fn(s)
		s.mu.Lock()
		again := s.resumed && s.readyLocked()
		s.mu.Unlock()
		if again {
			s.Notify()
		}
	})
}

func (s *Source) readyLocked() bool {
	return len(s.chunks) > 0 || s.eof || s.err != nil
}

// Reads counts Read calls.
func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.shut {
		return 0, io.EOF
	}
	if len(s.chunks) > 0 {
		n := copy(p, s.chunks[0])
		if n == len(s.chunks[0]) {
			s.chunks = s.chunks[1:]
		} else {
			s.chunks[0] = s.chunks[0][n:]
		}
		return n, nil
	}
	if s.err != nil {
		err := s.err
		s.err = nil
		return 0, err
	}
	if s.eof {
		return 0, io.EOF
	}
	return 0, nil
}

func (s *Source) ResumeReads() {
	s.mu.Lock()
	s.resumed = true
	ready := s.readyLocked()
	s.mu.Unlock()
	if ready {
		s.Notify()
	}
}

func (s *Source) SuspendReads() {
	s.mu.Lock()
	s.resumed = false
	s.mu.Unlock()
}

func (s *Source) IsReadResumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumed
}

func (s *Source) ShutdownReads() error {
	s.closeHalf()
	return nil
}

func (s *Source) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.shut
}

func (s *Source) SetReadListener(fn func(api.SourceChannel)) {
	s.mu.Lock()
	s.readFn = fn
	s.mu.Unlock()
}

func (s *Source) SetCloseListener(fn func(api.SourceChannel)) {
	s.mu.Lock()
	s.closeFn = fn
	fired := s.fired
	s.mu.Unlock()
	if fired && fn != nil {
		s.c.post(func() { fn(s) })
	}
}

func (s *Source) IoThread() api.IoThread { return s.c.t }

func (s *Source) closeHalf() {
	s.mu.Lock()
	s.shut = true
	if s.fired {
		s.mu.Unlock()
		return
	}
	s.fired = true
	fn := s.closeFn
	s.mu.Unlock()
	if fn != nil {
		s.c.post(func() { fn(s) })
	}
}

// Sink is the scripted write half. room bounds the bytes accepted until the
// next Grant; a negative room accepts everything.
type Sink struct {
	c *Conn

	mu       sync.Mutex
	room     int64
	perCall  int64
	written  []byte
	calls    []int // segments per Write call
	err      error
	resumed  bool
	shut     bool
	fired    bool
	writeFn  func(api.SinkChannel)
	closeFn  func(api.SinkChannel)
	resumes  int
	transfer int64
}

// SetRoom limits how many more bytes the sink accepts; negative is unbounded.
func (s *Sink) SetRoom(n int64) {
	s.mu.Lock()
	s.room = n
	s.mu.Unlock()
}

// Grant adds room and notifies the write listener when writes are resumed.
func (s *Sink) Grant(n int64) {
	s.mu.Lock()
	if s.room >= 0 {
		s.room += n
	}
	fn, ok := s.writeFn, s.resumed
	s.mu.Unlock()
	if fn != nil && ok {
		s.c.async(func() { fn(s) })
	}
}

// FailWith makes later writes fail with err.
func (s *Sink) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Written returns a copy of every byte accepted so far.
func (s *Sink) Written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written...)
}

// Calls returns the number of segments passed to each Write call.
func (s *Sink) Calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}

// Resumes counts ResumeWrites calls.
func (s *Sink) Resumes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumes
}

// SetPerCall caps the bytes a single Write accepts; zero removes the cap.
func (s *Sink) SetPerCall(n int64) {
	s.mu.Lock()
	s.perCall = n
	s.mu.Unlock()
}

func (s *Sink) take(want int64) int64 {
	if s.perCall > 0 && want > s.perCall {
		want = s.perCall
	}
	if s.room < 0 || want <= s.room {
		if s.room >= 0 {
			s.room -= want
		}
		return want
	}
	n := s.room
	s.room = 0
	return n
}

func (s *Sink) Write(bufs [][]byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, len(bufs))
	if s.err != nil {
		return 0, s.err
	}
	if s.shut {
		return 0, api.ErrChannelClosed
	}
	var total int64
	for _, b := range bufs {
		total += int64(len(b))
	}
	n := s.take(total)
	left := n
	for _, b := range bufs {
		if left == 0 {
			break
		}
		k := min(int64(len(b)), left)
		s.written = append(s.written, b[:k]...)
		left -= k
	}
	return n, nil
}

func (s *Sink) TransferFrom(r io.ReaderAt, pos, count int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	n := s.take(count)
	if n == 0 {
		return 0, nil
	}
	buf := make([]byte, n)
	got, err := r.ReadAt(buf, pos)
	if got < int(n) && s.room >= 0 {
		s.room += n - int64(got)
	}
	s.written = append(s.written, buf[:got]...)
	s.transfer += int64(got)
	if err == io.EOF && got > 0 {
		err = nil
	}
	return int64(got), err
}

func (s *Sink) ResumeWrites() {
	s.mu.Lock()
	s.resumed = true
	s.resumes++
	s.mu.Unlock()
}

func (s *Sink) SuspendWrites() {
	s.mu.Lock()
	s.resumed = false
	s.mu.Unlock()
}

func (s *Sink) IsWriteResumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumed
}

func (s *Sink) ShutdownWrites() error {
	s.closeHalf()
	return nil
}

func (s *Sink) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.shut
}

func (s *Sink) SetWriteListener(fn func(api.SinkChannel)) {
	s.mu.Lock()
	s.writeFn = fn
	s.mu.Unlock()
}

func (s *Sink) SetCloseListener(fn func(api.SinkChannel)) {
	s.mu.Lock()
	s.closeFn = fn
	fired := s.fired
	s.mu.Unlock()
	if fired && fn != nil {
		s.c.post(func() { fn(s) })
	}
}

func (s *Sink) IoThread() api.IoThread { return s.c.t }

func (s *Sink) closeHalf() {
	s.mu.Lock()
	s.shut = true
	if s.fired {
		s.mu.Unlock()
		return
	}
	s.fired = true
	fn := s.closeFn
	s.mu.Unlock()
	if fn != nil {
		s.c.post(func() { fn(s) })
	}
}

var (
	_ api.StreamConnection = (*Conn)(nil)
	_ api.SourceChannel    = (*Source)(nil)
	_ api.SinkChannel      = (*Sink)(nil)
)
