// Package fake
// Author: momentics <momentics@gmail.com>

package fake

import (
	"net"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-bridge/api"
)

// Acceptor is a scripted api.AcceptingChannel. Pushed connections and errors
// are returned by Accept in order.
type Acceptor struct {
	t *Thread

	mu       sync.Mutex
	script   *queue.Queue // of api.StreamConnection or error
	accepts  int
	resumed  bool
	suspends int
	open     bool
	listener func(api.AcceptingChannel)
	opts     map[api.Option]any
}

// NewAcceptor returns an open acceptor bound to t.
func NewAcceptor(t *Thread) *Acceptor {
	return &Acceptor{t: t, script: queue.New(), open: true, opts: make(map[api.Option]any)}
}

// Push queues a connection.
func (a *Acceptor) Push(conns ...api.StreamConnection) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range conns {
		a.script.Add(c)
	}
}

// PushError queues an accept failure.
func (a *Acceptor) PushError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.script.Add(err)
}

// Accepts counts Accept calls that returned a connection or an error.
func (a *Acceptor) Accepts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accepts
}

// Pending returns the number of scripted results not yet consumed.
func (a *Acceptor) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.script.Length()
}

// Suspends counts SuspendAccepts calls.
func (a *Acceptor) Suspends() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.suspends
}

// FireHere invokes the accept listener on the calling goroutine.
func (a *Acceptor) FireHere() {
	a.mu.Lock()
	fn := a.listener
	a.mu.Unlock()
	if fn != nil {
		fn(a)
	}
}

// FireOnThread invokes the accept listener on the acceptor's thread and waits.
func (a *Acceptor) FireOnThread() { a.t.Run(a.FireHere) }

func (a *Acceptor) Accept() (api.StreamConnection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.script.Length() == 0 {
		return nil, nil
	}
	a.accepts++
	switch v := a.script.Remove().(type) {
	case error:
		return nil, v
	case api.StreamConnection:
		return v, nil
	}
	return nil, nil
}

func (a *Acceptor) ResumeAccepts() {
	a.mu.Lock()
	a.resumed = true
	a.mu.Unlock()
}

func (a *Acceptor) SuspendAccepts() {
	a.mu.Lock()
	a.resumed = false
	a.suspends++
	a.mu.Unlock()
}

func (a *Acceptor) IsAcceptResumed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resumed
}

func (a *Acceptor) SetAcceptListener(fn func(api.AcceptingChannel)) {
	a.mu.Lock()
	a.listener = fn
	a.mu.Unlock()
}

func (a *Acceptor) IoThread() api.IoThread { return a.t }
func (a *Acceptor) Worker() api.Worker     { return a.t.w }

func (a *Acceptor) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

func (a *Acceptor) Close() error {
	a.mu.Lock()
	a.open = false
	a.mu.Unlock()
	return nil
}

func (a *Acceptor) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}
}

func (a *Acceptor) SetOption(opt api.Option, v any) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	old := a.opts[opt]
	a.opts[opt] = v
	return old, nil
}

func (a *Acceptor) Option(opt api.Option) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opts[opt], nil
}

var _ api.AcceptingChannel = (*Acceptor)(nil)
