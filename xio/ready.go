// File: xio/ready.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package xio

import "sync/atomic"

// readiness delivers a level-triggered listener on an IoThread: while resumed
// and ready, the listener keeps being scheduled.
type readiness struct {
	t         *IoThread
	resumed   atomic.Bool
	scheduled atomic.Bool
	ready     func() bool
	fire      func()
}

func (r *readiness) resume() {
	r.resumed.Store(true)
	r.notify()
}

func (r *readiness) suspend() { r.resumed.Store(false) }

func (r *readiness) isResumed() bool { return r.resumed.Load() }

// notify schedules one dispatch; concurrent notifications coalesce.
func (r *readiness) notify() {
	if !r.resumed.Load() {
		return
	}
	if !r.scheduled.CompareAndSwap(false, true) {
		return
	}
	if err := r.t.Execute(r.dispatch); err != nil {
		r.scheduled.Store(false)
	}
}

func (r *readiness) dispatch() {
	r.scheduled.Store(false)
	if !r.resumed.Load() || !r.ready() {
		return
	}
	r.fire()
	if r.resumed.Load() && r.ready() {
		r.notify()
	}
}
