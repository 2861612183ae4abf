// Package xio
// Author: momentics <momentics@gmail.com>
//
// Goroutine-driven I/O provider over the net package.
//
// A Worker owns N IoThreads, each a single-goroutine task loop. Connections
// stage inbound and outbound bytes between the socket and the owning thread:
// a reader goroutine fills the inbound stage, a writer goroutine drains the
// outbound stage, and readiness listeners run on the owning IoThread while the
// matching interest is resumed. Readiness is level-triggered: a listener that
// leaves data behind is invoked again.
package xio
