// File: pipeline/pipeline.go
// Package pipeline
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ordered inbound handler chain. Events enter at the first handler and move on
// only when a handler forwards them through its context; whatever reaches the
// tail is discarded (buffers released, errors logged).

package pipeline

import (
	"fmt"
	"log"
	"sync"

	"github.com/momentics/hioload-bridge/api"
)

// Pipeline is the default api.Pipeline.
type Pipeline struct {
	ch   api.Channel
	mu   sync.RWMutex
	head *handlerContext // sentinel, never invoked
	tail *handlerContext
}

// New returns an empty pipeline bound to ch.
func New(ch api.Channel) *Pipeline {
	p := &Pipeline{ch: ch}
	p.tail = &handlerContext{p: p, name: "tail", h: tailHandler{}}
	p.head = &handlerContext{p: p, name: "head", next: p.tail}
	return p
}

// AddLast appends h before the tail. Names must be unique.
func (p *Pipeline) AddLast(name string, h api.Handler) api.Pipeline {
	if h == nil {
		panic("pipeline: nil handler")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.head
	for c := p.head.next; c != p.tail; c = c.next {
		if c.name == name {
			panic(fmt.Sprintf("pipeline: duplicate handler name %q", name))
		}
		prev = c
	}
	prev.next = &handlerContext{p: p, name: name, h: h, next: p.tail}
	return p
}

// Names lists handler names in order.
func (p *Pipeline) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for c := p.head.next; c != p.tail; c = c.next {
		out = append(out, c.name)
	}
	return out
}

// Get returns the handler registered under name.
func (p *Pipeline) Get(name string) api.Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for c := p.head.next; c != p.tail; c = c.next {
		if c.name == name {
			return c.h
		}
	}
	return nil
}

func (p *Pipeline) Channel() api.Channel { return p.ch }

func (p *Pipeline) FireChannelRegistered()        { p.head.FireChannelRegistered() }
func (p *Pipeline) FireChannelActive()            { p.head.FireChannelActive() }
func (p *Pipeline) FireChannelInactive()          { p.head.FireChannelInactive() }
func (p *Pipeline) FireChannelRead(msg any)       { p.head.FireChannelRead(msg) }
func (p *Pipeline) FireChannelReadComplete()      { p.head.FireChannelReadComplete() }
func (p *Pipeline) FireExceptionCaught(err error) { p.head.FireExceptionCaught(err) }

type handlerContext struct {
	p    *Pipeline
	name string
	h    api.Handler
	next *handlerContext
}

func (c *handlerContext) Name() string           { return c.name }
func (c *handlerContext) Channel() api.Channel   { return c.p.ch }
func (c *handlerContext) Pipeline() api.Pipeline { return c.p }

func (c *handlerContext) nextCtx() *handlerContext {
	c.p.mu.RLock()
	n := c.next
	c.p.mu.RUnlock()
	return n
}

func (c *handlerContext) FireChannelRegistered() {
	n := c.nextCtx()
	n.invoke(func() { n.h.ChannelRegistered(n) })
}

func (c *handlerContext) FireChannelActive() {
	n := c.nextCtx()
	n.invoke(func() { n.h.ChannelActive(n) })
}

func (c *handlerContext) FireChannelInactive() {
	n := c.nextCtx()
	n.invoke(func() { n.h.ChannelInactive(n) })
}

func (c *handlerContext) FireChannelRead(msg any) {
	n := c.nextCtx()
	n.invoke(func() { n.h.ChannelRead(n, msg) })
}

func (c *handlerContext) FireChannelReadComplete() {
	n := c.nextCtx()
	n.invoke(func() { n.h.ChannelReadComplete(n) })
}

func (c *handlerContext) FireExceptionCaught(err error) {
	n := c.nextCtx()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[pipeline] handler %s panicked in ExceptionCaught: %v", n.name, r)
		}
	}()
	n.h.ExceptionCaught(n, err)
}

// invoke runs fn and turns a panic into an ExceptionCaught on the same handler.
func (c *handlerContext) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("handler %s panicked: %v", c.name, r)
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("[pipeline] handler %s panicked in ExceptionCaught: %v", c.name, r)
					}
				}()
				c.h.ExceptionCaught(c, err)
			}()
		}
	}()
	fn()
}

// tailHandler discards what no handler consumed.
type tailHandler struct{}

func (tailHandler) ChannelRegistered(api.HandlerContext)   {}
func (tailHandler) ChannelActive(api.HandlerContext)       {}
func (tailHandler) ChannelInactive(api.HandlerContext)     {}
func (tailHandler) ChannelReadComplete(api.HandlerContext) {}

func (tailHandler) ChannelRead(_ api.HandlerContext, msg any) {
	if b, ok := msg.(api.Buffer); ok {
		_ = b.Release()
	}
}

func (tailHandler) ExceptionCaught(ctx api.HandlerContext, err error) {
	id := "?"
	if ch := ctx.Channel(); ch != nil {
		id = ch.ID()
	}
	log.Printf("[pipeline] unhandled error reached the tail of channel %s: %v", id, err)
}

var (
	_ api.Pipeline       = (*Pipeline)(nil)
	_ api.HandlerContext = (*handlerContext)(nil)
)
