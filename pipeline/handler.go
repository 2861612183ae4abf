// File: pipeline/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipeline

import "github.com/momentics/hioload-bridge/api"

// Adapter forwards every event. Embed it and override what you need.
type Adapter struct{}

func (Adapter) ChannelRegistered(ctx api.HandlerContext)          { ctx.FireChannelRegistered() }
func (Adapter) ChannelActive(ctx api.HandlerContext)              { ctx.FireChannelActive() }
func (Adapter) ChannelInactive(ctx api.HandlerContext)            { ctx.FireChannelInactive() }
func (Adapter) ChannelRead(ctx api.HandlerContext, msg any)       { ctx.FireChannelRead(msg) }
func (Adapter) ChannelReadComplete(ctx api.HandlerContext)        { ctx.FireChannelReadComplete() }
func (Adapter) ExceptionCaught(ctx api.HandlerContext, err error) { ctx.FireExceptionCaught(err) }

// HandlerFuncs builds a handler from optional callbacks; nil callbacks forward.
type HandlerFuncs struct {
	OnRegistered   func(ctx api.HandlerContext)
	OnActive       func(ctx api.HandlerContext)
	OnInactive     func(ctx api.HandlerContext)
	OnRead         func(ctx api.HandlerContext, msg any)
	OnReadComplete func(ctx api.HandlerContext)
	OnException    func(ctx api.HandlerContext, err error)
}

func (h HandlerFuncs) ChannelRegistered(ctx api.HandlerContext) {
	if h.OnRegistered == nil {
		ctx.FireChannelRegistered()
		return
	}
	h.OnRegistered(ctx)
}

func (h HandlerFuncs) ChannelActive(ctx api.HandlerContext) {
	if h.OnActive == nil {
		ctx.FireChannelActive()
		return
	}
	h.OnActive(ctx)
}

func (h HandlerFuncs) ChannelInactive(ctx api.HandlerContext) {
	if h.OnInactive == nil {
		ctx.FireChannelInactive()
		return
	}
	h.OnInactive(ctx)
}

func (h HandlerFuncs) ChannelRead(ctx api.HandlerContext, msg any) {
	if h.OnRead == nil {
		ctx.FireChannelRead(msg)
		return
	}
	h.OnRead(ctx, msg)
}

func (h HandlerFuncs) ChannelReadComplete(ctx api.HandlerContext) {
	if h.OnReadComplete == nil {
		ctx.FireChannelReadComplete()
		return
	}
	h.OnReadComplete(ctx)
}

func (h HandlerFuncs) ExceptionCaught(ctx api.HandlerContext, err error) {
	if h.OnException == nil {
		ctx.FireExceptionCaught(err)
		return
	}
	h.OnException(ctx, err)
}

var (
	_ api.Handler = Adapter{}
	_ api.Handler = HandlerFuncs{}
)
