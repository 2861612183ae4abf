// File: api/handler.go
// Package api defines the pipeline and handler contracts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Pipeline is the event sink of a channel. All Fire calls for one channel
// originate from that channel's event loop goroutine.
type Pipeline interface {
	AddLast(name string, h Handler) Pipeline
	Channel() Channel

	FireChannelRegistered()
	FireChannelActive()
	FireChannelInactive()
	FireChannelRead(msg any)
	FireChannelReadComplete()
	FireExceptionCaught(err error)
}

// Handler processes inbound pipeline events.
type Handler interface {
	ChannelRegistered(ctx HandlerContext)
	ChannelActive(ctx HandlerContext)
	ChannelInactive(ctx HandlerContext)
	ChannelRead(ctx HandlerContext, msg any)
	ChannelReadComplete(ctx HandlerContext)
	ExceptionCaught(ctx HandlerContext, err error)
}

// HandlerContext binds a handler to its position in a pipeline.
type HandlerContext interface {
	Name() string
	Channel() Channel
	Pipeline() Pipeline

	FireChannelRegistered()
	FireChannelActive()
	FireChannelInactive()
	FireChannelRead(msg any)
	FireChannelReadComplete()
	FireExceptionCaught(err error)
}
