// File: transport/bootstrap.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bootstrap helpers wiring channels, pipelines and loops together.

package transport

import (
	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/pipeline"
)

// Bootstrap connects client channels.
type Bootstrap struct {
	Group   *EventLoopGroup
	Config  Config
	Handler api.Handler
	// Init runs on each new channel before registration.
	Init    func(ch api.Channel)
	Options *api.OptionMap
}

// Connect registers a new SocketChannel and connects it to remote.
// The future's value is the *SocketChannel.
func (b Bootstrap) Connect(remote string) api.Future {
	p := concurrency.NewPromise()
	if b.Group == nil {
		p.TryFailure(api.ErrInvalidArgument)
		return p
	}
	ch := NewSocketChannel(b.Config)
	if err := applyOptions(ch, b.Options); err != nil {
		p.TryFailure(err)
		return p
	}
	if b.Handler != nil {
		ch.Pipeline().AddLast("handler", b.Handler)
	}
	if b.Init != nil {
		b.Init(ch)
	}
	b.Group.Register(ch).AddListener(func(f api.Future) {
		if !f.IsSuccess() {
			p.TryFailure(f.Err())
			ch.Close()
			return
		}
		ch.Connect(remote, "").AddListener(func(cf api.Future) {
			if cf.IsSuccess() {
				p.TrySuccess(ch)
				return
			}
			p.TryFailure(cf.Err())
		})
	})
	return p
}

// ServerBootstrap binds server channels. Accepted children are registered on
// the server's group and receive ChildHandler and ChildInit.
type ServerBootstrap struct {
	Group        *EventLoopGroup
	Config       Config
	ChildConfig  Config
	Handler      api.Handler
	ChildHandler api.Handler
	ChildInit    func(ch api.Channel)
	Options      *api.OptionMap
	ChildOptions *api.OptionMap
}

// Bind registers a new ServerSocketChannel and binds it to addr.
// The future's value is the *ServerSocketChannel.
func (b ServerBootstrap) Bind(addr string) api.Future {
	p := concurrency.NewPromise()
	if b.Group == nil {
		p.TryFailure(api.ErrInvalidArgument)
		return p
	}
	ch := NewServerSocketChannel(b.Config, b.ChildConfig)
	if err := applyOptions(ch, b.Options); err != nil {
		p.TryFailure(err)
		return p
	}
	if b.Handler != nil {
		ch.Pipeline().AddLast("handler", b.Handler)
	}
	ch.Pipeline().AddLast("acceptor", &acceptor{
		group:   b.Group,
		handler: b.ChildHandler,
		init:    b.ChildInit,
		opts:    b.ChildOptions,
	})
	b.Group.Register(ch).AddListener(func(f api.Future) {
		if !f.IsSuccess() {
			p.TryFailure(f.Err())
			ch.Close()
			return
		}
		ch.Bind(addr).AddListener(func(bf api.Future) {
			if bf.IsSuccess() {
				p.TrySuccess(ch)
				return
			}
			p.TryFailure(bf.Err())
			ch.Close()
		})
	})
	return p
}

func applyOptions(ch api.Channel, opts *api.OptionMap) error {
	var err error
	opts.Each(func(opt api.Option, v any) bool {
		err = ch.SetOption(opt, v)
		return err == nil
	})
	return err
}

// acceptor prepares and registers each accepted child.
type acceptor struct {
	pipeline.Adapter
	group   *EventLoopGroup
	handler api.Handler
	init    func(ch api.Channel)
	opts    *api.OptionMap
}

func (a *acceptor) ChannelRead(ctx api.HandlerContext, msg any) {
	child, ok := msg.(*WrappingSocketChannel)
	if !ok {
		ctx.FireChannelRead(msg)
		return
	}
	if err := applyOptions(child, a.opts); err != nil {
		logf("child %s: %v", child.ID(), err)
	}
	if a.handler != nil {
		child.Pipeline().AddLast("handler", a.handler)
	}
	if a.init != nil {
		a.init(child)
	}
	a.group.Register(child).AddListener(func(f api.Future) {
		if !f.IsSuccess() {
			logf("child %s: register: %v", child.ID(), f.Err())
			child.Close()
		}
	})
}
