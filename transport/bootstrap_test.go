package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/fake"
	"github.com/momentics/hioload-bridge/pipeline"
	"github.com/momentics/hioload-bridge/pool"
	"github.com/momentics/hioload-bridge/xio"
)

func newXioGroup(t *testing.T, threads int) *EventLoopGroup {
	t.Helper()
	cfg := xio.DefaultWorkerConfig()
	cfg.IoThreads = threads
	cfg.DialTimeout = waitFor
	w, err := xio.NewWorker(cfg)
	require.NoError(t, err)
	g := NewEventLoopGroup(w)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = g.ShutdownGracefully(ctx)
	})
	return g
}

func echoHandler() api.Handler {
	return pipeline.HandlerFuncs{
		OnRead: func(ctx api.HandlerContext, msg any) {
			ctx.Channel().WriteAndFlush(msg)
		},
	}
}

func TestBootstrap_EchoOverLoopback(t *testing.T) {
	g := newXioGroup(t, 2)

	sb := ServerBootstrap{
		Group:        g,
		Config:       DefaultConfig(),
		ChildConfig:  DefaultConfig(),
		ChildHandler: echoHandler(),
		Options:      api.NewOptionMap().Set(api.OptReuseAddresses, true),
	}
	bf := sb.Bind("127.0.0.1:0")
	awaitOK(t, bf)
	server := bf.Value().(*ServerSocketChannel)
	addr := server.LocalAddr().(*net.TCPAddr)
	require.NotZero(t, addr.Port)

	rec := &fake.Recorder{}
	cb := Bootstrap{Group: g, Config: DefaultConfig(), Handler: rec}
	cf := cb.Connect(addr.String())
	awaitOK(t, cf)
	client := cf.Value().(*SocketChannel)
	assert.True(t, client.IsActive())

	awaitOK(t, client.WriteAndFlush(pool.CopiedString("ping")))
	require.Eventually(t, func() bool { return string(rec.Data()) == "ping" }, waitFor, 5*time.Millisecond)

	awaitOK(t, client.Close())
	awaitOK(t, server.Close())
	assert.False(t, server.IsOpen())
}

func TestBootstrap_ChildHandlerAndInit(t *testing.T) {
	g := newXioGroup(t, 1)

	children := make(chan api.Channel, 1)
	sb := ServerBootstrap{
		Group:        g,
		Config:       DefaultConfig(),
		ChildConfig:  DefaultConfig(),
		ChildOptions: api.NewOptionMap().Set(api.OptMaxMessagesPerRead, 4),
		ChildInit:    func(ch api.Channel) { children <- ch },
	}
	bf := sb.Bind("127.0.0.1:0")
	awaitOK(t, bf)
	server := bf.Value().(*ServerSocketChannel)
	t.Cleanup(func() { server.Close() })

	nc, err := net.Dial("tcp", server.LocalAddr().String())
	require.NoError(t, err)
	defer nc.Close()

	var child api.Channel
	select {
	case child = <-children:
	case <-time.After(waitFor):
		t.Fatal("no child accepted")
	}
	assert.Same(t, server, child.Parent())
	v, err := child.Option(api.OptMaxMessagesPerRead)
	require.NoError(t, err)
	assert.Equal(t, 4, v)
	require.Eventually(t, child.IsRegistered, waitFor, time.Millisecond)
}

func TestBootstrap_RequiresGroup(t *testing.T) {
	f := Bootstrap{}.Connect("127.0.0.1:1")
	await(t, f)
	assert.ErrorIs(t, f.Err(), api.ErrInvalidArgument)

	f = ServerBootstrap{}.Bind("127.0.0.1:0")
	await(t, f)
	assert.ErrorIs(t, f.Err(), api.ErrInvalidArgument)
}

func TestBootstrap_InvalidOptionFailsConnect(t *testing.T) {
	_, g := newFakeGroup(t, 1)
	f := Bootstrap{
		Group:   g,
		Config:  DefaultConfig(),
		Options: api.NewOptionMap().Set(api.OptWriteSpinCount, -1),
	}.Connect("127.0.0.1:1")
	await(t, f)
	assert.ErrorIs(t, f.Err(), api.ErrInvalidArgument)
}
