package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/fake"
)

func TestEventLoop_ExecuteRunsOnThread(t *testing.T) {
	_, g := newFakeGroup(t, 2)
	l := g.Loops()[1]

	assert.False(t, l.InEventLoop())
	done := make(chan struct{})
	var inLoop, inGoroutine atomic.Bool
	require.NoError(t, l.Execute(func() {
		inLoop.Store(l.InEventLoop())
		inGoroutine.Store(l.InEventLoopGoroutine(concurrency.GoroutineID()))
		close(done)
	}))
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("task did not run")
	}
	assert.True(t, inLoop.Load())
	assert.True(t, inGoroutine.Load())
	assert.False(t, l.InEventLoopGoroutine(concurrency.GoroutineID()))
	assert.False(t, l.InEventLoopGoroutine(0))
	assert.ErrorIs(t, l.Execute(nil), api.ErrInvalidArgument)
}

func TestEventLoop_TasksKeepOrder(t *testing.T) {
	_, g := newFakeGroup(t, 1)
	l := g.Loops()[0]

	got := make(chan int, 100)
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, l.Execute(func() { got <- i }))
	}
	for i := 0; i < 100; i++ {
		select {
		case v := <-got:
			require.Equal(t, i, v)
		case <-time.After(waitFor):
			t.Fatal("task missing")
		}
	}
}

func TestEventLoop_RegisterBindsChannel(t *testing.T) {
	w, g := newFakeGroup(t, 2)
	conn := fake.NewConn(w.Thread(1))
	ch, err := newAcceptedChannel(nil, conn, DefaultConfig())
	require.NoError(t, err)

	f := g.Register(ch)
	awaitOK(t, f)
	assert.Same(t, ch, f.Value())
	assert.True(t, ch.IsRegistered())
	assert.Same(t, g.Loops()[1], ch.EventLoop())
	assert.Same(t, g, ch.EventLoop().Parent())

	again := g.Loops()[1].Register(ch, concurrency.NewPromise())
	await(t, again)
	assert.ErrorIs(t, again.Err(), api.ErrInvalidArgument)
}

func TestEventLoop_RegisterRejectsInvalidInput(t *testing.T) {
	_, g := newFakeGroup(t, 1)
	l := g.Loops()[0]

	f := l.Register(nil, concurrency.NewPromise())
	await(t, f)
	assert.ErrorIs(t, f.Err(), api.ErrInvalidArgument)

	f = l.Register(NewSocketChannel(DefaultConfig()), nil)
	await(t, f)
	assert.ErrorIs(t, f.Err(), api.ErrInvalidArgument)
}

func TestEventLoop_RegisterRejectsForeignThread(t *testing.T) {
	w, g := newFakeGroup(t, 2)
	conn := fake.NewConn(w.Thread(1))
	ch, err := newAcceptedChannel(nil, conn, DefaultConfig())
	require.NoError(t, err)

	assert.False(t, g.Loops()[0].Compatible(ch))
	f := g.Loops()[0].Register(ch, concurrency.NewPromise())
	await(t, f)
	assert.ErrorIs(t, f.Err(), api.ErrIncompatibleLoop)
	assert.False(t, ch.IsRegistered())

	other := fake.NewWorker(1)
	t.Cleanup(other.Shutdown)
	foreign, err := newAcceptedChannel(nil, fake.NewConn(other.Thread(0)), DefaultConfig())
	require.NoError(t, err)
	f = g.Register(foreign)
	await(t, f)
	assert.ErrorIs(t, f.Err(), api.ErrIncompatibleLoop)
}

func TestEventLoop_ChildMustShareParentGroup(t *testing.T) {
	_, g := newFakeGroup(t, 1)
	server := NewServerSocketChannel(DefaultConfig(), DefaultConfig())
	awaitOK(t, g.Register(server))

	w2, g2 := newFakeGroup(t, 1)
	child, err := newAcceptedChannel(server, fake.NewConn(w2.Thread(0)), DefaultConfig())
	require.NoError(t, err)
	f := g2.Register(child)
	await(t, f)
	assert.ErrorIs(t, f.Err(), api.ErrIncompatibleLoop)
}

func TestEventLoop_RegisterClosedChannelFails(t *testing.T) {
	_, g := newFakeGroup(t, 1)
	ch := NewSocketChannel(DefaultConfig())
	awaitOK(t, ch.Close())

	f := g.Register(ch)
	await(t, f)
	assert.ErrorIs(t, f.Err(), api.ErrChannelClosed)
	assert.False(t, ch.IsRegistered())
}

func TestEventLoop_SoloGroup(t *testing.T) {
	w := fake.NewWorker(1)
	t.Cleanup(w.Shutdown)
	l := NewEventLoop(nil, w.Thread(0))

	parent := l.Parent()
	assert.Same(t, l, parent.Next())
	assert.ErrorIs(t, parent.ShutdownGracefully(context.Background()), api.ErrNotSupported)
	assert.ErrorIs(t, l.ShutdownGracefully(context.Background()), api.ErrNotSupported)
	assert.Error(t, l.TerminationFuture().Err())

	ch, err := newAcceptedChannel(nil, fake.NewConn(w.Thread(0)), DefaultConfig())
	require.NoError(t, err)
	awaitOK(t, parent.Register(ch))
	assert.Same(t, l, ch.EventLoop())

	assert.False(t, parent.IsShutdown())
	w.Shutdown()
	assert.True(t, parent.IsShutdown())
	assert.True(t, l.IsTerminated())
}

func TestGroup_RoundRobinAndLoopFor(t *testing.T) {
	w, g := newFakeGroup(t, 3)

	seen := []api.EventLoop{g.Next(), g.Next(), g.Next(), g.Next()}
	assert.Same(t, g.Loops()[0], seen[0])
	assert.Same(t, g.Loops()[1], seen[1])
	assert.Same(t, g.Loops()[2], seen[2])
	assert.Same(t, g.Loops()[0], seen[3])

	l, ok := g.LoopFor(w.Thread(2))
	require.True(t, ok)
	assert.Same(t, g.Loops()[2], l)

	other := fake.NewWorker(1)
	t.Cleanup(other.Shutdown)
	_, ok = g.LoopFor(other.Thread(0))
	assert.False(t, ok)
	_, ok = g.LoopFor(nil)
	assert.False(t, ok)
}

func TestGroup_ShutdownGracefully(t *testing.T) {
	_, g := newFakeGroup(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	require.NoError(t, g.ShutdownGracefully(ctx))
	assert.True(t, g.IsShutdown())
	assert.True(t, g.IsTerminated())
	assert.Error(t, g.Loops()[0].Execute(func() {}))
}
