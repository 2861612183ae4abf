package xio

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-bridge/api"
)

func newTestWorker(t *testing.T, threads int) *Worker {
	t.Helper()
	cfg := DefaultWorkerConfig()
	cfg.IoThreads = threads
	cfg.DialTimeout = 2 * time.Second
	w, err := NewWorker(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		w.Shutdown()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = w.AwaitTermination(ctx)
	})
	return w
}

// acceptInto resumes accepts on srv and forwards every connection to out.
func acceptInto(srv api.AcceptingChannel, out chan<- api.StreamConnection) {
	srv.SetAcceptListener(func(ch api.AcceptingChannel) {
		for {
			c, err := ch.Accept()
			if err != nil || c == nil {
				return
			}
			out <- c
		}
	})
	srv.ResumeAccepts()
}

func dial(t *testing.T, w *Worker, srv api.AcceptingChannel, opts *api.OptionMap) api.StreamConnection {
	t.Helper()
	f := w.IoThread().OpenStreamConnection(srv.LocalAddr().String(), "", opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.Await(ctx))
	c, ok := f.Value().(api.StreamConnection)
	require.True(t, ok)
	return c
}

// readAll polls a non-blocking source until want bytes arrived.
func readAll(t *testing.T, src api.SourceChannel, want int) []byte {
	t.Helper()
	var got []byte
	buf := make([]byte, 256)
	require.Eventually(t, func() bool {
		n, _ := src.Read(buf)
		got = append(got, buf[:n]...)
		return len(got) >= want
	}, 5*time.Second, time.Millisecond)
	return got
}

func TestWorker_RejectsZeroThreads(t *testing.T) {
	_, err := NewWorker(WorkerConfig{IoThreads: 0})
	assert.ErrorIs(t, err, ErrInvalidThreadCount)
}

func TestWorker_IoThreadRotation(t *testing.T) {
	w := newTestWorker(t, 3)
	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		seen[w.IoThread().Index()] = true
	}
	assert.Len(t, seen, 3)
	assert.Nil(t, w.IoThreadAt(3))
	assert.Equal(t, 1, w.IoThreadAt(1).Index())
}

func TestIoThread_ExecuteRunsOnThread(t *testing.T) {
	w := newTestWorker(t, 1)
	th := w.IoThreadAt(0)
	done := make(chan bool, 1)
	require.NoError(t, th.Execute(func() { done <- th.InThread() }))
	assert.True(t, <-done)
	assert.False(t, th.InThread())
}

func TestIoThread_ExecuteAfterRemove(t *testing.T) {
	w := newTestWorker(t, 1)
	var fired atomic.Bool
	k := w.IoThreadAt(0).ExecuteAfter(func() { fired.Store(true) }, 50*time.Millisecond)
	assert.True(t, k.Remove())
	assert.False(t, k.Remove())
	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestConnection_Echo(t *testing.T) {
	w := newTestWorker(t, 2)
	accepted := make(chan api.StreamConnection, 1)
	srv, err := w.CreateStreamConnectionServer("127.0.0.1:0", nil, nil)
	require.NoError(t, err)
	acceptInto(srv, accepted)

	client := dial(t, w, srv, api.NewOptionMap().Set(api.OptTCPNoDelay, true))
	defer client.Close()

	var server api.StreamConnection
	select {
	case server = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("no connection accepted")
	}
	defer server.Close()

	server.Source().SetReadListener(func(src api.SourceChannel) {
		assert.True(t, src.IoThread().InThread())
		buf := make([]byte, 64)
		n, err := src.Read(buf)
		if err != nil || n == 0 {
			return
		}
		_, _ = server.Sink().Write([][]byte{buf[:n]})
	})
	server.Source().ResumeReads()

	n, err := client.Sink().Write([][]byte{[]byte("hel"), []byte("lo")})
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	assert.Equal(t, "hello", string(readAll(t, client.Source(), 5)))
}

func TestConnection_ShutdownWritesDeliversEOF(t *testing.T) {
	w := newTestWorker(t, 1)
	accepted := make(chan api.StreamConnection, 1)
	srv, err := w.CreateStreamConnectionServer("127.0.0.1:0", nil, nil)
	require.NoError(t, err)
	acceptInto(srv, accepted)

	client := dial(t, w, srv, nil)
	defer client.Close()
	server := <-accepted
	defer server.Close()

	var sinkClosed atomic.Bool
	client.Sink().SetCloseListener(func(api.SinkChannel) { sinkClosed.Store(true) })
	_, err = client.Sink().Write([][]byte{[]byte("bye")})
	require.NoError(t, err)
	require.NoError(t, client.Sink().ShutdownWrites())
	assert.False(t, client.Sink().IsOpen())

	_, err = client.Sink().Write([][]byte{[]byte("x")})
	assert.ErrorIs(t, err, ErrClosed)

	assert.Equal(t, "bye", string(readAll(t, server.Source(), 3)))
	require.Eventually(t, func() bool {
		_, err := server.Source().Read(make([]byte, 8))
		return err == io.EOF
	}, 5*time.Second, time.Millisecond)
	require.Eventually(t, sinkClosed.Load, 5*time.Second, time.Millisecond)
	assert.True(t, client.IsOpen())
}

func TestConnection_CloseFiresListenersOnce(t *testing.T) {
	w := newTestWorker(t, 1)
	accepted := make(chan api.StreamConnection, 1)
	srv, err := w.CreateStreamConnectionServer("127.0.0.1:0", nil, nil)
	require.NoError(t, err)
	acceptInto(srv, accepted)

	client := dial(t, w, srv, nil)
	<-accepted

	var mu sync.Mutex
	var events []string
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}
	client.Source().SetCloseListener(func(api.SourceChannel) { record("source") })
	client.Sink().SetCloseListener(func(api.SinkChannel) { record("sink") })
	client.SetCloseListener(func(api.StreamConnection) { record("conn") })

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
	assert.False(t, client.IsOpen())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 3
	}, 5*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"source", "sink", "conn"}, events)
	mu.Unlock()

	_, err = client.Source().Read(make([]byte, 4))
	assert.Error(t, err)
}

func TestConnection_Options(t *testing.T) {
	w := newTestWorker(t, 1)
	accepted := make(chan api.StreamConnection, 1)
	srv, err := w.CreateStreamConnectionServer("127.0.0.1:0", nil, nil)
	require.NoError(t, err)
	acceptInto(srv, accepted)

	client := dial(t, w, srv, api.NewOptionMap().Set(api.OptSendBuffer, 8192))
	defer client.Close()

	v, err := client.Option(api.OptSendBuffer)
	require.NoError(t, err)
	assert.Equal(t, 8192, v)

	prev, err := client.SetOption(api.OptKeepAlive, false)
	require.NoError(t, err)
	assert.Equal(t, true, prev)

	_, err = client.SetOption(api.OptKeepAlive, "yes")
	assert.ErrorIs(t, err, ErrInvalidOptionValue)
	_, err = client.SetOption(api.OptBacklog, 10)
	assert.ErrorIs(t, err, ErrUnsupportedOption)
	assert.False(t, client.SupportsOption(api.OptBacklog))
}

func TestServer_OptionValidation(t *testing.T) {
	w := newTestWorker(t, 1)
	srv, err := w.CreateStreamConnectionServer("127.0.0.1:0", nil,
		api.NewOptionMap().Set(api.OptBacklog, 4).Set(api.OptTCPNoDelay, true))
	require.NoError(t, err)
	defer srv.Close()

	v, err := srv.Option(api.OptBacklog)
	require.NoError(t, err)
	assert.Equal(t, 4, v)
	v, err = srv.Option(api.OptTCPNoDelay)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = srv.SetOption(api.OptBacklog, 0)
	assert.ErrorIs(t, err, ErrInvalidOptionValue)
	_, err = srv.SetOption(api.OptAutoRead, true)
	assert.ErrorIs(t, err, ErrUnsupportedOption)

	_, err = w.CreateStreamConnectionServer("127.0.0.1:0", nil, api.NewOptionMap().Set(api.OptBacklog, "big"))
	assert.ErrorIs(t, err, ErrInvalidOptionValue)
}

func TestServer_HighWaterPausesAccepts(t *testing.T) {
	w := newTestWorker(t, 1)
	srv, err := w.CreateStreamConnectionServer("127.0.0.1:0", nil,
		api.NewOptionMap().Set(api.OptConnectionHighWater, 1).Set(api.OptConnectionLowWater, 0))
	require.NoError(t, err)
	defer srv.Close()

	c1 := dial(t, w, srv, nil)
	defer c1.Close()
	c2 := dial(t, w, srv, nil)
	defer c2.Close()

	var first api.StreamConnection
	require.Eventually(t, func() bool {
		c, _ := srv.Accept()
		first = c
		return c != nil
	}, 5*time.Second, time.Millisecond)

	assert.Never(t, func() bool {
		c, _ := srv.Accept()
		return c != nil
	}, 100*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		c, _ := srv.Accept()
		if c != nil {
			c.Close()
		}
		return c != nil
	}, 5*time.Second, time.Millisecond)
}

func TestServer_DirectDeliveryRunsOffThread(t *testing.T) {
	w := newTestWorker(t, 1)
	onThread := make(chan bool, 1)
	srv, err := w.CreateStreamConnectionServer("127.0.0.1:0", func(ch api.AcceptingChannel) {
		c, _ := ch.Accept()
		if c != nil {
			onThread <- ch.IoThread().InThread()
			c.Close()
		}
	}, api.NewOptionMap().Set(api.OptDirectAcceptDelivery, true))
	require.NoError(t, err)
	defer srv.Close()
	srv.ResumeAccepts()

	c := dial(t, w, srv, nil)
	defer c.Close()
	select {
	case in := <-onThread:
		assert.False(t, in)
	case <-time.After(5 * time.Second):
		t.Fatal("listener not called")
	}
}

func TestServer_CloseClosesStaged(t *testing.T) {
	w := newTestWorker(t, 1)
	srv, err := w.CreateStreamConnectionServer("127.0.0.1:0", nil, nil)
	require.NoError(t, err)
	c := dial(t, w, srv, nil)
	defer c.Close()

	require.Eventually(t, func() bool {
		return srv.(*Server).acceptable()
	}, 5*time.Second, time.Millisecond)
	require.NoError(t, srv.Close())
	assert.False(t, srv.IsOpen())
	_, err = srv.Accept()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWorker_ShutdownTerminates(t *testing.T) {
	cfg := DefaultWorkerConfig()
	cfg.IoThreads = 2
	w, err := NewWorker(cfg)
	require.NoError(t, err)
	srv, err := w.CreateStreamConnectionServer("127.0.0.1:0", nil, nil)
	require.NoError(t, err)

	w.Shutdown()
	assert.True(t, w.IsShutdown())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.AwaitTermination(ctx))
	assert.True(t, w.IsTerminated())
	assert.False(t, srv.IsOpen())

	f := w.IoThreadAt(0).OpenStreamConnection("127.0.0.1:1", "", nil)
	assert.ErrorIs(t, f.Err(), api.ErrShutdown)
	_, err = w.CreateStreamConnectionServer("127.0.0.1:0", nil, nil)
	assert.ErrorIs(t, err, api.ErrShutdown)
}
