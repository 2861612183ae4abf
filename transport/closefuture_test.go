package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/fake"
)

func TestShutdownFuture_CompletesAfterBothHalves(t *testing.T) {
	in, out := concurrency.NewPromise(), concurrency.NewPromise()
	f := NewShutdownFuture(in, out)

	var fired atomic.Int32
	f.AddListener(func(r api.Future) {
		assert.Same(t, f, r)
		fired.Add(1)
	})

	in.TrySuccess(nil)
	assert.False(t, f.IsDone())
	assert.False(t, f.AwaitTimeout(10*time.Millisecond))
	assert.Zero(t, fired.Load())

	out.TrySuccess(nil)
	assert.True(t, f.IsDone())
	assert.True(t, f.IsSuccess())
	assert.NoError(t, f.Err())
	assert.Nil(t, f.Value())
	assert.EqualValues(t, 1, fired.Load())
	assert.True(t, f.AwaitTimeout(0))
	assert.NoError(t, f.Await(context.Background()))

	select {
	case <-f.Done():
	case <-time.After(waitFor):
		t.Fatal("done channel not closed")
	}
}

func TestShutdownFuture_ReportsInputFailureFirst(t *testing.T) {
	inErr, outErr := errors.New("input"), errors.New("output")
	in, out := concurrency.NewPromise(), concurrency.NewPromise()
	f := NewShutdownFuture(in, out)

	out.TryFailure(outErr)
	assert.ErrorIs(t, f.Err(), outErr)
	in.TryFailure(inErr)
	assert.ErrorIs(t, f.Err(), inErr)
	assert.True(t, f.IsDone())
	assert.False(t, f.IsSuccess())
}

func TestShutdownFuture_CancelNeedsBothHalves(t *testing.T) {
	f := NewShutdownFuture(concurrency.NewPromise(), concurrency.NewPromise())
	assert.True(t, f.IsCancellable())
	assert.True(t, f.Cancel())
	assert.True(t, f.IsCancelled())

	half := newHalfCloseFuture()
	g := NewShutdownFuture(concurrency.NewPromise(), half)
	assert.False(t, g.IsCancellable())
	assert.False(t, g.Cancel())
	assert.False(t, g.IsCancelled())
}

func TestShutdownFuture_AwaitHonoursContext(t *testing.T) {
	f := NewShutdownFuture(concurrency.NewPromise(), concurrency.NewPromise())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Await(ctx), context.DeadlineExceeded)
}

func TestHalfClose_LinkMirrorsOutcome(t *testing.T) {
	ok := newHalfCloseFuture()
	p := concurrency.NewPromise()
	assert.Same(t, p, ok.link(p))
	assert.Same(t, ok, ok.link(nil))
	ok.closed()
	awaitOK(t, p)

	bad := newHalfCloseFuture()
	q := concurrency.NewPromise()
	bad.link(q)
	boom := errors.New("shutdown failed")
	bad.failed(boom)
	await(t, q)
	assert.ErrorIs(t, q.Err(), boom)
	assert.False(t, bad.Cancel())
}

func TestWrapping_HalfShutdownIsMemoized(t *testing.T) {
	w, g := newFakeGroup(t, 1)
	conn := fake.NewConn(w.Thread(0))
	ch, _ := registeredChild(t, g, conn, DefaultConfig())

	in1 := ch.ShutdownInput()
	in2 := ch.ShutdownInput()
	assert.Same(t, in1, in2)
	awaitOK(t, in1)
	assert.True(t, ch.IsInputShutdown())
	assert.False(t, ch.IsShutdown())

	p := concurrency.NewPromise()
	out := ch.ShutdownOutputWith(p)
	assert.Same(t, p, out)
	awaitOK(t, p)
	assert.True(t, ch.IsOutputShutdown())
	assert.True(t, ch.IsShutdown())

	sf := ch.Shutdown()
	awaitOK(t, sf)
	assert.True(t, sf.IsSuccess())
	assert.Same(t, in1, ch.ShutdownInputWith(nil))
}

func TestWrapping_ShutdownBothHalves(t *testing.T) {
	w, g := newFakeGroup(t, 1)
	conn := fake.NewConn(w.Thread(0))
	ch, _ := registeredChild(t, g, conn, DefaultConfig())

	sf := ch.Shutdown()
	require.True(t, sf.AwaitTimeout(waitFor))
	assert.True(t, sf.IsSuccess())
	assert.True(t, ch.IsShutdown())
}

func TestWrapping_RejectsConnectAndBind(t *testing.T) {
	w, _ := newFakeGroup(t, 1)
	ch, err := newWrapping(nil, fake.NewConn(w.Thread(0)), DefaultConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, ch.Connect("10.0.0.1:80", "").Err(), api.ErrWrappedChannel)
	assert.ErrorIs(t, ch.Bind("127.0.0.1:0").Err(), api.ErrWrappedChannel)
}

func TestWrap_StandaloneConnection(t *testing.T) {
	w := fake.NewWorker(1)
	t.Cleanup(w.Shutdown)
	conn := fake.NewConn(w.Thread(0))

	ch, f := Wrap(conn, DefaultConfig())
	rec := &fake.Recorder{}
	ch.Pipeline().AddLast("rec", rec)
	awaitOK(t, f)

	assert.Same(t, w.Thread(0), ch.EventLoop().(*EventLoop).IoThread())
	assert.Same(t, ch.EventLoop(), ch.EventLoop().Parent().Next())
	assert.Nil(t, ch.Parent())

	conn.Src().Feed([]byte("adopted"))
	require.Eventually(t, func() bool { return string(rec.Data()) == "adopted" }, waitFor, time.Millisecond)
}

func TestAcceptedChannel_NoDelayFailure(t *testing.T) {
	w := fake.NewWorker(1)
	t.Cleanup(w.Shutdown)
	conn := fake.NewConn(w.Thread(0))
	conn.OptionErr = errors.New("rejected")

	_, err := newAcceptedChannel(nil, conn, DefaultConfig())
	var ce *ChannelError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, api.OptTCPNoDelay, ce.Option)
}
