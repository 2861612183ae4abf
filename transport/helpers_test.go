package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-bridge/api"
	"github.com/momentics/hioload-bridge/core/concurrency"
	"github.com/momentics/hioload-bridge/fake"
	"github.com/momentics/hioload-bridge/pool"
)

const waitFor = 2 * time.Second

func newFakeGroup(t *testing.T, threads int) (*fake.Worker, *EventLoopGroup) {
	t.Helper()
	w := fake.NewWorker(threads)
	t.Cleanup(w.Shutdown)
	return w, NewEventLoopGroup(w)
}

func await(t *testing.T, f api.Future) {
	t.Helper()
	require.True(t, f.AwaitTimeout(waitFor), "future did not complete")
}

func awaitOK(t *testing.T, f api.Future) {
	t.Helper()
	await(t, f)
	require.NoError(t, f.Err())
}

func countingConfig() (Config, *fake.CountingSource) {
	src := fake.NewCountingSource(256)
	cfg := DefaultConfig()
	cfg.Allocator = pool.NewAllocator(src)
	return cfg, src
}

// registeredChild wraps conn as an accepted child and registers it on the
// loop of the connection's thread with a recorder installed.
func registeredChild(t *testing.T, g *EventLoopGroup, conn *fake.Conn, cfg Config) (*WrappingSocketChannel, *fake.Recorder) {
	t.Helper()
	ch, err := newAcceptedChannel(nil, conn, cfg)
	require.NoError(t, err)
	rec := &fake.Recorder{}
	ch.Pipeline().AddLast("rec", rec)
	awaitOK(t, g.Register(ch))
	return ch, rec
}

func newPromise() *concurrency.Promise { return concurrency.NewPromise() }
