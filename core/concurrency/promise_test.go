package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-bridge/api"
)

func TestPromise_SuccessOnce(t *testing.T) {
	p := NewPromise()
	var calls []any
	p.AddListener(func(f api.Future) { calls = append(calls, f.Value()) })

	require.NoError(t, p.SetSuccess(42))
	assert.ErrorIs(t, p.SetSuccess(43), api.ErrAlreadyCompleted)
	assert.False(t, p.TryFailure(errors.New("late")))

	assert.True(t, p.IsDone())
	assert.True(t, p.IsSuccess())
	assert.Equal(t, 42, p.Value())
	assert.Equal(t, []any{42}, calls)

	// listener added after completion runs immediately
	p.AddListener(func(f api.Future) { calls = append(calls, "late") })
	assert.Equal(t, []any{42, "late"}, calls)
}

func TestPromise_Failure(t *testing.T) {
	cause := errors.New("boom")
	p := Failed(cause)
	assert.True(t, p.IsDone())
	assert.False(t, p.IsSuccess())
	assert.ErrorIs(t, p.Err(), cause)
}

func TestPromise_CancelAndUncancellable(t *testing.T) {
	p := NewPromise()
	assert.True(t, p.IsCancellable())
	require.True(t, p.Cancel())
	assert.True(t, p.IsCancelled())
	assert.ErrorIs(t, p.Err(), api.ErrCancelled)
	assert.False(t, p.SetUncancellable())

	q := NewPromise()
	require.True(t, q.SetUncancellable())
	assert.False(t, q.Cancel())
	assert.False(t, q.IsCancellable())
	assert.True(t, q.TrySuccess(nil))
}

func TestPromise_Await(t *testing.T) {
	p := NewPromise()
	assert.False(t, p.AwaitTimeout(10*time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		p.TrySuccess("ok")
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Await(ctx))
	assert.True(t, p.AwaitTimeout(0))

	never := NewPromise()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel2()
	assert.ErrorIs(t, never.Await(ctx2), context.DeadlineExceeded)
}

func TestPromise_ListenerPanicIsContained(t *testing.T) {
	p := NewPromise()
	var second bool
	p.AddListener(func(api.Future) { panic("listener") })
	p.AddListener(func(api.Future) { second = true })
	assert.True(t, p.TrySuccess(nil))
	assert.True(t, second)
}
