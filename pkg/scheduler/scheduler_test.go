package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_RunsAndCancels(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Start(ctx, 5*time.Millisecond, func(context.Context) error {
			if calls.Add(1) == 3 {
				cancel()
			}
			return nil
		}, Options{})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for scheduler to exit")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestStart_ErrorPropagatesAfterRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := Start(ctx, 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("write failed")
	}, Options{MaxRetries: 3, Backoff: time.Millisecond})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Contains(t, err.Error(), "write failed")
	assert.Equal(t, int32(4), calls.Load())
}

func TestStart_RetrySucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := Start(ctx, 5*time.Millisecond, func(context.Context) error {
		n := calls.Add(1)
		if n == 1 {
			return errors.New("transient")
		}
		cancel()
		return nil
	}, Options{MaxRetries: 1})

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestStart_AttemptTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := Start(ctx, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, Options{Timeout: 10 * time.Millisecond})

	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStart_CancelDuringTaskIsClean(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	err := Start(ctx, 5*time.Millisecond, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}, Options{MaxRetries: 5, Backoff: time.Second})

	require.NoError(t, err)
}

func TestStart_ImmediateCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Start(ctx, time.Second, func(context.Context) error {
		t.Error("task must not run")
		return nil
	}, Options{})
	assert.NoError(t, err)
}

func TestStart_InvalidInterval(t *testing.T) {
	t.Parallel()

	err := Start(context.Background(), 0, func(context.Context) error { return nil }, Options{})
	require.ErrorIs(t, err, ErrInvalidInterval)
}
