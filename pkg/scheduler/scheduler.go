package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Task is one unit of scheduled work.
type Task func(ctx context.Context) error

// Options tunes how a failing Task is retried within a single tick.
type Options struct {
	// Timeout bounds each attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries int
	// Backoff is the pause between attempts.
	Backoff time.Duration
}

// ErrInvalidInterval is returned by Start for a non-positive interval.
var ErrInvalidInterval = errors.New("scheduler interval must be positive")

// Start runs task every interval until ctx is cancelled. A tick whose task
// still fails after opts.MaxRetries retries stops the schedule and the last
// error is returned. Cancellation is not an error.
func Start(ctx context.Context, interval time.Duration, task Task, opts Options) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := runWithRetry(ctx, task, opts); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

func runWithRetry(ctx context.Context, task Task, opts Options) error {
	var err error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		err = runOnce(ctx, task, opts.Timeout)
		if err == nil {
			return nil
		}
		if attempt == opts.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Backoff):
		}
	}
	return fmt.Errorf("scheduled task failed after %d attempts: %w", opts.MaxRetries+1, err)
}

func runOnce(ctx context.Context, task Task, timeout time.Duration) error {
	if timeout <= 0 {
		return task(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return task(ctx)
}
