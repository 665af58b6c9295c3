package orders

import (
	"context"
	"sync"
	"time"

	"github.com/devx-demo/orders-clients/pkg/metrics"
	"github.com/devx-demo/orders-clients/pkg/scheduler"
	"go.uber.org/zap"
)

const (
	DefaultMaxBatchSize  = 500
	DefaultFlushInterval = 2 * time.Second

	flushTimeout    = 10 * time.Second
	flushRetries    = 3
	flushRetryDelay = 500 * time.Millisecond
)

// BatchWriter buffers rows in memory and writes them through a Repository
// either when the buffer reaches maxBatchSize or on every flush tick. The
// callback given with a row runs once the row has been written.
type BatchWriter struct {
	repo          Repository
	log           *zap.SugaredLogger
	metrics       *metrics.Metrics
	maxBatchSize  int
	flushInterval time.Duration

	mu      sync.Mutex
	pending []pendingRow
}

type pendingRow struct {
	row      Row
	onStored func()
}

func NewBatchWriter(
	repo Repository,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
	maxBatchSize int,
	flushInterval time.Duration,
) *BatchWriter {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	return &BatchWriter{
		repo:          repo,
		log:           log,
		metrics:       m,
		maxBatchSize:  maxBatchSize,
		flushInterval: flushInterval,
	}
}

// Add buffers row and flushes when the batch is full (thread-safe). onStored
// may be nil. A failed flush is not returned: the row stays buffered and the
// next tick retries it.
func (w *BatchWriter) Add(ctx context.Context, row Row, onStored func()) {
	w.mu.Lock()
	w.pending = append(w.pending, pendingRow{row: row, onStored: onStored})
	full := len(w.pending) >= w.maxBatchSize
	w.mu.Unlock()

	if full {
		_ = w.Flush(ctx) //nolint:errcheck // logged by Flush, rows are requeued
	}
}

// Flush writes everything buffered so far. Rows of a failed write are put
// back in front of the buffer for the next attempt.
func (w *BatchWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	batch := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	rows := make([]Row, len(batch))
	for i, p := range batch {
		rows[i] = p.row
	}

	err := w.repo.WriteOrders(ctx, rows)
	w.metrics.AddOrdersStored(len(rows), err)
	if err != nil {
		w.log.Warnw("failed to write orders to ClickHouse",
			"count", len(rows),
			"error", err)
		w.mu.Lock()
		w.pending = append(batch, w.pending...)
		w.mu.Unlock()
		return err
	}
	w.log.Debugw("flushed orders to ClickHouse", "count", len(rows))

	for _, p := range batch {
		if p.onStored != nil {
			p.onStored()
		}
	}
	return nil
}

// Pending returns the number of buffered rows.
func (w *BatchWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Run flushes on every interval until ctx is cancelled, then performs a
// final flush with a fresh deadline. A tick that keeps failing after
// retries ends Run with that error.
func (w *BatchWriter) Run(ctx context.Context) error {
	err := scheduler.Start(ctx, w.flushInterval, w.Flush, scheduler.Options{
		Timeout:    flushTimeout,
		MaxRetries: flushRetries,
		Backoff:    flushRetryDelay,
	})

	finalCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if ferr := w.Flush(finalCtx); ferr != nil && err == nil {
		err = ferr
	}
	return err
}
