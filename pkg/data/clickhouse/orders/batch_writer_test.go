package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockRepository struct {
	mock.Mock

	mu      sync.Mutex
	written []Row
}

func (m *mockRepository) CreateTableIfNotExists(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockRepository) WriteOrders(ctx context.Context, rows []Row) error {
	err := m.Called(ctx, rows).Error(0)
	if err == nil {
		m.mu.Lock()
		m.written = append(m.written, rows...)
		m.mu.Unlock()
	}
	return err
}

func (m *mockRepository) CountOrders(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockRepository) writtenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.written)
}

func TestBatchWriter_FlushesWhenFull(t *testing.T) {
	repo := &mockRepository{}
	repo.On("WriteOrders", mock.Anything, mock.Anything).Return(nil).Once()
	w := NewBatchWriter(repo, zaptest.NewLogger(t).Sugar(), nil, 3, time.Hour)

	for _, row := range testRows(t, 3) {
		w.Add(context.Background(), row, nil)
	}

	assert.Equal(t, 3, repo.writtenCount())
	assert.Zero(t, w.Pending())
	repo.AssertExpectations(t)
}

func TestBatchWriter_FailedFlushKeepsRows(t *testing.T) {
	repo := &mockRepository{}
	repo.On("WriteOrders", mock.Anything, mock.Anything).Return(errors.New("down")).Once()
	repo.On("WriteOrders", mock.Anything, mock.Anything).Return(nil).Once()
	w := NewBatchWriter(repo, zaptest.NewLogger(t).Sugar(), nil, 10, time.Hour)

	rows := testRows(t, 2)
	w.Add(context.Background(), rows[0], nil)
	require.Error(t, w.Flush(context.Background()))
	assert.Equal(t, 1, w.Pending())

	w.Add(context.Background(), rows[1], nil)
	require.NoError(t, w.Flush(context.Background()))
	assert.Zero(t, w.Pending())

	repo.mu.Lock()
	defer repo.mu.Unlock()
	require.Len(t, repo.written, 2)
	assert.Equal(t, rows[0].ID, repo.written[0].ID, "requeued rows keep their order")
}

func TestBatchWriter_FlushEmptyIsNoop(t *testing.T) {
	repo := &mockRepository{}
	w := NewBatchWriter(repo, zaptest.NewLogger(t).Sugar(), nil, 0, 0)

	require.NoError(t, w.Flush(context.Background()))
	repo.AssertNotCalled(t, "WriteOrders", mock.Anything, mock.Anything)
	assert.Equal(t, DefaultMaxBatchSize, w.maxBatchSize)
	assert.Equal(t, DefaultFlushInterval, w.flushInterval)
}

func TestBatchWriter_RunFlushesOnTickAndOnStop(t *testing.T) {
	repo := &mockRepository{}
	repo.On("WriteOrders", mock.Anything, mock.Anything).Return(nil)
	w := NewBatchWriter(repo, zaptest.NewLogger(t).Sugar(), nil, 100, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	rows := testRows(t, 2)
	w.Add(ctx, rows[0], nil)
	require.Eventually(t, func() bool { return repo.writtenCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	w.Add(ctx, rows[1], nil)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("batch writer did not stop")
	}
	assert.Equal(t, 2, repo.writtenCount())
}

func TestBatchWriter_RunStopsOnPersistentFailure(t *testing.T) {
	repo := &mockRepository{}
	repo.On("WriteOrders", mock.Anything, mock.Anything).Return(errors.New("down"))
	w := NewBatchWriter(repo, zaptest.NewLogger(t).Sugar(), nil, 100, 5*time.Millisecond)

	w.Add(context.Background(), testRows(t, 1)[0], nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := w.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
}

func TestBatchWriter_OnStoredRunsAfterWrite(t *testing.T) {
	repo := &mockRepository{}
	repo.On("WriteOrders", mock.Anything, mock.Anything).Return(errors.New("clickhouse down")).Once()
	repo.On("WriteOrders", mock.Anything, mock.Anything).Return(nil).Once()
	w := NewBatchWriter(repo, zaptest.NewLogger(t).Sugar(), nil, 10, time.Hour)

	var stored []string
	for _, row := range testRows(t, 2) {
		id := row.ID
		w.Add(context.Background(), row, func() { stored = append(stored, id) })
	}

	require.Error(t, w.Flush(context.Background()))
	assert.Empty(t, stored, "rows that were not written must not be acknowledged")
	assert.Equal(t, 2, w.Pending())

	require.NoError(t, w.Flush(context.Background()))
	assert.Len(t, stored, 2)
	repo.AssertExpectations(t)
}

func TestBatchWriter_FullBatchFlushFailureKeepsRow(t *testing.T) {
	repo := &mockRepository{}
	repo.On("WriteOrders", mock.Anything, mock.Anything).Return(errors.New("clickhouse down"))
	w := NewBatchWriter(repo, zaptest.NewLogger(t).Sugar(), nil, 1, time.Hour)

	acked := false
	w.Add(context.Background(), testRows(t, 1)[0], func() { acked = true })

	assert.False(t, acked)
	assert.Equal(t, 1, w.Pending())
}
