package mocks

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// MockConn is a mock implementation of driver.Conn for testing. Methods the
// order store never calls fall through to the nil embedded interface.
type MockConn struct {
	driver.Conn
	mock.Mock
}

func (m *MockConn) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	callArgs := []any{ctx, query}
	callArgs = append(callArgs, args...)
	argsResult := m.Called(callArgs...)
	if argsResult.Get(0) == nil {
		return nil
	}
	return argsResult.Get(0).(driver.Row)
}

func (m *MockConn) Exec(ctx context.Context, query string, args ...any) error {
	callArgs := []any{ctx, query}
	callArgs = append(callArgs, args...)
	argsResult := m.Called(callArgs...)
	return argsResult.Error(0)
}

func (m *MockConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	callArgs := []any{ctx, query}
	for _, opt := range opts {
		callArgs = append(callArgs, opt)
	}
	argsResult := m.Called(callArgs...)
	if argsResult.Get(0) == nil {
		return nil, argsResult.Error(1)
	}
	return argsResult.Get(0).(driver.Batch), argsResult.Error(1)
}

func (m *MockConn) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}
