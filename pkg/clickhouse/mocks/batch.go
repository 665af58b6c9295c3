package mocks

import (
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// MockBatch records appended rows. Only the methods used by batch writers are
// mocked.
type MockBatch struct {
	driver.Batch
	mock.Mock

	Appended [][]any
}

func (b *MockBatch) Append(v ...any) error {
	args := b.Called(v...)
	if err := args.Error(0); err != nil {
		return err
	}
	b.Appended = append(b.Appended, v)
	return nil
}

func (b *MockBatch) Send() error {
	return b.Called().Error(0)
}

func (b *MockBatch) Abort() error {
	return b.Called().Error(0)
}
