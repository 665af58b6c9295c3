package orders

import (
	"context"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	chorders "github.com/devx-demo/orders-clients/pkg/data/clickhouse/orders"
	"github.com/devx-demo/orders-clients/pkg/kafka/processor"
	"github.com/devx-demo/orders-clients/pkg/order"
)

// RowWriter buffers order rows for storage and calls onStored once a row has
// been written.
type RowWriter interface {
	Add(ctx context.Context, row chorders.Row, onStored func())
}

// Store is a Sink that records consumed orders with their Kafka coordinates.
// Inside a listener the record's offset is held back until its row has been
// written.
type Store struct {
	w   RowWriter
	now func() time.Time
}

var _ Sink = (*Store)(nil)

func NewStore(w RowWriter) *Store {
	return &Store{w: w, now: time.Now}
}

func (s *Store) Add(ctx context.Context, o order.Order, msg *cKafka.Message) error {
	row := chorders.NewRow(o,
		topicName(msg),
		msg.TopicPartition.Partition,
		int64(msg.TopicPartition.Offset),
		s.now())
	s.w.Add(ctx, row, processor.Defer(ctx))
	return nil
}
