package orders

import (
	"time"

	"github.com/devx-demo/orders-clients/pkg/order"
)

// Row is one consumed order together with where it was read from.
type Row struct {
	ID         string
	OrderTime  time.Time
	Amount     float64
	Topic      string
	Partition  int32
	Offset     int64
	IngestedAt time.Time
}

// NewRow builds a Row from a decoded order and its record coordinates.
func NewRow(o order.Order, topic string, partition int32, offset int64, now time.Time) Row {
	return Row{
		ID:         o.ID,
		OrderTime:  o.Time().UTC(),
		Amount:     o.Amount,
		Topic:      topic,
		Partition:  partition,
		Offset:     offset,
		IngestedAt: now.UTC(),
	}
}

func (r Row) values() []any {
	return []any{r.ID, r.OrderTime, r.Amount, r.Topic, r.Partition, r.Offset, r.IngestedAt}
}
