package orders

import (
	"context"
	"fmt"
	"io"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/devx-demo/orders-clients/pkg/kafka/processor"
	"github.com/devx-demo/orders-clients/pkg/metrics"
	"github.com/devx-demo/orders-clients/pkg/order"
)

// Decoder decodes a framed Avro value into v.
type Decoder interface {
	DeserializeInto(topic string, payload []byte, v any) error
}

// Sink receives every decoded order. Implementations must be safe for
// concurrent use when the listener runs with concurrency > 1.
type Sink interface {
	Add(ctx context.Context, o order.Order, msg *cKafka.Message) error
}

// OrderProcessor is the listener's default processor: it decodes the record
// into an Order, prints it, and hands it to an optional Sink.
type OrderProcessor struct {
	dec     Decoder
	out     *syncWriter
	sink    Sink
	metrics *metrics.Metrics
}

var _ processor.Processor = (*OrderProcessor)(nil)

// NewOrderProcessor builds the processor. sink may be nil.
func NewOrderProcessor(dec Decoder, out io.Writer, sink Sink, m *metrics.Metrics) *OrderProcessor {
	return &OrderProcessor{
		dec:     dec,
		out:     newSyncWriter(out),
		sink:    sink,
		metrics: m,
	}
}

func (p *OrderProcessor) Process(ctx context.Context, msg *cKafka.Message) error {
	var o order.Order
	if err := p.dec.DeserializeInto(topicName(msg), msg.Value, &o); err != nil {
		p.metrics.IncSerdeError(metrics.OpDeserialize)
		return fmt.Errorf("failed to decode order: %w", err)
	}
	if err := o.Validate(); err != nil {
		return err
	}
	if key := string(msg.Key); key != "" && key != o.ID {
		return fmt.Errorf("order id %q does not match record key %q", o.ID, key)
	}

	if err := p.out.println(o.String()); err != nil {
		return err
	}

	if p.sink != nil {
		if err := p.sink.Add(ctx, o, msg); err != nil {
			return fmt.Errorf("failed to store order %s: %w", o.ID, err)
		}
	}
	return nil
}
