package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/devx-demo/orders-clients/pkg/kafka"
	"github.com/devx-demo/orders-clients/pkg/metrics"
	"github.com/devx-demo/orders-clients/pkg/order"
	"github.com/devx-demo/orders-clients/pkg/scheduler"
	"go.uber.org/zap"
)

// DefaultInterval is the pause between two generated orders.
const DefaultInterval = 100 * time.Millisecond

// Publisher queues a message and reports its delivery through fn.
type Publisher interface {
	ProduceAsync(ctx context.Context, msg kafka.Msg, fn kafka.DeliveryFunc) error
}

// Encoder turns an order into a record value.
type Encoder interface {
	Serialize(v any) ([]byte, error)
}

// Producer generates a random order on every tick and publishes it
// asynchronously. Successful deliveries are announced on out.
type Producer struct {
	pub      Publisher
	enc      Encoder
	topic    string
	interval time.Duration
	out      io.Writer
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics

	now func() time.Time
	rng *rand.Rand
}

func NewProducer(
	pub Publisher,
	enc Encoder,
	topic string,
	interval time.Duration,
	out io.Writer,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) *Producer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Producer{
		pub:      pub,
		enc:      enc,
		topic:    topic,
		interval: interval,
		out:      out,
		log:      log,
		metrics:  m,
		now:      time.Now,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Run publishes orders until ctx is cancelled. It returns an error only when
// an order cannot be encoded or queued.
func (p *Producer) Run(ctx context.Context) error {
	p.log.Infow("producing orders", "topic", p.topic, "interval", p.interval)
	return scheduler.Start(ctx, p.interval, p.produceOne, scheduler.Options{})
}

func (p *Producer) produceOne(ctx context.Context) error {
	o := order.NewRandom(p.now(), p.rng)

	value, err := p.enc.Serialize(&o)
	if err != nil {
		p.metrics.IncSerdeError(metrics.OpSerialize)
		return fmt.Errorf("failed to serialize order %s: %w", o.ID, err)
	}

	err = p.pub.ProduceAsync(ctx, kafka.Msg{
		Topic: p.topic,
		Key:   o.Key(),
		Value: value,
	}, p.onDelivery)
	p.metrics.RecordProduce(p.topic, err)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("failed to queue order %s: %w", o.ID, err)
	}
	return nil
}

// onDelivery runs on the producer's event goroutine.
func (p *Producer) onDelivery(d kafka.Delivery) {
	p.metrics.RecordDelivery(d.Topic, d.Err, d.Latency.Seconds())
	if d.Err != nil {
		p.log.Warnw("order delivery failed",
			"key", string(d.Key),
			"topic", d.Topic,
			"error", d.Err)
		return
	}

	p.log.Debugw("order delivered",
		"key", string(d.Key),
		"partition", d.Partition,
		"offset", d.Offset)
	fmt.Fprintf(p.out, "Order '%s' created successfully!\n", d.Key)
}
