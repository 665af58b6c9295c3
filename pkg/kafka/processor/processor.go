package processor

import (
	"context"
	"sync/atomic"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Processor handles one record pushed by a listener. A returned error routes
// the record to the dead letter queue when one is configured.
type Processor interface {
	Process(ctx context.Context, msg *cKafka.Message) error
}

// Func adapts a function to the Processor interface.
type Func func(ctx context.Context, msg *cKafka.Message) error

func (f Func) Process(ctx context.Context, msg *cKafka.Message) error {
	return f(ctx, msg)
}

// Ack acknowledges a record whose offset was held back with Defer. Calling it
// more than once is harmless.
type Ack func()

type deferralKey struct{}

type deferral struct {
	ack      Ack
	deferred atomic.Bool
}

// WithDeferral returns a context through which Process may take over the
// acknowledgement of its record, and a func reporting whether it did.
func WithDeferral(ctx context.Context, ack Ack) (context.Context, func() bool) {
	d := &deferral{ack: ack}
	return context.WithValue(ctx, deferralKey{}, d), d.deferred.Load
}

// Defer tells the listener not to store the offset of the record being
// processed when Process returns. The offset is stored once the returned Ack
// is called, e.g. after the record was persisted. Outside a listener the
// returned Ack does nothing.
func Defer(ctx context.Context) Ack {
	d, ok := ctx.Value(deferralKey{}).(*deferral)
	if !ok || d.ack == nil {
		return func() {}
	}
	d.deferred.Store(true)
	return d.ack
}
