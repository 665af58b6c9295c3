package orders

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/schemaregistry"
	"github.com/devx-demo/orders-clients/pkg/kafka"
	"github.com/devx-demo/orders-clients/pkg/order"
	"github.com/devx-demo/orders-clients/pkg/serde"
	"github.com/stretchr/testify/require"
)

const testTopic = "orders"

func newSerializer(t *testing.T) (*serde.Serializer, schemaregistry.Client) {
	t.Helper()
	client, err := serde.NewClient(schemaregistry.NewConfig("mock://"))
	require.NoError(t, err)
	ser, err := serde.NewSerializer(client, testTopic, order.Schema())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ser.Close() })
	return ser, client
}

func encodedOrder(t *testing.T, ser *serde.Serializer, o order.Order) []byte {
	t.Helper()
	value, err := ser.Serialize(&o)
	require.NoError(t, err)
	return value
}

// lockedBuffer is a bytes.Buffer safe for the producer's event goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := strings.TrimSpace(b.buf.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// fakePublisher delivers every message synchronously with the configured error.
type fakePublisher struct {
	mu         sync.Mutex
	msgs       []kafka.Msg
	queueErr   error
	deliverErr error
}

func (f *fakePublisher) ProduceAsync(ctx context.Context, msg kafka.Msg, fn kafka.DeliveryFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.queueErr != nil {
		return f.queueErr
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	offset := int64(len(f.msgs) - 1)
	f.mu.Unlock()

	fn(kafka.Delivery{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Offset:  offset,
		Latency: time.Millisecond,
		Err:     f.deliverErr,
	})
	return nil
}

func (f *fakePublisher) sent() []kafka.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Msg(nil), f.msgs...)
}

type failingEncoder struct{}

func (failingEncoder) Serialize(any) ([]byte, error) { return nil, errors.New("encode failed") }

