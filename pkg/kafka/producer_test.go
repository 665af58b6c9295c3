package kafka

import (
	"context"
	"testing"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/devx-demo/orders-clients/pkg/kafka/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableBroker is a port nothing listens on, so every delivery times out.
const unreachableBroker = "localhost:1"

func newOfflineProducer(t *testing.T, extra cKafka.ConfigMap) *Producer {
	t.Helper()
	cfg := cKafka.ConfigMap{
		"bootstrap.servers": unreachableBroker,
	}
	for k, v := range extra {
		cfg[k] = v
	}
	producer, err := NewProducer(context.Background(), &cfg, testutils.NewTestLogger(t))
	require.NoError(t, err)
	return producer
}

// ============================================================================
// NewProducer Tests
// ============================================================================

func TestNewProducer_ValidConfig(t *testing.T) {
	producer := newOfflineProducer(t, nil)
	require.NotNil(t, producer)
	producer.Close(time.Second)
}

func TestNewProducer_LogsChannelEnabled(t *testing.T) {
	producer := newOfflineProducer(t, cKafka.ConfigMap{"go.logs.channel.enable": true})
	producer.Close(time.Second)

	select {
	case <-producer.logsDone:
	default:
		t.Fatal("logs goroutine should have stopped")
	}
}

func TestNewProducer_InvalidConfig(t *testing.T) {
	cfg := &cKafka.ConfigMap{
		"bootstrap.servers": unreachableBroker,
		"acks":              "sometimes",
	}
	_, err := NewProducer(context.Background(), cfg, testutils.NewTestLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create kafka producer")
}

// ============================================================================
// ProduceAsync Tests
// ============================================================================

func TestProducer_ProduceAsync_ReportsDeliveryFailure(t *testing.T) {
	producer := newOfflineProducer(t, cKafka.ConfigMap{"message.timeout.ms": 200})
	defer producer.Close(time.Second)

	reports := make(chan Delivery, 1)
	err := producer.ProduceAsync(context.Background(), Msg{
		Topic: "orders",
		Key:   []byte("order-1"),
		Value: []byte("value"),
	}, func(d Delivery) { reports <- d })
	require.NoError(t, err, "queueing must succeed while offline")

	select {
	case d := <-reports:
		require.Error(t, d.Err)
		assert.Equal(t, "orders", d.Topic)
		assert.Equal(t, []byte("order-1"), d.Key)
		assert.Positive(t, d.Latency)
	case <-time.After(10 * time.Second):
		t.Fatal("delivery callback was not called")
	}
}

func TestProducer_ProduceAsync_CallbackOnClose(t *testing.T) {
	producer := newOfflineProducer(t, cKafka.ConfigMap{"message.timeout.ms": 200})

	reports := make(chan Delivery, 3)
	for range 3 {
		err := producer.ProduceAsync(context.Background(), Msg{Topic: "orders", Value: []byte("v")},
			func(d Delivery) { reports <- d })
		require.NoError(t, err)
	}

	producer.Close(5 * time.Second)

	for range 3 {
		select {
		case d := <-reports:
			require.Error(t, d.Err)
		case <-time.After(5 * time.Second):
			t.Fatal("missing delivery callback after close")
		}
	}
}

func TestProducer_ProduceAsync_AfterClose(t *testing.T) {
	producer := newOfflineProducer(t, nil)
	producer.Close(time.Second)

	err := producer.ProduceAsync(context.Background(), Msg{Topic: "orders"}, func(Delivery) {})
	require.ErrorIs(t, err, ErrProducerClosed)
}

func TestProducer_ProduceAsync_CanceledContext(t *testing.T) {
	producer := newOfflineProducer(t, nil)
	defer producer.Close(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := producer.ProduceAsync(ctx, Msg{Topic: "orders"}, func(Delivery) {})
	require.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// Produce Tests
// ============================================================================

func TestProducer_Produce_ContextTimeout(t *testing.T) {
	producer := newOfflineProducer(t, nil)
	defer producer.Close(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := producer.Produce(ctx, Msg{Topic: "orders", Value: []byte("v")})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProducer_Produce_DeliveryFailure(t *testing.T) {
	producer := newOfflineProducer(t, cKafka.ConfigMap{"message.timeout.ms": 200})
	defer producer.Close(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := producer.Produce(ctx, Msg{Topic: "orders", Value: []byte("v")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery failed")
}

// ============================================================================
// Close and Errors Tests
// ============================================================================

func TestProducer_Close_Idempotent(t *testing.T) {
	producer := newOfflineProducer(t, nil)
	producer.Close(time.Second)
	producer.Close(time.Second)
}

func TestProducer_Errors_ChannelClosed(t *testing.T) {
	producer := newOfflineProducer(t, nil)
	errCh := producer.Errors()
	require.NotNil(t, errCh)
	assert.Positive(t, cap(errCh))

	producer.Close(time.Second)

	_, ok := <-errCh
	assert.False(t, ok, "error channel should be closed after Close()")
}

// ============================================================================
// Helpers
// ============================================================================

func TestMsg_ToKafka(t *testing.T) {
	m := Msg{
		Topic:   "orders",
		Key:     []byte("k"),
		Value:   []byte("v"),
		Headers: map[string]string{"source": "test"},
	}
	km := m.toKafka()

	require.NotNil(t, km.TopicPartition.Topic)
	assert.Equal(t, "orders", *km.TopicPartition.Topic)
	assert.Equal(t, cKafka.PartitionAny, km.TopicPartition.Partition)
	assert.Equal(t, []byte("k"), km.Key)
	assert.Equal(t, []byte("v"), km.Value)
	assert.Equal(t, []cKafka.Header{{Key: "source", Value: []byte("test")}}, km.Headers)
}

func TestHandleDeliveryEvent(t *testing.T) {
	log := testutils.NewTestLogger(t)
	msg := testutils.NewTestMessage("orders", 0, 7, nil, nil)

	require.NoError(t, handleDeliveryEvent(log, msg, msg))

	failed := testutils.NewTestMessage("orders", 0, 7, nil, nil)
	failed.TopicPartition.Error = cKafka.NewError(cKafka.ErrMsgTimedOut, "timed out", false)
	err := handleDeliveryEvent(log, msg, failed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery failed")

	err = handleDeliveryEvent(log, msg, cKafka.NewError(cKafka.ErrTransport, "x", false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected delivery event")
}

func TestQueueFullErrorRetryDelay(t *testing.T) {
	assert.Greater(t, queueFullErrorRetryDelay, time.Duration(0))
	assert.LessOrEqual(t, queueFullErrorRetryDelay, 1*time.Second)
}
