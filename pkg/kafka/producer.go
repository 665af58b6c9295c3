package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

type Msg struct {
	Topic   string
	Value   []byte
	Key     []byte
	Headers map[string]string
}

// Delivery is the outcome of an asynchronously produced message.
type Delivery struct {
	Topic     string
	Key       []byte
	Partition int32
	Offset    int64
	Latency   time.Duration
	Err       error
}

// DeliveryFunc receives the delivery report of a ProduceAsync call. It runs
// on the producer's event goroutine and must not block.
type DeliveryFunc func(Delivery)

type pendingDelivery struct {
	fn      DeliveryFunc
	started time.Time
}

var ErrProducerClosed = errors.New("producer closed")

// Producer wraps a librdkafka producer.
//
// Produce blocks until a delivery confirmation is received from Kafka.
// ProduceAsync returns once the message is queued and reports the outcome
// through a callback. A background goroutine drains producer events and runs
// those callbacks; another optionally forwards librdkafka logs.
//
// Close MUST be called at least once to flush in-flight messages and stop the
// background goroutines.
type Producer struct {
	producer   *kafka.Producer
	log        *zap.SugaredLogger
	errCh      chan error
	eventsDone chan struct{}
	logsDone   chan struct{}
	closedCh   chan struct{}
	once       sync.Once
}

const queueFullErrorRetryDelay = time.Second

// NewProducer creates a Kafka producer.
//
// The provided context bounds the log forwarding goroutine. Delivery
// callbacks keep running until Close returns.
func NewProducer(ctx context.Context, conf *kafka.ConfigMap, log *zap.SugaredLogger) (*Producer, error) {
	logsChEnabled, err := conf.Get("go.logs.channel.enable", false)
	if err != nil {
		return nil, fmt.Errorf("failed to get go.logs.channel.enable: %w", err)
	}

	p, err := kafka.NewProducer(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	kq := Producer{
		producer:   p,
		log:        log,
		eventsDone: make(chan struct{}),
		logsDone:   make(chan struct{}),
		errCh:      make(chan error, 1),
		closedCh:   make(chan struct{}),
	}

	if logsChEnabled.(bool) {
		go kq.printKafkaLogs(ctx)
	} else {
		close(kq.logsDone)
	}

	go kq.monitorProducerEvents()

	return &kq, nil
}

// Produce synchronously produces a message to Kafka.
//
// Produce blocks until either a delivery receipt is received from Kafka
// or the provided context is canceled. If the producer queue is full,
// the message is retried with a 1 second delay.
//
// If the context is canceled before delivery confirmation, Produce returns
// ctx.Err(). The message MAY still be delivered after Produce returns.
func (q *Producer) Produce(ctx context.Context, msg Msg) error {
	deliveryCh := make(chan kafka.Event, 1)

	kMsg := msg.toKafka()
	if err := q.produceWithRetry(ctx, kMsg, deliveryCh); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()

	case e := <-deliveryCh:
		return handleDeliveryEvent(q.log, kMsg, e)
	}
}

// ProduceAsync queues msg and returns without waiting for the broker.
//
// An error is returned only when the message cannot be queued. Otherwise fn
// is called exactly once with the delivery report, unless the producer is
// closed before the report arrives and the flush times out.
func (q *Producer) ProduceAsync(ctx context.Context, msg Msg, fn DeliveryFunc) error {
	select {
	case <-q.closedCh:
		return ErrProducerClosed
	default:
	}

	kMsg := msg.toKafka()
	kMsg.Opaque = &pendingDelivery{fn: fn, started: time.Now()}

	// A nil delivery channel routes the report to Events().
	return q.produceWithRetry(ctx, kMsg, nil)
}

// Close flushes pending messages, stops background goroutines and releases
// the client.
//
// If the timeout is reached, Close aborts the flush and closes the producer.
// Callers should be aware that reaching the timeout may result in message loss.
//
// Close must be called at least once. Calling Close multiple times does nothing.
func (q *Producer) Close(timeout time.Duration) {
	q.once.Do(func() {
		q.log.Info("closing kafka producer")
		defer close(q.errCh)

		pending := q.producer.Flush(int(timeout.Milliseconds()))
		if pending > 0 {
			q.log.Warnf("flush incomplete, messages will be lost. pending: %d", pending)
		}

		close(q.closedCh)
		<-q.eventsDone
		<-q.logsDone

		// Reports queued after the monitor stopped still owe their callbacks.
		q.drainEvents()

		q.producer.Close()
		q.log.Info("kafka producer closed")
	})
}

// Errors returns a channel that receives at most one fatal error.
// The channel is closed when the producer shuts down.
// Non-fatal Kafka errors are logged and ignored.
//
// After receiving an error, the producer is no longer usable.
// Call Close() and create a new producer to recover.
func (q *Producer) Errors() <-chan error {
	return q.errCh
}

func (q *Producer) printKafkaLogs(ctx context.Context) {
	defer close(q.logsDone)
	for {
		select {
		case <-ctx.Done():
			q.log.Info("stopping kafka logs printing")
			return
		case <-q.closedCh:
			q.log.Info("stopping kafka logs printing, done channel closed")
			return
		case log, ok := <-q.producer.Logs():
			if !ok {
				q.log.Info("kafka logs printing, event channel closed")
				return
			}
			q.log.Debugf("level: %d tag: %s message: %s ", log.Level, log.Tag, log.Message)
		}
	}
}

// produceWithRetry produces a message to Kafka, retrying while the local
// queue is full. Every other enqueue error is returned.
func (q *Producer) produceWithRetry(
	ctx context.Context,
	msg *kafka.Message,
	deliveryCh chan kafka.Event,
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := q.producer.Produce(msg, deliveryCh)
		if err == nil {
			return nil
		}

		var kafkaErr kafka.Error
		if !errors.As(err, &kafkaErr) {
			return fmt.Errorf("failed to produce: %w", err)
		}

		switch kafkaErr.Code() {
		case kafka.ErrQueueFull:
			q.log.Warnf("producer queue full, retrying in %s", queueFullErrorRetryDelay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(queueFullErrorRetryDelay):
			}
			continue
		case kafka.ErrBrokerNotAvailable:
			return fmt.Errorf("broker not available: %w", err)
		case kafka.ErrInvalidMsgSize, kafka.ErrMsgSizeTooLarge:
			return fmt.Errorf("invalid message size: %w", err)
		case kafka.ErrInvalidMsg:
			return fmt.Errorf("invalid message: %w", err)
		case kafka.ErrUnknownTopicOrPart:
			return fmt.Errorf("unknown topic or partition: %w", err)
		case kafka.ErrAuthentication:
			return fmt.Errorf("authentication error: %w", err)
		default:
			return fmt.Errorf("failed to produce: %w", err)
		}
	}
}

func (q *Producer) monitorProducerEvents() {
	defer close(q.eventsDone)
	for {
		select {
		case <-q.closedCh:
			q.log.Info("stopping kafka producer events monitoring, done channel closed")
			return
		case ev, ok := <-q.producer.Events():
			if !ok {
				q.reportFatal(errors.New("kafka producer events monitoring, event channel closed"))
				return
			}
			if err := q.handleEvent(ev); err != nil {
				q.reportFatal(err)
				return
			}
		}
	}
}

func (q *Producer) drainEvents() {
	for {
		select {
		case ev, ok := <-q.producer.Events():
			if !ok {
				return
			}
			if err := q.handleEvent(ev); err != nil {
				q.log.Warnw("fatal kafka error while draining producer events", "error", err)
			}
		default:
			return
		}
	}
}

// handleEvent processes one producer event and returns an error only for
// fatal conditions.
func (q *Producer) handleEvent(ev kafka.Event) error {
	switch e := ev.(type) {
	case *kafka.Message:
		if pd, ok := e.Opaque.(*pendingDelivery); ok {
			pd.fn(toDelivery(e, pd.started))
			return nil
		}
		if e.TopicPartition.Error != nil {
			q.log.Errorf("failed to deliver message: %v", e.TopicPartition)
		} else {
			q.log.Debugf("delivered record to topic %s partition [%d] @ offset %v",
				*e.TopicPartition.Topic, e.TopicPartition.Partition, e.TopicPartition.Offset)
		}
	case kafka.Stats:
		q.log.Infof("kafka stats event received %s", e.String())
	case kafka.Error:
		if e.IsFatal() {
			return fmt.Errorf("fatal kafka error: %#x, %w", e.Code(), e)
		}
		// librdkafka keeps reconnecting after ErrAllBrokersDown; queued
		// messages fail through their delivery reports once they time out.
		q.log.Warnf("ignoring kafka error: %#x, %v", e.Code(), e)
	default:
		q.log.Warnf("Unknown event: %+v", e)
	}
	return nil
}

func (q *Producer) reportFatal(err error) {
	select {
	case q.errCh <- err:
	default:
		q.log.Warnf("error channel is full, should not happen: %v", err)
	}
}

func (m Msg) toKafka() *kafka.Message {
	topic := m.Topic
	kMsg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Value: m.Value,
		Key:   m.Key,
	}
	for k, v := range m.Headers {
		kMsg.Headers = append(kMsg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kMsg
}

func toDelivery(m *kafka.Message, started time.Time) Delivery {
	d := Delivery{
		Partition: m.TopicPartition.Partition,
		Offset:    int64(m.TopicPartition.Offset),
		Key:       m.Key,
		Latency:   time.Since(started),
		Err:       m.TopicPartition.Error,
	}
	if m.TopicPartition.Topic != nil {
		d.Topic = *m.TopicPartition.Topic
	}
	return d
}

func handleDeliveryEvent(log *zap.SugaredLogger, msg *kafka.Message, ev kafka.Event) error {
	e, ok := ev.(*kafka.Message)
	if !ok {
		return fmt.Errorf("unexpected delivery event: %T", ev)
	}

	if err := e.TopicPartition.Error; err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}

	log.Debugf(
		"delivered to topic [%s] partition [%d] at offset [%d]",
		*msg.TopicPartition.Topic,
		e.TopicPartition.Partition,
		e.TopicPartition.Offset,
	)
	return nil
}
