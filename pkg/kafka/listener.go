package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/devx-demo/orders-clients/pkg/kafka/processor"
	"github.com/devx-demo/orders-clients/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Listener is a consumer container that pushes each record to a Processor.
//
// Offsets are stored only after the processor returns (or the record has been
// handed to the DLQ), and the auto-commit timer commits stored offsets. A
// processor that hands records to an asynchronous stage calls processor.Defer
// and the offset is stored once that stage acknowledges the record. Per
// partition only the highest contiguous completed offset is stored, so a
// record is never committed before it has been handled.
type Listener struct {
	processor   processor.Processor
	consumer    *cKafka.Consumer
	dlqProducer *Producer
	storeOffset func(*cKafka.Message) error
	log         *zap.SugaredLogger
	metrics     *metrics.Metrics
	sem         *semaphore.Weighted
	wg          sync.WaitGroup

	partitionCtxs  map[partitionKey]partitionCtx
	partitionMutex sync.RWMutex

	logsDone chan struct{}
	doneCh   chan struct{}
	errCh    chan error
	cfg      ConsumerConfig
}

type partitionKey struct {
	topic     string
	partition int32
}

type partitionCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
	window *offsetWindow
}

// NewListener creates the consumer, and the DLQ producer when cfg.DLQTopic is
// set. The group id defaults to DefaultListenerGroupID.
func NewListener(
	ctx context.Context,
	base *cKafka.ConfigMap,
	cfg ConsumerConfig,
	proc processor.Processor,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) (*Listener, error) {
	if proc == nil {
		return nil, errors.New("processor cannot be nil")
	}
	cfg = cfg.WithDefaults()
	if cfg.GroupID == "" {
		cfg.GroupID = DefaultListenerGroupID
	}

	consumerConfig := cfg.ConfigMap(base)
	(*consumerConfig)["enable.auto.offset.store"] = false

	consumer, err := cKafka.NewConsumer(consumerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	var dlqProducer *Producer
	if cfg.DLQTopic != "" {
		dlqConfig := ProducerConfig{
			Topic:             cfg.DLQTopic,
			EnableIdempotence: true,
			EnableLogs:        cfg.EnableLogs,
		}.ConfigMap(base)
		dlqProducer, err = NewProducer(ctx, dlqConfig, log)
		if err != nil {
			consumer.Close() //nolint:errcheck // already failing
			return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
		}
	}

	l := newListener(cfg, proc, log, m)
	l.consumer = consumer
	l.dlqProducer = dlqProducer
	l.storeOffset = func(msg *cKafka.Message) error {
		_, err := consumer.StoreMessage(msg)
		return err
	}
	return l, nil
}

func newListener(cfg ConsumerConfig, proc processor.Processor, log *zap.SugaredLogger, m *metrics.Metrics) *Listener {
	return &Listener{
		processor:     proc,
		log:           log,
		metrics:       m,
		cfg:           cfg,
		sem:           semaphore.NewWeighted(cfg.Concurrency),
		partitionCtxs: make(map[partitionKey]partitionCtx),
		logsDone:      make(chan struct{}),
		doneCh:        make(chan struct{}),
		errCh:         make(chan error, 1),
	}
}

// Start subscribes and dispatches records until ctx is cancelled or a fatal
// error occurs. In-flight records finish before the consumer is closed, so
// their offsets are part of the final commit.
func (l *Listener) Start(ctx context.Context) error {
	ctxWithCancel, cancel := context.WithCancel(ctx)
	defer cancel()

	if l.cfg.EnableLogs {
		go forwardLogs(ctxWithCancel, l.doneCh, l.logsDone, l.consumer.Logs(), l.log)
	} else {
		close(l.logsDone)
	}

	if err := l.consumer.Subscribe(l.cfg.Topic, l.rebalanceCallback(ctxWithCancel)); err != nil {
		return errors.Join(fmt.Errorf("failed to subscribe to topic %s: %w", l.cfg.Topic, err), l.close())
	}
	l.log.Infow("listening",
		"topic", l.cfg.Topic,
		"groupId", l.cfg.GroupID,
		"concurrency", l.cfg.Concurrency,
		"dlqTopic", l.cfg.DLQTopic)

	var dlqErrors <-chan error
	if l.dlqProducer != nil {
		dlqErrors = l.dlqProducer.Errors()
	}

	var runErr error
	timeoutMs := int(l.cfg.PollTimeout.Milliseconds())
	run := true
	for run {
		select {
		case <-ctx.Done():
			l.log.Info("context done, shutting down listener...")
			run = false
			continue
		case err := <-dlqErrors:
			l.log.Errorw("fatal error from DLQ producer, shutting down listener", "error", err)
			runErr = err
			run = false
			continue
		case err := <-l.errCh:
			l.log.Errorw("error from listener, shutting down", "error", err)
			runErr = err
			run = false
			continue
		default:
			ev := l.consumer.Poll(timeoutMs)
			if ev == nil {
				continue
			}

			switch e := ev.(type) {
			case *cKafka.Message:
				l.metrics.RecordMessageReceived(e.TopicPartition.Partition)
				pctx, window, ok := l.partitionContext(e)
				if !ok {
					l.log.Errorw("partition not found in rebalance context",
						"topic", topicOf(e),
						"partition", e.TopicPartition.Partition)
					continue
				}
				l.dispatch(pctx, window, e)
			case cKafka.Error:
				l.metrics.RecordKafkaError(e.IsFatal())
				if e.IsFatal() {
					l.log.Errorw("fatal kafka error", "error", e)
					runErr = fmt.Errorf("fatal kafka error: %w", e)
					run = false
					continue
				}
				l.log.Warnw("kafka error (non-fatal)", "error", e)
			default:
				l.metrics.IncreaseUnknownEventCount()
				l.log.Debugw("ignoring kafka event", "event", e)
			}
		}
	}

	cancel()
	l.wg.Wait()

	if err := l.close(); err != nil {
		l.log.Errorw("failed to close listener", "error", err)
		runErr = errors.Join(runErr, err)
	}

	l.log.Info("listener shutdown complete")
	return runErr
}

// dispatch acquires a semaphore slot and processes the message in a goroutine.
func (l *Listener) dispatch(ctx context.Context, window *offsetWindow, msg *cKafka.Message) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		// The partition was revoked or the listener is stopping; the record
		// will be redelivered from the last committed offset.
		l.log.Debugw("dropping record, context done",
			"partition", msg.TopicPartition.Partition,
			"offset", msg.TopicPartition.Offset)
		return
	}

	entry := window.track(msg)
	ack := func() { l.acknowledge(window, entry) }

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.sem.Release(1)
		l.handle(ctx, msg, ack)
	}()
}

func (l *Listener) handle(ctx context.Context, msg *cKafka.Message, ack processor.Ack) {
	l.metrics.IncMessagesInFlight()
	defer l.metrics.DecMessagesInFlight()

	timer := newTimer()
	pctx, deferred := processor.WithDeferral(ctx, ack)
	err := l.processor.Process(pctx, msg)
	if err != nil {
		l.log.Warnw("failed to process record",
			"topic", topicOf(msg),
			"partition", msg.TopicPartition.Partition,
			"offset", msg.TopicPartition.Offset,
			"error", err)

		if l.dlqProducer != nil {
			if publishErr := l.publishToDLQ(ctx, msg); publishErr != nil {
				l.metrics.RecordMessageProcessed(msg.TopicPartition.Partition, err, timer.seconds())
				l.log.Errorw("failed to publish to DLQ", "error", publishErr)
				l.reportError(publishErr)
				return
			}
		}
	}
	l.metrics.RecordMessageProcessed(msg.TopicPartition.Partition, err, timer.seconds())

	if err == nil && deferred() {
		return
	}
	ack()
}

// acknowledge completes entry in its partition window and stores the offset
// the window releases, if any.
func (l *Listener) acknowledge(window *offsetWindow, entry *windowEntry) {
	stored, err := window.complete(entry, l.storeOffset)
	if errors.Is(err, errWindowClosed) {
		l.log.Debugw("record acknowledged after its partition was released",
			"partition", entry.msg.TopicPartition.Partition,
			"offset", entry.msg.TopicPartition.Offset)
		return
	}
	if stored == nil && err == nil {
		return
	}

	l.metrics.RecordOffsetStored(err)
	if err != nil {
		l.log.Warnw("failed to store offset",
			"partition", stored.TopicPartition.Partition,
			"offset", stored.TopicPartition.Offset,
			"error", err)
	}
}

// publishToDLQ sends a failed message to the dead letter queue.
func (l *Listener) publishToDLQ(ctx context.Context, msg *cKafka.Message) error {
	dlqMsg := Msg{
		Topic: l.cfg.DLQTopic,
		Key:   msg.Key,
		Value: msg.Value,
		Headers: map[string]string{
			"original-topic":     topicOf(msg),
			"original-partition": fmt.Sprint(msg.TopicPartition.Partition),
			"original-offset":    msg.TopicPartition.Offset.String(),
		},
	}

	timer := newTimer()
	err := l.dlqProducer.Produce(ctx, dlqMsg)
	l.metrics.RecordDLQProduction(err, timer.seconds())
	if err != nil {
		return fmt.Errorf("failed to produce to DLQ: %w", err)
	}

	l.log.Infow("published message to DLQ",
		"originalTopic", topicOf(msg),
		"originalPartition", msg.TopicPartition.Partition,
		"originalOffset", msg.TopicPartition.Offset,
		"dlqTopic", l.cfg.DLQTopic,
	)
	return nil
}

func (l *Listener) reportError(err error) {
	select {
	case l.errCh <- err:
	default:
	}
}

func (l *Listener) partitionContext(msg *cKafka.Message) (context.Context, *offsetWindow, bool) {
	l.partitionMutex.RLock()
	defer l.partitionMutex.RUnlock()
	pc, ok := l.partitionCtxs[partitionKey{topic: topicOf(msg), partition: msg.TopicPartition.Partition}]
	return pc.ctx, pc.window, ok
}

// rebalanceCallback keeps one context per assigned partition so revocation
// cancels the records still being processed for it.
func (l *Listener) rebalanceCallback(ctx context.Context) cKafka.RebalanceCb {
	logRebalance := rebalanceLogger(l.log, l.metrics)
	return func(kc *cKafka.Consumer, event cKafka.Event) error {
		l.trackPartitions(ctx, event)
		return logRebalance(kc, event)
	}
}

func (l *Listener) trackPartitions(ctx context.Context, event cKafka.Event) {
	l.partitionMutex.Lock()
	defer l.partitionMutex.Unlock()

	switch ev := event.(type) {
	case cKafka.AssignedPartitions:
		for _, tp := range ev.Partitions {
			key := partitionKey{topic: *tp.Topic, partition: tp.Partition}
			if old, ok := l.partitionCtxs[key]; ok {
				old.cancel()
				old.window.close()
			}
			pc := partitionCtx{window: newOffsetWindow()}
			pc.ctx, pc.cancel = context.WithCancel(ctx)
			l.partitionCtxs[key] = pc
		}
	case cKafka.RevokedPartitions:
		for _, tp := range ev.Partitions {
			key := partitionKey{topic: *tp.Topic, partition: tp.Partition}
			if pc, ok := l.partitionCtxs[key]; ok {
				pc.cancel()
				pc.window.close()
				delete(l.partitionCtxs, key)
			}
		}
	}
}

// releasePartitions closes every partition window so that acknowledgements
// arriving after shutdown no longer touch the consumer.
func (l *Listener) releasePartitions() {
	l.partitionMutex.Lock()
	defer l.partitionMutex.Unlock()
	for key, pc := range l.partitionCtxs {
		pc.cancel()
		pc.window.close()
		delete(l.partitionCtxs, key)
	}
}

// close shuts down the consumer and DLQ producer.
func (l *Listener) close() error {
	close(l.doneCh)
	l.releasePartitions()
	<-l.logsDone
	if l.dlqProducer != nil {
		l.dlqProducer.Close(*l.cfg.FlushTimeout)
	}
	if err := l.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close consumer: %w", err)
	}
	return nil
}
