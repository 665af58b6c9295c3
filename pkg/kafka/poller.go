package kafka

import (
	"context"
	"errors"
	"fmt"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/devx-demo/orders-clients/pkg/metrics"
	"go.uber.org/zap"
)

// RecordHandler is called by Poller for every polled record. Returned errors
// are logged and counted but do not stop the loop.
type RecordHandler func(ctx context.Context, msg *cKafka.Message) error

// Poller is a plain poll loop over one topic. Offsets are committed by the
// auto-commit timer as soon as a record has been returned by Poll.
type Poller struct {
	consumer *cKafka.Consumer
	cfg      ConsumerConfig
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
	logsDone chan struct{}
	doneCh   chan struct{}
}

// NewPoller creates a consumer from base layered with cfg. The group id
// defaults to DefaultPollerGroupID.
func NewPoller(
	base *cKafka.ConfigMap,
	cfg ConsumerConfig,
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) (*Poller, error) {
	cfg = cfg.WithDefaults()
	if cfg.GroupID == "" {
		cfg.GroupID = DefaultPollerGroupID
	}

	consumer, err := cKafka.NewConsumer(cfg.ConfigMap(base))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &Poller{
		consumer: consumer,
		cfg:      cfg,
		log:      log,
		metrics:  m,
		logsDone: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Run subscribes and polls until ctx is cancelled or a fatal Kafka error
// occurs. The consumer is closed before Run returns.
func (p *Poller) Run(ctx context.Context, handle RecordHandler) error {
	if handle == nil {
		close(p.logsDone)
		return errors.Join(errors.New("record handler cannot be nil"), p.close())
	}

	if p.cfg.EnableLogs {
		go forwardLogs(ctx, p.doneCh, p.logsDone, p.consumer.Logs(), p.log)
	} else {
		close(p.logsDone)
	}

	if err := p.consumer.Subscribe(p.cfg.Topic, rebalanceLogger(p.log, p.metrics)); err != nil {
		p.close()
		return fmt.Errorf("failed to subscribe to topic %s: %w", p.cfg.Topic, err)
	}
	p.log.Infow("polling", "topic", p.cfg.Topic, "groupId", p.cfg.GroupID)

	var runErr error
	timeoutMs := int(p.cfg.PollTimeout.Milliseconds())
	for runErr == nil {
		select {
		case <-ctx.Done():
			p.log.Info("context done, shutting down poller...")
			return p.close()
		default:
		}

		ev := p.consumer.Poll(timeoutMs)
		if ev == nil {
			continue
		}
		runErr = p.handleEvent(ctx, ev, handle)
	}

	if err := p.close(); err != nil {
		p.log.Errorw("failed to close consumer", "error", err)
	}
	return runErr
}

// handleEvent returns an error only for events that must stop the loop.
func (p *Poller) handleEvent(ctx context.Context, ev cKafka.Event, handle RecordHandler) error {
	switch e := ev.(type) {
	case *cKafka.Message:
		partition := e.TopicPartition.Partition
		p.metrics.RecordMessageReceived(partition)

		timer := newTimer()
		err := handle(ctx, e)
		p.metrics.RecordMessageProcessed(partition, err, timer.seconds())
		if err != nil {
			p.log.Warnw("failed to handle record",
				"topic", topicOf(e),
				"partition", partition,
				"offset", e.TopicPartition.Offset,
				"error", err)
		}
	case cKafka.Error:
		p.metrics.RecordKafkaError(e.IsFatal())
		if e.IsFatal() {
			p.log.Errorw("fatal kafka error", "error", e)
			return fmt.Errorf("fatal kafka error: %w", e)
		}
		p.log.Warnw("kafka error (non-fatal)", "error", e)
	default:
		p.metrics.IncreaseUnknownEventCount()
		p.log.Debugw("ignoring kafka event", "event", e)
	}
	return nil
}

func (p *Poller) close() error {
	close(p.doneCh)
	<-p.logsDone
	if err := p.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close consumer: %w", err)
	}
	p.log.Info("poller shutdown complete")
	return nil
}
