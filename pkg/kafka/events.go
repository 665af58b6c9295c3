package kafka

import (
	"context"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/devx-demo/orders-clients/pkg/metrics"
	"go.uber.org/zap"
)

// rebalanceLogger returns a rebalance callback that only logs and records
// the assignment change; librdkafka applies it.
func rebalanceLogger(log *zap.SugaredLogger, m *metrics.Metrics) cKafka.RebalanceCb {
	return func(kc *cKafka.Consumer, event cKafka.Event) error {
		switch ev := event.(type) {
		case cKafka.AssignedPartitions:
			log.Infow("partitions assigned",
				"protocol", kc.GetRebalanceProtocol(),
				"count", len(ev.Partitions),
				"partitions", ev.Partitions,
			)
			m.RecordPartitionAssignment(partitionIDs(ev.Partitions))
		case cKafka.RevokedPartitions:
			log.Infow("partitions revoked",
				"protocol", kc.GetRebalanceProtocol(),
				"count", len(ev.Partitions),
				"partitions", ev.Partitions,
			)
			if kc.AssignmentLost() {
				log.Warn("assignment lost involuntarily, stored offsets may not be committed")
			}
			m.RecordPartitionRevocation(partitionIDs(ev.Partitions))
		default:
			log.Warnw("unexpected rebalance event", "event", event)
		}
		return nil
	}
}

// forwardLogs copies librdkafka log events to the logger until ctx is done
// or done is closed.
func forwardLogs(
	ctx context.Context,
	done <-chan struct{},
	finished chan<- struct{},
	logs chan cKafka.LogEvent,
	log *zap.SugaredLogger,
) {
	defer close(finished)
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping kafka logs printing for consumer")
			return
		case <-done:
			log.Info("stopping kafka logs printing for consumer, done channel closed")
			return
		case l, ok := <-logs:
			if !ok {
				log.Info("kafka logs printing for consumer, event channel closed")
				return
			}
			log.Debugf("consumer level: %d tag: %s message: %s ", l.Level, l.Tag, l.Message)
		}
	}
}

func partitionIDs(tps []cKafka.TopicPartition) []int32 {
	ids := make([]int32, len(tps))
	for i, tp := range tps {
		ids[i] = tp.Partition
	}
	return ids
}

func topicOf(msg *cKafka.Message) string {
	if msg.TopicPartition.Topic == nil {
		return ""
	}
	return *msg.TopicPartition.Topic
}

type timer struct{ start time.Time }

func newTimer() timer { return timer{start: time.Now()} }

func (t timer) seconds() float64 { return time.Since(t.start).Seconds() }
