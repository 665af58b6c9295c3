//go:build integration

package kafka

import (
	"context"
	"testing"
	"time"

	cKafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/devx-demo/orders-clients/pkg/kafka/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func createAdminClient(t *testing.T, brokers string) *cKafka.AdminClient {
	admin, err := NewAdminClient(&cKafka.ConfigMap{"bootstrap.servers": brokers})
	require.NoError(t, err)
	t.Cleanup(admin.Close)
	return admin
}

func topicPartitions(t *testing.T, admin *cKafka.AdminClient, name string) int {
	t.Helper()
	md, err := admin.GetMetadata(&name, false, 5000)
	require.NoError(t, err)
	return len(md.Topics[name].Partitions)
}

func TestEnsureTopic_Integration(t *testing.T) {
	kc := testutils.StartKafka(t)
	ctx := context.Background()
	log := zaptest.NewLogger(t).Sugar()
	admin := createAdminClient(t, kc.Brokers)

	t.Run("creates new topic", func(t *testing.T) {
		config := TopicConfig{Name: "orders-ensure-new", NumPartitions: 4, ReplicationFactor: 1}

		outcome, err := EnsureTopic(ctx, admin, config, log)
		require.NoError(t, err)
		assert.Equal(t, TopicCreated, outcome)

		time.Sleep(500 * time.Millisecond)
		assert.Equal(t, 4, topicPartitions(t, admin, config.Name))
	})

	t.Run("is idempotent", func(t *testing.T) {
		config := TopicConfig{Name: "orders-ensure-twice", NumPartitions: 2, ReplicationFactor: 1}

		_, err := EnsureTopic(ctx, admin, config, log)
		require.NoError(t, err)
		time.Sleep(500 * time.Millisecond)

		outcome, err := EnsureTopic(ctx, admin, config, log)
		require.NoError(t, err)
		assert.Equal(t, TopicExisted, outcome)

		topics, err := ListTopics(admin)
		require.NoError(t, err)
		count := 0
		for _, name := range topics {
			if name == config.Name {
				count++
			}
		}
		assert.Equal(t, 1, count)
		assert.Equal(t, 2, topicPartitions(t, admin, config.Name))
	})

	t.Run("existing topic is not altered", func(t *testing.T) {
		config := TopicConfig{Name: "orders-ensure-layout", NumPartitions: 1, ReplicationFactor: 1}
		_, err := EnsureTopic(ctx, admin, config, log)
		require.NoError(t, err)
		time.Sleep(500 * time.Millisecond)

		config.NumPartitions = 6
		outcome, err := EnsureTopic(ctx, admin, config, log)
		require.NoError(t, err)
		assert.Equal(t, TopicExisted, outcome)
		assert.Equal(t, 1, topicPartitions(t, admin, config.Name))
	})

	t.Run("create on existing topic is swallowed", func(t *testing.T) {
		config := TopicConfig{Name: "orders-create-twice", NumPartitions: 1, ReplicationFactor: 1}
		_, err := CreateTopic(ctx, admin, config, log)
		require.NoError(t, err)

		outcome, err := CreateTopic(ctx, admin, config, log)
		require.NoError(t, err)
		assert.Equal(t, TopicExisted, outcome)
	})

	t.Run("replication beyond cluster size fails", func(t *testing.T) {
		config := TopicConfig{Name: "orders-too-replicated", NumPartitions: 1, ReplicationFactor: 3}
		_, err := EnsureTopic(ctx, admin, config, log)
		require.Error(t, err)
	})
}
