package kafka

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const (
	// metadataTimeout is the timeout for Kafka metadata operations.
	metadataTimeout = 10 * time.Second
	// adminOperationTimeout bounds how long the broker may take to create a topic.
	adminOperationTimeout = 60 * time.Second
)

// Defaults for the orders topic.
const (
	DefaultTopic             = "orders"
	DefaultNumPartitions     = 4
	DefaultReplicationFactor = 3
)

// TopicOutcome reports what EnsureTopic did.
type TopicOutcome string

const (
	TopicCreated TopicOutcome = "created"
	TopicExisted TopicOutcome = "exists"
)

// Admin is the subset of *kafka.AdminClient used for topic provisioning.
type Admin interface {
	GetMetadata(topic *string, allTopics bool, timeoutMs int) (*kafka.Metadata, error)
	CreateTopics(
		ctx context.Context,
		topics []kafka.TopicSpecification,
		options ...kafka.CreateTopicsAdminOption,
	) ([]kafka.TopicResult, error)
}

var _ Admin = (*kafka.AdminClient)(nil)

// TopicConfig holds Kafka topic configuration options for creation or validation.
type TopicConfig struct {
	Name              string // Required: topic name
	NumPartitions     int    // Required: number of partitions (must be > 0)
	ReplicationFactor int    // Required: replication factor (must be > 0)
}

// DefaultTopicConfig returns the orders topic layout.
func DefaultTopicConfig() TopicConfig {
	return TopicConfig{
		Name:              DefaultTopic,
		NumPartitions:     DefaultNumPartitions,
		ReplicationFactor: DefaultReplicationFactor,
	}
}

// Validate checks if the TopicConfig is valid for topic creation.
func (tc TopicConfig) Validate() error {
	if tc.Name == "" {
		return errors.New("topic name cannot be empty")
	}
	if tc.NumPartitions <= 0 {
		return fmt.Errorf("number of partitions must be > 0, got %d", tc.NumPartitions)
	}
	if tc.ReplicationFactor <= 0 {
		return fmt.Errorf("replication factor must be > 0, got %d", tc.ReplicationFactor)
	}
	return nil
}

// NewAdminClient creates an admin client from the given configuration.
func NewAdminClient(conf *kafka.ConfigMap) (*kafka.AdminClient, error) {
	admin, err := kafka.NewAdminClient(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka admin client: %w", err)
	}
	return admin, nil
}

// ListTopics returns the sorted names of all topics in the cluster.
func ListTopics(admin Admin) ([]string, error) {
	metadata, err := listMetadata(admin)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(metadata.Topics))
	for name, t := range metadata.Topics {
		if t.Error.Code() != kafka.ErrNoError {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// CreateTopic creates a new Kafka topic with the given configuration.
//
// A TopicAlreadyExists result is logged and swallowed, so concurrent callers
// racing on the same topic all succeed. Any other failure is returned.
func CreateTopic(
	ctx context.Context,
	admin Admin,
	config TopicConfig,
	log *zap.SugaredLogger,
) (TopicOutcome, error) {
	if err := config.Validate(); err != nil {
		return "", fmt.Errorf("invalid topic config: %w", err)
	}

	spec := kafka.TopicSpecification{
		Topic:             config.Name,
		NumPartitions:     config.NumPartitions,
		ReplicationFactor: config.ReplicationFactor,
	}

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{spec},
		kafka.SetAdminOperationTimeout(adminOperationTimeout))
	if err != nil {
		return "", fmt.Errorf("failed to create topic %q: %w", config.Name, err)
	}

	outcome := TopicCreated
	for _, result := range results {
		switch result.Error.Code() {
		case kafka.ErrNoError:
			log.Infow("created topic",
				"topic", result.Topic,
				"partitions", config.NumPartitions,
				"replicationFactor", config.ReplicationFactor)
		case kafka.ErrTopicAlreadyExists:
			outcome = TopicExisted
			log.Infow("topic already exists", "topic", result.Topic)
		default:
			return "", fmt.Errorf("failed to create topic %q: %w", result.Topic, result.Error)
		}
	}

	return outcome, nil
}

// EnsureTopic creates the topic unless it is already listed by the cluster.
//
// An existing topic is never altered. If its layout differs from config a
// warning is logged. Calling EnsureTopic repeatedly is safe.
func EnsureTopic(
	ctx context.Context,
	admin Admin,
	config TopicConfig,
	log *zap.SugaredLogger,
) (TopicOutcome, error) {
	if err := config.Validate(); err != nil {
		return "", fmt.Errorf("invalid topic config: %w", err)
	}

	metadata, err := listMetadata(admin)
	if err != nil {
		return "", fmt.Errorf("failed to check topic existence: %w", err)
	}

	topic, exists := metadata.Topics[config.Name]
	if !exists || topic.Error.Code() == kafka.ErrUnknownTopicOrPart {
		return CreateTopic(ctx, admin, config, log)
	}

	currentPartitions := len(topic.Partitions)
	currentRF := getReplicationFactor(&topic)

	log.Infow("topic exists",
		"topic", config.Name,
		"currentPartitions", currentPartitions,
		"currentReplicationFactor", currentRF)

	if currentPartitions != config.NumPartitions || currentRF != config.ReplicationFactor {
		log.Warnw("topic layout differs from config, leaving it unchanged",
			"topic", config.Name,
			"currentPartitions", currentPartitions,
			"desiredPartitions", config.NumPartitions,
			"currentReplicationFactor", currentRF,
			"desiredReplicationFactor", config.ReplicationFactor)
	}

	return TopicExisted, nil
}

func listMetadata(admin Admin) (*kafka.Metadata, error) {
	metadata, err := admin.GetMetadata(nil, true, int(metadataTimeout.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return metadata, nil
}

// getReplicationFactor extracts the replication factor from topic metadata.
// Returns 0 if the topic has no partitions.
func getReplicationFactor(metadata *kafka.TopicMetadata) int {
	if len(metadata.Partitions) == 0 {
		return 0
	}
	return len(metadata.Partitions[0].Replicas)
}
