package kafka

import (
	"fmt"
	"maps"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// Group ids of the two consumer styles.
const (
	DefaultPollerGroupID   = "orders-consumer"
	DefaultListenerGroupID = "orders-listener"
)

// Default timeout values for Kafka clients
const (
	DefaultSessionTimeout     = 45 * time.Second
	DefaultAutoCommitInterval = time.Second
	DefaultPollTimeout        = 100 * time.Millisecond
	DefaultFlushTimeout       = 15 * time.Second
	DefaultLinger             = 5 * time.Millisecond
	DefaultMessageTimeout     = 300 * time.Second
)

// ConsumerConfig holds the configuration for the poll consumer and the listener.
type ConsumerConfig struct {
	Topic              string         `env:"KAFKA_TOPIC"                envDefault:"orders"` // Topic to consume from
	GroupID            string         `env:"KAFKA_GROUP_ID"`                                // Consumer group id; each consumer style has its own default
	AutoOffsetReset    string         `env:"KAFKA_AUTO_OFFSET_RESET"    envDefault:"latest"` // Offset reset strategy: "earliest" or "latest"
	DLQTopic           string         `env:"KAFKA_DLQ_TOPIC"`                              // Dead letter queue for failed messages, disabled when empty
	Concurrency        int64          `env:"KAFKA_CONCURRENCY"          envDefault:"1"`      // Maximum concurrent message processors (listener only)
	AutoCommitInterval *time.Duration `env:"KAFKA_AUTO_COMMIT_INTERVAL" envDefault:"1s"`     // Interval of the librdkafka auto-commit timer
	SessionTimeout     *time.Duration `env:"KAFKA_SESSION_TIMEOUT"      envDefault:"45s"`    // Group session timeout
	PollTimeout        *time.Duration `env:"KAFKA_POLL_TIMEOUT"         envDefault:"100ms"`  // Maximum time a single Poll call blocks
	FlushTimeout       *time.Duration `env:"KAFKA_FLUSH_TIMEOUT"        envDefault:"15s"`    // Flush timeout of the DLQ producer on close
	EnableLogs         bool           `env:"KAFKA_ENABLE_LOGS"          envDefault:"false"`  // Forward librdkafka client logs
}

// ProducerConfig holds the configuration for the order producer.
type ProducerConfig struct {
	Topic             string         `env:"KAFKA_TOPIC"              envDefault:"orders"`
	Acks              string         `env:"KAFKA_ACKS"               envDefault:"all"`
	CompressionType   string         `env:"KAFKA_COMPRESSION_TYPE"   envDefault:"lz4"`
	EnableIdempotence bool           `env:"KAFKA_ENABLE_IDEMPOTENCE" envDefault:"true"`
	Linger            *time.Duration `env:"KAFKA_LINGER"             envDefault:"5ms"`
	MessageTimeout    *time.Duration `env:"KAFKA_MESSAGE_TIMEOUT"    envDefault:"300s"` // Upper bound before a delivery report fails
	FlushTimeout      *time.Duration `env:"KAFKA_FLUSH_TIMEOUT"      envDefault:"15s"`
	EnableLogs        bool           `env:"KAFKA_ENABLE_LOGS"        envDefault:"false"`
}

// LoadConsumerConfig loads Kafka consumer configuration from environment variables
func LoadConsumerConfig() ConsumerConfig {
	var cfg ConsumerConfig
	mustParseEnv(&cfg, "consumer")
	return cfg
}

// LoadProducerConfig loads Kafka producer configuration from environment variables
func LoadProducerConfig() ProducerConfig {
	var cfg ProducerConfig
	mustParseEnv(&cfg, "producer")
	return cfg
}

func mustParseEnv(cfg any, name string) {
	if err := env.Parse(cfg); err != nil {
		logger, logErr := zap.NewProduction()
		if logErr == nil {
			logger.Sugar().Errorw("failed to parse "+name+" config", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "failed to parse %s config: %v\n", name, err)
		}
		os.Exit(1)
	}
}

// WithDefaults returns a copy of the config with default values filled in for
// zero or nil fields. This method does not mutate the original config.
func (c ConsumerConfig) WithDefaults() ConsumerConfig {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = "latest"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	c.AutoCommitInterval = orDefault(c.AutoCommitInterval, DefaultAutoCommitInterval)
	c.SessionTimeout = orDefault(c.SessionTimeout, DefaultSessionTimeout)
	c.PollTimeout = orDefault(c.PollTimeout, DefaultPollTimeout)
	c.FlushTimeout = orDefault(c.FlushTimeout, DefaultFlushTimeout)
	return c
}

// ConfigMap layers the consumer settings over base. Offsets are committed by
// the librdkafka auto-commit timer.
func (c ConsumerConfig) ConfigMap(base *kafka.ConfigMap) *kafka.ConfigMap {
	c = c.WithDefaults()
	cm := cloneConfigMap(base)
	cm["group.id"] = c.GroupID
	cm["auto.offset.reset"] = c.AutoOffsetReset
	cm["enable.auto.commit"] = true
	cm["auto.commit.interval.ms"] = int(c.AutoCommitInterval.Milliseconds())
	cm["session.timeout.ms"] = int(c.SessionTimeout.Milliseconds())
	cm["go.logs.channel.enable"] = c.EnableLogs
	return &cm
}

// WithDefaults returns a copy of the config with default values filled in for
// zero or nil fields.
func (c ProducerConfig) WithDefaults() ProducerConfig {
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}
	if c.Acks == "" {
		c.Acks = "all"
	}
	c.Linger = orDefault(c.Linger, DefaultLinger)
	c.MessageTimeout = orDefault(c.MessageTimeout, DefaultMessageTimeout)
	c.FlushTimeout = orDefault(c.FlushTimeout, DefaultFlushTimeout)
	return c
}

// ConfigMap layers the producer settings over base.
func (c ProducerConfig) ConfigMap(base *kafka.ConfigMap) *kafka.ConfigMap {
	c = c.WithDefaults()
	cm := cloneConfigMap(base)
	cm["acks"] = c.Acks
	cm["enable.idempotence"] = c.EnableIdempotence
	cm["linger.ms"] = int(c.Linger.Milliseconds())
	cm["message.timeout.ms"] = int(c.MessageTimeout.Milliseconds())
	cm["go.logs.channel.enable"] = c.EnableLogs
	if c.CompressionType != "" {
		cm["compression.type"] = c.CompressionType
	}
	return &cm
}

func cloneConfigMap(base *kafka.ConfigMap) kafka.ConfigMap {
	if base == nil {
		return kafka.ConfigMap{}
	}
	return maps.Clone(*base)
}

func orDefault(d *time.Duration, def time.Duration) *time.Duration {
	if d != nil {
		return d
	}
	return &def
}
