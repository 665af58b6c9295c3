package main

import (
	"fmt"
	"time"

	"github.com/devx-demo/orders-clients/pkg/config"
	"github.com/devx-demo/orders-clients/pkg/kafka"
	"github.com/devx-demo/orders-clients/pkg/metrics"
	"github.com/urfave/cli/v2"
)

// Config holds everything a command needs besides the connection bundle.
type Config struct {
	// Application settings
	Verbose    bool
	ConfigPath string

	// Kafka settings
	Topic             string
	EnableKafkaLogs   bool
	NumPartitions     int
	ReplicationFactor int

	// Producer settings
	Interval    time.Duration
	CreateTopic bool

	// Consumer settings
	GroupID         string
	AutoOffsetReset string
	PollTimeout     time.Duration
	Concurrency     int64
	DLQTopic        string

	// Order store settings
	Store              bool
	StoreTable         string
	StoreBatchSize     int
	StoreFlushInterval time.Duration

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Environment   string
	Region        string
	CloudProvider string
}

// buildConfig reads the flags of the running command. Flags a command does
// not define read as zero values.
func buildConfig(c *cli.Context) *Config {
	return &Config{
		Verbose:            c.Bool("verbose"),
		ConfigPath:         c.String("config"),
		Topic:              c.String("topic"),
		EnableKafkaLogs:    c.Bool("enable-kafka-logs"),
		NumPartitions:      c.Int("partitions"),
		ReplicationFactor:  c.Int("replication-factor"),
		Interval:           c.Duration("interval"),
		CreateTopic:        c.Bool("create-topic"),
		GroupID:            c.String("group-id"),
		AutoOffsetReset:    c.String("auto-offset-reset"),
		PollTimeout:        c.Duration("poll-timeout"),
		Concurrency:        c.Int64("concurrency"),
		DLQTopic:           c.String("dlq-topic"),
		Store:              c.Bool("store"),
		StoreTable:         c.String("store-table"),
		StoreBatchSize:     c.Int("store-batch-size"),
		StoreFlushInterval: c.Duration("store-flush-interval"),
		MetricsHost:        c.String("metrics-host"),
		MetricsPort:        c.Int("metrics-port"),
		Environment:        c.String("environment"),
		Region:             c.String("region"),
		CloudProvider:      c.String("cloud-provider"),
	}
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

func (c *Config) MetricsLabels(client string) metrics.Labels {
	return metrics.Labels{
		Client:        client,
		Environment:   c.Environment,
		Region:        c.Region,
		CloudProvider: c.CloudProvider,
	}
}

func (c *Config) TopicConfig() kafka.TopicConfig {
	return kafka.TopicConfig{
		Name:              c.Topic,
		NumPartitions:     c.NumPartitions,
		ReplicationFactor: c.ReplicationFactor,
	}
}

// ProducerConfig layers the flags over the KAFKA_* tunables.
func (c *Config) ProducerConfig() kafka.ProducerConfig {
	pc := kafka.LoadProducerConfig()
	pc.Topic = c.Topic
	pc.EnableLogs = c.EnableKafkaLogs
	return pc.WithDefaults()
}

// ConsumerConfig layers the flags over the KAFKA_* tunables.
func (c *Config) ConsumerConfig() kafka.ConsumerConfig {
	cc := kafka.LoadConsumerConfig()
	cc.Topic = c.Topic
	cc.GroupID = c.GroupID
	cc.AutoOffsetReset = c.AutoOffsetReset
	cc.DLQTopic = c.DLQTopic
	cc.Concurrency = c.Concurrency
	cc.EnableLogs = c.EnableKafkaLogs
	if c.PollTimeout > 0 {
		pt := c.PollTimeout
		cc.PollTimeout = &pt
	}
	return cc.WithDefaults()
}

// loadBundle reads the connection bundle and checks the parts the command
// needs.
func loadBundle(path string, needRegistry bool) (config.Bundle, error) {
	bundle, err := config.Load(path)
	if err != nil {
		return config.Bundle{}, fmt.Errorf("failed to load connection bundle: %w", err)
	}
	if err := bundle.Validate(); err != nil {
		return config.Bundle{}, err
	}
	if needRegistry {
		if err := bundle.ValidateSchemaRegistry(); err != nil {
			return config.Bundle{}, err
		}
	}
	return bundle, nil
}
