package main

import (
	"github.com/devx-demo/orders-clients/internal/orders"
	"github.com/devx-demo/orders-clients/pkg/kafka"
	"github.com/urfave/cli/v2"

	chorders "github.com/devx-demo/orders-clients/pkg/data/clickhouse/orders"
)

// commonFlags are shared by every command.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path of the ccloud.properties connection bundle (empty to use only the environment)",
			EnvVars: []string{"CCLOUD_CONFIG"},
			Value:   "ccloud.properties",
		},
		&cli.StringFlag{
			Name:    "topic",
			Aliases: []string{"t"},
			Usage:   "The Kafka topic to use",
			EnvVars: []string{"KAFKA_TOPIC"},
			Value:   kafka.DefaultTopic,
		},
		&cli.BoolFlag{
			Name:    "enable-kafka-logs",
			Aliases: []string{"l"},
			Usage:   "Forward librdkafka logs to the application logger",
			EnvVars: []string{"KAFKA_ENABLE_LOGS"},
		},
	}
}

func topicFlags() []cli.Flag {
	return append(commonFlags(),
		&cli.IntFlag{
			Name:    "partitions",
			Aliases: []string{"p"},
			Usage:   "Number of partitions of a newly created topic",
			EnvVars: []string{"KAFKA_TOPIC_NUM_PARTITIONS"},
			Value:   kafka.DefaultNumPartitions,
		},
		&cli.IntFlag{
			Name:    "replication-factor",
			Aliases: []string{"r"},
			Usage:   "Replication factor of a newly created topic",
			EnvVars: []string{"KAFKA_TOPIC_REPLICATION_FACTOR"},
			Value:   kafka.DefaultReplicationFactor,
		},
	)
}

// Default metrics ports, one per command so that a producer and its
// consumers can run on the same host.
const (
	defaultProduceMetricsPort = 9090
	defaultConsumeMetricsPort = 9091
	defaultListenMetricsPort  = 9092
)

func metricsFlags(defaultPort int) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server (0 disables it)",
			EnvVars: []string{"METRICS_PORT"},
			Value:   defaultPort,
		},
		&cli.StringFlag{
			Name:    "environment",
			Aliases: []string{"E"},
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
		},
		&cli.StringFlag{
			Name:    "region",
			Aliases: []string{"R"},
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
		},
	}
}

func produceFlags() []cli.Flag {
	flags := append(topicFlags(),
		&cli.DurationFlag{
			Name:    "interval",
			Aliases: []string{"i"},
			Usage:   "Pause between two generated orders",
			EnvVars: []string{"PRODUCE_INTERVAL"},
			Value:   orders.DefaultInterval,
		},
		&cli.BoolFlag{
			Name:    "create-topic",
			Usage:   "Ensure the topic exists before producing",
			EnvVars: []string{"CREATE_TOPIC"},
			Value:   true,
		},
	)
	return append(flags, metricsFlags(defaultProduceMetricsPort)...)
}

func consumerFlags(defaultGroupID string) []cli.Flag {
	return append(commonFlags(),
		&cli.StringFlag{
			Name:    "group-id",
			Aliases: []string{"g"},
			Usage:   "Kafka consumer group ID",
			EnvVars: []string{"KAFKA_GROUP_ID"},
			Value:   defaultGroupID,
		},
		&cli.StringFlag{
			Name:    "auto-offset-reset",
			Aliases: []string{"o"},
			Usage:   "Where to start without a committed offset: earliest or latest",
			EnvVars: []string{"KAFKA_AUTO_OFFSET_RESET"},
			Value:   "latest",
		},
		&cli.DurationFlag{
			Name:    "poll-timeout",
			Usage:   "Maximum time a single poll blocks",
			EnvVars: []string{"KAFKA_POLL_TIMEOUT"},
			Value:   kafka.DefaultPollTimeout,
		},
	)
}

func consumeFlags() []cli.Flag {
	return append(consumerFlags(kafka.DefaultPollerGroupID), metricsFlags(defaultConsumeMetricsPort)...)
}

func listenFlags() []cli.Flag {
	flags := append(consumerFlags(kafka.DefaultListenerGroupID),
		&cli.Int64Flag{
			Name:    "concurrency",
			Usage:   "Maximum number of records processed concurrently",
			EnvVars: []string{"KAFKA_CONCURRENCY"},
			Value:   1,
		},
		&cli.StringFlag{
			Name:    "dlq-topic",
			Aliases: []string{"d"},
			Usage:   "Dead letter topic for records the processor rejects (empty disables it)",
			EnvVars: []string{"KAFKA_DLQ_TOPIC"},
		},
		&cli.BoolFlag{
			Name:    "store",
			Usage:   "Persist consumed orders in ClickHouse (connection from CLICKHOUSE_* variables)",
			EnvVars: []string{"STORE_ORDERS"},
		},
		&cli.StringFlag{
			Name:    "store-table",
			Usage:   "ClickHouse table for consumed orders",
			EnvVars: []string{"STORE_TABLE"},
			Value:   chorders.DefaultTableName,
		},
		&cli.IntFlag{
			Name:    "store-batch-size",
			Usage:   "Rows buffered before a ClickHouse insert",
			EnvVars: []string{"STORE_BATCH_SIZE"},
			Value:   chorders.DefaultMaxBatchSize,
		},
		&cli.DurationFlag{
			Name:    "store-flush-interval",
			Usage:   "Maximum time rows stay buffered before an insert",
			EnvVars: []string{"STORE_FLUSH_INTERVAL"},
			Value:   chorders.DefaultFlushInterval,
		},
	)
	return append(flags, metricsFlags(defaultListenMetricsPort)...)
}
