//go:build integration

package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	kafkaImage          = "confluentinc/cp-kafka:7.5.0"
	kafkaStartupTimeout = 60 * time.Second
)

// KafkaContainer is a single-node KRaft broker reachable on localhost:9093.
type KafkaContainer struct {
	container testcontainers.Container
	Brokers   string
}

// StartKafka starts a broker and registers its teardown with t.Cleanup.
// A .env file in the package directory may override the image via KAFKA_IMAGE.
func StartKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	ctx := context.Background()

	env, _ := godotenv.Read()
	image := kafkaImage
	if v := env["KAFKA_IMAGE"]; v != "" {
		image = v
	}

	req := testcontainers.ContainerRequest{
		Image:        image,
		ExposedPorts: []string{"9093/tcp"},
		HostConfigModifier: func(hc *container.HostConfig) {
			// Advertised listeners point at localhost:9093, so bind the same host port.
			hc.PortBindings = map[nat.Port][]nat.PortBinding{
				"9093/tcp": {{HostIP: "127.0.0.1", HostPort: "9093"}},
			}
		},
		Env: map[string]string{
			"KAFKA_LISTENERS":                                "PLAINTEXT://0.0.0.0:9093,BROKER://0.0.0.0:9092,CONTROLLER://0.0.0.0:9094",
			"KAFKA_ADVERTISED_LISTENERS":                     "PLAINTEXT://localhost:9093,BROKER://localhost:9092",
			"KAFKA_LISTENER_SECURITY_PROTOCOL_MAP":           "CONTROLLER:PLAINTEXT,BROKER:PLAINTEXT,PLAINTEXT:PLAINTEXT",
			"KAFKA_INTER_BROKER_LISTENER_NAME":               "BROKER",
			"KAFKA_CONTROLLER_LISTENER_NAMES":                "CONTROLLER",
			"KAFKA_CONTROLLER_QUORUM_VOTERS":                 "1@localhost:9094",
			"KAFKA_PROCESS_ROLES":                            "broker,controller",
			"KAFKA_NODE_ID":                                  "1",
			"KAFKA_OFFSETS_TOPIC_REPLICATION_FACTOR":         "1",
			"KAFKA_TRANSACTION_STATE_LOG_REPLICATION_FACTOR": "1",
			"KAFKA_TRANSACTION_STATE_LOG_MIN_ISR":            "1",
			"KAFKA_GROUP_INITIAL_REBALANCE_DELAY_MS":         "0",
			"KAFKA_AUTO_CREATE_TOPICS_ENABLE":                "false",
			"CLUSTER_ID":                                     "MkU3OEVBNTcwNTJENDM2Qk",
		},
		WaitingFor: wait.ForLog("Kafka Server started").WithStartupTimeout(kafkaStartupTimeout),
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
	})

	// Give the controller time to settle before the first metadata request.
	time.Sleep(3 * time.Second)

	return &KafkaContainer{container: c, Brokers: "localhost:9093"}
}
