//go:build e2e

package e2e

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	ckafka "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/confluentinc/confluent-kafka-go/v2/schemaregistry"
	"github.com/devx-demo/orders-clients/pkg/serde"
	"github.com/stretchr/testify/require"
)

func getEnvStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newRegistry returns a Schema Registry client. Without SCHEMA_REGISTRY_URL
// an in-memory registry is used, shared by every serde built from it.
func newRegistry(t *testing.T) schemaregistry.Client {
	t.Helper()
	client, err := serde.NewClient(schemaregistry.NewConfig(getEnvStr("SCHEMA_REGISTRY_URL", "mock://e2e")))
	require.NoError(t, err)
	return client
}

// lineBuffer collects lines written by concurrent goroutines.
type lineBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lineBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lineBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := strings.TrimSpace(b.buf.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// readTopic polls topic from the beginning until want records arrived or the
// deadline passes.
func readTopic(t *testing.T, brokers, topic string, want int) []*ckafka.Message {
	t.Helper()

	consumer, err := ckafka.NewConsumer(&ckafka.ConfigMap{
		"bootstrap.servers": brokers,
		"group.id":          fmt.Sprintf("e2e-verifier-%d", time.Now().UnixNano()),
		"auto.offset.reset": "earliest",
	})
	require.NoError(t, err)
	defer consumer.Close()
	require.NoError(t, consumer.Subscribe(topic, nil))

	var got []*ckafka.Message
	deadline := time.Now().Add(20 * time.Second)
	for len(got) < want && time.Now().Before(deadline) {
		switch e := consumer.Poll(500).(type) {
		case *ckafka.Message:
			got = append(got, e)
		case ckafka.Error:
			require.False(t, e.IsFatal(), "fatal kafka error: %v", e)
		}
	}
	return got
}
