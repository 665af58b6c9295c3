// Package config loads the connection bundle shared by every client: broker
// endpoints and credentials plus the Schema Registry endpoint and credentials.
package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/confluentinc/confluent-kafka-go/v2/schemaregistry"
)

const redacted = "*****"

var (
	ErrMissingBootstrapServers = errors.New("bootstrap.servers is required")
	ErrMissingSchemaRegistry   = errors.New("schema.registry.url is required")
)

// Bundle is the typed connection bundle. Fields carry the env var that
// overrides them; Extra holds any other librdkafka property from the file.
type Bundle struct {
	BootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	SecurityProtocol string `env:"KAFKA_SECURITY_PROTOCOL"`
	SASLMechanism    string `env:"KAFKA_SASL_MECHANISM"`
	SASLUsername     string `env:"KAFKA_SASL_USERNAME"`
	SASLPassword     string `env:"KAFKA_SASL_PASSWORD"`

	SchemaRegistryURL      string `env:"SCHEMA_REGISTRY_URL"`
	SchemaRegistryUsername string `env:"SCHEMA_REGISTRY_USERNAME"`
	SchemaRegistryPassword string `env:"SCHEMA_REGISTRY_PASSWORD"`

	Extra map[string]string
}

// Validate checks the settings needed to reach the brokers.
func (b Bundle) Validate() error {
	if b.BootstrapServers == "" {
		return ErrMissingBootstrapServers
	}
	if b.SASLMechanism != "" && (b.SASLUsername == "" || b.SASLPassword == "") {
		return fmt.Errorf("sasl mechanism %q requires a username and password", b.SASLMechanism)
	}
	return nil
}

// ValidateSchemaRegistry checks the settings needed to reach the registry.
func (b Bundle) ValidateSchemaRegistry() error {
	if b.SchemaRegistryURL == "" {
		return ErrMissingSchemaRegistry
	}
	if (b.SchemaRegistryUsername == "") != (b.SchemaRegistryPassword == "") {
		return errors.New("schema registry username and password must be set together")
	}
	return nil
}

// ConfigMap renders the librdkafka base configuration. Callers layer their
// client-specific settings on top of the returned map.
func (b Bundle) ConfigMap() *kafka.ConfigMap {
	cm := kafka.ConfigMap{}
	for _, k := range slices.Sorted(maps.Keys(b.Extra)) {
		cm[k] = b.Extra[k]
	}

	cm["bootstrap.servers"] = b.BootstrapServers
	setIfNotEmpty(cm, "security.protocol", b.SecurityProtocol)
	setIfNotEmpty(cm, "sasl.mechanisms", b.SASLMechanism)
	setIfNotEmpty(cm, "sasl.username", b.SASLUsername)
	setIfNotEmpty(cm, "sasl.password", b.SASLPassword)
	return &cm
}

// SchemaRegistryConfig renders the registry client configuration, with basic
// auth when credentials are present.
func (b Bundle) SchemaRegistryConfig() *schemaregistry.Config {
	if b.SchemaRegistryUsername != "" {
		return schemaregistry.NewConfigWithBasicAuthentication(
			b.SchemaRegistryURL, b.SchemaRegistryUsername, b.SchemaRegistryPassword)
	}
	return schemaregistry.NewConfig(b.SchemaRegistryURL)
}

// Redacted returns a copy safe to log.
func (b Bundle) Redacted() Bundle {
	if b.SASLPassword != "" {
		b.SASLPassword = redacted
	}
	if b.SchemaRegistryPassword != "" {
		b.SchemaRegistryPassword = redacted
	}
	b.Extra = maps.Clone(b.Extra)
	return b
}

func setIfNotEmpty(cm kafka.ConfigMap, key, value string) {
	if value != "" {
		cm[key] = value
	}
}
