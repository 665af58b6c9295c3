// Package serde encodes and decodes record values in the Confluent Schema
// Registry wire format: a zero magic byte, the big-endian schema id, then
// the Avro binary body.
package serde

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/schemaregistry"
	"github.com/hamba/avro/v2"
)

const (
	magicByte  = 0
	headerSize = 5
)

var (
	ErrShortPayload   = errors.New("payload shorter than wire format header")
	ErrUnknownMagic   = errors.New("unknown magic byte")
	ErrNilRegistry    = errors.New("schema registry client cannot be nil")
	ErrEmptyTopicName = errors.New("topic name cannot be empty")
)

// NewClient builds a Schema Registry client. A "mock://" URL yields an
// in-memory registry.
func NewClient(conf *schemaregistry.Config) (schemaregistry.Client, error) {
	client, err := schemaregistry.NewClient(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema registry client: %w", err)
	}
	return client, nil
}

// Subject returns the value subject of a topic under the topic name strategy.
func Subject(topic string) string {
	return topic + "-value"
}

// Register parses schema and registers it under the value subject of topic,
// returning the registry id. Registering an identical schema again returns
// the existing id.
func Register(client schemaregistry.Client, topic, schema string) (int, error) {
	if client == nil {
		return 0, ErrNilRegistry
	}
	if topic == "" {
		return 0, ErrEmptyTopicName
	}
	parsed, err := avro.Parse(schema)
	if err != nil {
		return 0, fmt.Errorf("invalid avro schema: %w", err)
	}

	subject := Subject(topic)
	id, err := client.Register(subject, schemaregistry.SchemaInfo{Schema: parsed.String()}, false)
	if err != nil {
		return 0, fmt.Errorf("failed to register schema under %s: %w", subject, err)
	}
	return id, nil
}

// SchemaID reads the schema id from a framed payload.
func SchemaID(payload []byte) (int, error) {
	if len(payload) < headerSize {
		return 0, ErrShortPayload
	}
	if payload[0] != magicByte {
		return 0, fmt.Errorf("%w: %d", ErrUnknownMagic, payload[0])
	}
	return int(binary.BigEndian.Uint32(payload[1:headerSize])), nil
}
