package serde

import (
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/schemaregistry"
	"github.com/confluentinc/confluent-kafka-go/v2/schemaregistry/serde"
	"github.com/confluentinc/confluent-kafka-go/v2/schemaregistry/serde/avrov2"
)

// Serializer frames values of one topic with a pinned schema id.
type Serializer struct {
	topic    string
	schemaID int
	ser      *avrov2.Serializer
}

// NewSerializer registers schema for topic and returns a serializer that
// always writes with the registered id.
func NewSerializer(client schemaregistry.Client, topic, schema string) (*Serializer, error) {
	id, err := Register(client, topic, schema)
	if err != nil {
		return nil, err
	}

	conf := avrov2.NewSerializerConfig()
	conf.AutoRegisterSchemas = false
	conf.UseSchemaID = id

	ser, err := avrov2.NewSerializer(client, serde.ValueSerde, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create avro serializer: %w", err)
	}
	return &Serializer{topic: topic, schemaID: id, ser: ser}, nil
}

// SchemaID returns the id the serializer writes into every payload.
func (s *Serializer) SchemaID() int {
	return s.schemaID
}

func (s *Serializer) Topic() string {
	return s.topic
}

// Serialize encodes v, a pointer to an avro-tagged struct.
func (s *Serializer) Serialize(v any) ([]byte, error) {
	b, err := s.ser.Serialize(s.topic, v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize value for %s: %w", s.topic, err)
	}
	return b, nil
}

func (s *Serializer) Close() error {
	return s.ser.Close()
}

// Deserializer decodes framed values using the writer schema looked up by id.
type Deserializer struct {
	deser *avrov2.Deserializer
}

func NewDeserializer(client schemaregistry.Client) (*Deserializer, error) {
	if client == nil {
		return nil, ErrNilRegistry
	}
	deser, err := avrov2.NewDeserializer(client, serde.ValueSerde, avrov2.NewDeserializerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create avro deserializer: %w", err)
	}
	return &Deserializer{deser: deser}, nil
}

// DeserializeInto decodes payload read from topic into v.
func (d *Deserializer) DeserializeInto(topic string, payload []byte, v any) error {
	if _, err := SchemaID(payload); err != nil {
		return err
	}
	if err := d.deser.DeserializeInto(topic, payload, v); err != nil {
		return fmt.Errorf("failed to deserialize value from %s: %w", topic, err)
	}
	return nil
}

func (d *Deserializer) Close() error {
	return d.deser.Close()
}
