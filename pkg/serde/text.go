package serde

import (
	"fmt"
	"sync"

	"github.com/confluentinc/confluent-kafka-go/v2/schemaregistry"
	"github.com/linkedin/goavro/v2"
)

// TextRenderer turns framed payloads into Avro JSON without knowing the
// record type up front. Codecs are cached per schema id.
type TextRenderer struct {
	client schemaregistry.Client

	mu     sync.RWMutex
	codecs map[int]*goavro.Codec
}

func NewTextRenderer(client schemaregistry.Client) (*TextRenderer, error) {
	if client == nil {
		return nil, ErrNilRegistry
	}
	return &TextRenderer{
		client: client,
		codecs: make(map[int]*goavro.Codec),
	}, nil
}

// Render decodes payload read from topic and returns its textual encoding.
func (r *TextRenderer) Render(topic string, payload []byte) ([]byte, error) {
	id, err := SchemaID(payload)
	if err != nil {
		return nil, err
	}
	codec, err := r.codec(topic, id)
	if err != nil {
		return nil, err
	}

	native, _, err := codec.NativeFromBinary(payload[headerSize:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode avro body with schema %d: %w", id, err)
	}
	text, err := codec.TextualFromNative(nil, native)
	if err != nil {
		return nil, fmt.Errorf("failed to encode avro json with schema %d: %w", id, err)
	}
	return text, nil
}

func (r *TextRenderer) codec(topic string, id int) (*goavro.Codec, error) {
	r.mu.RLock()
	codec, ok := r.codecs[id]
	r.mu.RUnlock()
	if ok {
		return codec, nil
	}

	info, err := r.client.GetBySubjectAndID(Subject(topic), id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema %d: %w", id, err)
	}
	codec, err = goavro.NewCodec(info.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to build codec for schema %d: %w", id, err)
	}

	r.mu.Lock()
	r.codecs[id] = codec
	r.mu.Unlock()
	return codec, nil
}

// Cached reports how many schema codecs are held.
func (r *TextRenderer) Cached() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.codecs)
}
