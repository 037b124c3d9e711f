package serde

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linkedin/goavro/v2"
	"github.com/twmb/franz-go/pkg/sr"
)

var _ Serde[any] = (*AvroSerde)(nil)

var ErrAvroFraming = errors.New("avro payload does not carry the expected wire header")

// WriterSchemas returns the schema registered under id. It is consulted for
// framed payloads written with a schema other than the serde's own.
type WriterSchemas func(ctx context.Context, id int) (string, error)

const writerLookupTimeout = 10 * time.Second

// AvroSerde encodes native Go values (map[string]any for records) with a
// goavro codec. With a schema id the payload is framed in the schema registry
// wire format.
type AvroSerde struct {
	codec    *goavro.Codec
	schemaID int
	framed   bool
	writers  WriterSchemas

	mu     sync.Mutex
	codecs map[int]*goavro.Codec
}

type AvroOption func(*AvroSerde)

// WithSchemaID frames every payload with the registry id of the schema.
func WithSchemaID(id int) AvroOption {
	return func(s *AvroSerde) {
		s.schemaID = id
		s.framed = true
	}
}

// WithWriterSchemas lets a framed serde decode payloads written with other
// registered schemas, such as earlier or later versions of its subject.
func WithWriterSchemas(fn WriterSchemas) AvroOption {
	return func(s *AvroSerde) {
		s.writers = fn
	}
}

func Avro(schema string, opts ...AvroOption) (*AvroSerde, error) {
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, fmt.Errorf("parse avro schema: %w", err)
	}

	s := &AvroSerde{codec: codec, codecs: make(map[int]*goavro.Codec)}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Schema returns the canonical form of the codec's schema.
func (s *AvroSerde) Schema() string {
	return s.codec.CanonicalSchema()
}

func (s *AvroSerde) Serialise(topic string, value any) ([]byte, error) {
	var buf []byte
	if s.framed {
		header, err := (&sr.ConfluentHeader{}).AppendEncode(make([]byte, 0, 64), s.schemaID, nil)
		if err != nil {
			return nil, fmt.Errorf("avro serialise for %s: %w", topic, err)
		}
		buf = header
	}

	out, err := s.codec.BinaryFromNative(buf, value)
	if err != nil {
		return nil, fmt.Errorf("avro serialise for %s: %w", topic, err)
	}

	return out, nil
}

// Deserialise decodes data with the schema it was written with. For framed
// payloads of another schema id the result follows that writer schema.
func (s *AvroSerde) Deserialise(topic string, data []byte) (any, error) {
	codec := s.codec
	if s.framed {
		id, payload, err := (&sr.ConfluentHeader{}).DecodeID(data)
		if err != nil {
			return nil, fmt.Errorf("avro deserialise for %s: %w: %w", topic, ErrAvroFraming, err)
		}

		codec, err = s.codecFor(id)
		if err != nil {
			return nil, fmt.Errorf("avro deserialise for %s: %w", topic, err)
		}
		data = payload
	}

	native, rest, err := codec.NativeFromBinary(data)
	if err != nil {
		return nil, fmt.Errorf("avro deserialise for %s: %w", topic, err)
	}

	if len(rest) > 0 {
		return nil, fmt.Errorf("avro deserialise for %s: %d trailing bytes", topic, len(rest))
	}

	return native, nil
}

func (s *AvroSerde) codecFor(id int) (*goavro.Codec, error) {
	if id == s.schemaID {
		return s.codec, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.codecs[id]; ok {
		return c, nil
	}

	if s.writers == nil {
		return nil, fmt.Errorf("schema id %d: no writer schema lookup configured", id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writerLookupTimeout)
	defer cancel()

	schema, err := s.writers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("look up schema id %d: %w", id, err)
	}

	c, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, fmt.Errorf("parse writer schema %d: %w", id, err)
	}

	s.codecs[id] = c
	return c, nil
}
