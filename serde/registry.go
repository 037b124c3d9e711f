package serde

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/sr"
)

// NewSchemaRegistry returns a client for the Confluent compatible schema
// registry at url.
func NewSchemaRegistry(url string) (*sr.Client, error) {
	cl, err := sr.NewClient(sr.URLs(url))
	if err != nil {
		return nil, fmt.Errorf("create schema registry client: %w", err)
	}
	return cl, nil
}

// Subject returns the default subject name for a topic's key or value schema.
func Subject(topic string, isKey bool) string {
	if isKey {
		return topic + "-key"
	}
	return topic + "-value"
}

// RegistryWriterSchemas resolves writer schemas by id through cl.
func RegistryWriterSchemas(cl *sr.Client) WriterSchemas {
	return func(ctx context.Context, id int) (string, error) {
		s, err := cl.SchemaByID(ctx, id)
		if err != nil {
			return "", err
		}
		return s.Schema, nil
	}
}

// RegisteredAvro registers schema for the topic's key or value subject and
// returns a serde that frames payloads with the registered id. Payloads of
// other ids are decoded with their writer schema, fetched from cl.
func RegisteredAvro(ctx context.Context, cl *sr.Client, topic string, isKey bool, schema string) (*AvroSerde, error) {
	s, err := Avro(schema)
	if err != nil {
		return nil, err
	}

	subject := Subject(topic, isKey)
	ss, err := cl.CreateSchema(ctx, subject, sr.Schema{Schema: s.Schema(), Type: sr.TypeAvro})
	if err != nil {
		return nil, fmt.Errorf("register schema for %s: %w", subject, err)
	}

	WithSchemaID(ss.ID)(s)
	WithWriterSchemas(RegistryWriterSchemas(cl))(s)
	return s, nil
}
