package serde

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrTrailingJSON is returned when a payload holds more than one JSON value.
var ErrTrailingJSON = errors.New("trailing data after json value")

type JSONOption func(*jsonSerde)

// DisallowUnknownFields fails deserialisation of objects carrying fields the
// target struct does not declare, so a producer on a newer payload shape is
// noticed instead of silently truncated.
func DisallowUnknownFields() JSONOption {
	return func(s *jsonSerde) {
		s.strict = true
	}
}

type jsonSerde struct {
	strict bool
}

type typedJSONSerde[T any] struct {
	jsonSerde
}

// JSON returns a Serde that uses JSON for serialisation and deserialisation.
// A payload must hold exactly one JSON value.
func JSON[T any](opts ...JSONOption) Serde[T] {
	var s jsonSerde
	for _, opt := range opts {
		opt(&s)
	}
	return typedJSONSerde[T]{jsonSerde: s}
}

func (s typedJSONSerde[T]) Serialise(topic string, value T) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("json serialise for %s: %w", topic, err)
	}
	return data, nil
}

func (s typedJSONSerde[T]) Deserialise(topic string, data []byte) (T, error) {
	var result T

	dec := json.NewDecoder(bytes.NewReader(data))
	if s.strict {
		dec.DisallowUnknownFields()
	}

	if err := dec.Decode(&result); err != nil {
		var zero T
		return zero, fmt.Errorf("json deserialise for %s: %w", topic, err)
	}
	if dec.More() {
		var zero T
		return zero, fmt.Errorf("json deserialise for %s: %w", topic, ErrTrailingJSON)
	}

	return result, nil
}
