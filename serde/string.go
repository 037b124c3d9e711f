package serde

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned by the UTF8 serde for bytes that are not valid UTF-8.
var ErrInvalidUTF8 = errors.New("invalid utf-8")

type stringSerde struct {
	validate bool
}

// String returns a Serde that converts between string and bytes as is. Any
// byte sequence round-trips.
func String() Serde[string] {
	return stringSerde{}
}

// UTF8 is String for keys and values that must be text, such as station names
// or timestamps. Invalid UTF-8 fails in both directions.
func UTF8() Serde[string] {
	return stringSerde{validate: true}
}

func (s stringSerde) Serialise(topic string, value string) ([]byte, error) {
	if s.validate && !utf8.ValidString(value) {
		return nil, fmt.Errorf("string serialise for %s: %w", topic, ErrInvalidUTF8)
	}
	return []byte(value), nil
}

func (s stringSerde) Deserialise(topic string, data []byte) (string, error) {
	if s.validate && !utf8.Valid(data) {
		return "", fmt.Errorf("string deserialise for %s: %w", topic, ErrInvalidUTF8)
	}
	return string(data), nil
}
