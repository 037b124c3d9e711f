//go:build fuzz

package serde_test

import (
	"testing"
	"unicode/utf8"

	"github.com/hugolhafner/go-kcore/serde"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Fuzz framed Avro serde - Deserialise must never panic on arbitrary payloads.
func FuzzAvroSerde_NoDeserialisePanic(f *testing.F) {
	s, err := serde.Avro(`{"type":"record","name":"k","fields":[{"name":"timestamp","type":"long"}]}`, serde.WithSchemaID(3))
	if err != nil {
		f.Fatal(err)
	}

	valid, _ := s.Serialise("topic", map[string]any{"timestamp": int64(1)})
	f.Add(valid)
	f.Add([]byte{})
	f.Add([]byte{0x00, 0x00, 0x00, 0x00, 0x03, 0xff})

	f.Fuzz(
		func(t *testing.T, data []byte) {
			val, err := s.Deserialise("topic", data)
			if err != nil {
				return
			}

			encoded, err := s.Serialise("topic", val)
			require.NoError(t, err, "Serialise must not fail after successful Deserialise")

			val2, err := s.Deserialise("topic", encoded)
			require.NoError(t, err)
			require.Equal(t, val, val2)
		},
	)
}

// Fuzz String serde identity round-trip.
func FuzzStringSerde_Identity(f *testing.F) {
	f.Add([]byte("hello"))
	f.Add([]byte(""))
	f.Add([]byte{0x00, 0xff, 0xfe})

	s := serde.String()

	f.Fuzz(
		func(t *testing.T, data []byte) {
			val, err := s.Deserialise("topic", data)
			require.NoError(t, err, "String.Deserialise must never error")

			encoded, err := s.Serialise("topic", val)
			require.NoError(t, err, "String.Serialise must never error")

			require.Equal(t, data, encoded, "round-trip must be identity")
		},
	)
}

// Fuzz UTF8 serde: accepts exactly the valid UTF-8 inputs and round-trips them.
func FuzzUTF8Serde_AcceptsValidOnly(f *testing.F) {
	f.Add([]byte("Clark/Lake"))
	f.Add([]byte{0xe2, 0x86})

	s := serde.UTF8()

	f.Fuzz(
		func(t *testing.T, data []byte) {
			val, err := s.Deserialise("topic", data)
			if !utf8.Valid(data) {
				require.ErrorIs(t, err, serde.ErrInvalidUTF8)
				return
			}
			require.NoError(t, err)

			encoded, err := s.Serialise("topic", val)
			require.NoError(t, err)
			require.Equal(t, data, encoded)
		},
	)
}

// Fuzz Bytes serde identity round-trip.
func FuzzBytesSerde_Identity(f *testing.F) {
	f.Add([]byte("hello"))
	f.Add([]byte(""))
	f.Add([]byte{0x00, 0xff, 0xfe})

	s := serde.Bytes()

	f.Fuzz(
		func(t *testing.T, data []byte) {
			val, err := s.Deserialise("topic", data)
			require.NoError(t, err, "Bytes.Deserialise must never error")

			encoded, err := s.Serialise("topic", val)
			require.NoError(t, err, "Bytes.Serialise must never error")

			require.Equal(t, data, encoded, "round-trip must be identity")
		},
	)
}

// Fuzz Protobuf serde - Deserialise must never panic.
func FuzzProtobufSerde_NoDeserializePanic(f *testing.F) {
	// Valid proto bytes for wrapperspb.StringValue("hello")
	validBytes, _ := proto.Marshal(wrapperspb.String("hello"))
	f.Add(validBytes)
	f.Add([]byte{})
	f.Add([]byte{0xff, 0xfe, 0x00, 0x01, 0x02, 0x80})

	s := serde.Protobuf[*wrapperspb.StringValue]()

	f.Fuzz(
		func(t *testing.T, data []byte) {
			// Must not panic - errors are acceptable
			val, err := s.Deserialise("topic", data)
			if err != nil {
				return
			}

			// If deserialization succeeded, round-trip should work
			encoded, err := s.Serialise("topic", val)
			require.NoError(t, err, "Serialise must not fail after successful Deserialise")

			val2, err := s.Deserialise("topic", encoded)
			require.NoError(t, err, "re-Deserialise must not fail after Serialise")
			require.True(t, proto.Equal(val, val2), "round-trip must preserve value")
		},
	)
}
