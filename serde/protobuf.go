package serde

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

type protobufSerde[T proto.Message] struct{}

func Protobuf[T proto.Message]() Serde[T] {
	return protobufSerde[T]{}
}

func (s protobufSerde[T]) Serialise(topic string, value T) ([]byte, error) {
	data, err := proto.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("protobuf serialise for %s: %w", topic, err)
	}
	return data, nil
}

func (s protobufSerde[T]) Deserialise(topic string, data []byte) (T, error) {
	var zero T
	// a typed nil still carries the message descriptor
	result, ok := zero.ProtoReflect().Type().New().Interface().(T)
	if !ok {
		return zero, fmt.Errorf("protobuf deserialise for %s: unexpected message type %T", topic, zero)
	}

	if err := proto.Unmarshal(data, result); err != nil {
		return zero, fmt.Errorf("protobuf deserialise for %s: %w", topic, err)
	}
	return result, nil
}
