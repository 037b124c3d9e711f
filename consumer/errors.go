package consumer

import (
	"errors"
	"fmt"

	"github.com/hugolhafner/go-kcore/kafka"
)

var (
	ErrConsumerClosed       = errors.New("consumer is closed")
	ErrInvalidSubscription  = errors.New("invalid subscription")
	ErrHandlerNotConfigured = errors.New("handler is required")
)

// HandlerError is returned by DrainStep when the handler rejected a record.
// The record is not marked consumed; the caller decides whether to skip,
// redeliver or stop.
type HandlerError struct {
	Record kafka.ConsumerRecord
	Cause  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf(
		"handle record %s@%d: %v", e.Record.TopicPartition(), e.Record.Offset, e.Cause,
	)
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}

func AsHandlerError(err error) (*HandlerError, bool) {
	var he *HandlerError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// DeserializationError describes a record whose key or value could not be
// decoded. Such records are dropped.
type DeserializationError struct {
	Record kafka.ConsumerRecord
	// Field is "key" or "value".
	Field string
	Cause error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf(
		"deserialise %s of %s@%d: %v", e.Field, e.Record.TopicPartition(), e.Record.Offset, e.Cause,
	)
}

func (e *DeserializationError) Unwrap() error {
	return e.Cause
}

func AsDeserializationError(err error) (*DeserializationError, bool) {
	var de *DeserializationError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
