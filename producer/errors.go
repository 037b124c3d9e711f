package producer

import (
	"errors"
	"fmt"
)

var (
	ErrProducerClosed = errors.New("producer is closed")
	ErrNoSerialiser   = errors.New("value serialiser is required")
)

// ProduceError is returned by Produce when a key or value could not be
// serialised. Nothing was handed to the transport.
type ProduceError struct {
	Topic string
	// Field is "key" or "value".
	Field string
	Cause error
}

func (e *ProduceError) Error() string {
	return fmt.Sprintf("serialise %s for topic %q: %v", e.Field, e.Topic, e.Cause)
}

func (e *ProduceError) Unwrap() error {
	return e.Cause
}

func AsProduceError(err error) (*ProduceError, bool) {
	var pe *ProduceError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// FlushError is returned by Close when records may not have reached the
// broker. The producer is closed regardless.
type FlushError struct {
	Topic string
	// Undelivered counts records that failed delivery plus records still
	// unacknowledged when Close gave up waiting.
	Undelivered int64
	Cause       error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("topic %q: %d records undelivered at close: %v", e.Topic, e.Undelivered, e.Cause)
}

func (e *FlushError) Unwrap() error {
	return e.Cause
}

func AsFlushError(err error) (*FlushError, bool) {
	var fe *FlushError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
