package consumer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hugolhafner/go-kcore/record"
	"github.com/hugolhafner/go-kcore/serde"
)

const (
	DefaultPollTimeout = 100 * time.Millisecond
	DefaultIdleSleep   = time.Second
)

// Handler is invoked synchronously for every decoded record.
type Handler[K, V any] func(ctx context.Context, rec record.Record[K, V]) error

// Subscription is the immutable consumption contract of one consumer.
// TopicPattern is a literal topic name, or a regular expression when it
// starts with "^". A nil Key deserialiser leaves keys at their zero value.
type Subscription[K, V any] struct {
	TopicPattern string
	OffsetPolicy OffsetPolicy
	PollTimeout  time.Duration
	IdleSleep    time.Duration

	Key     serde.Deserialiser[K]
	Value   serde.Deserialiser[V]
	Handler Handler[K, V]
}

func (s Subscription[K, V]) withDefaults() Subscription[K, V] {
	if s.PollTimeout <= 0 {
		s.PollTimeout = DefaultPollTimeout
	}
	if s.IdleSleep <= 0 {
		s.IdleSleep = DefaultIdleSleep
	}
	return s
}

func (s Subscription[K, V]) Validate() error {
	switch {
	case s.TopicPattern == "":
		return fmt.Errorf("%w: empty topic pattern", ErrInvalidSubscription)
	case s.Value == nil:
		return fmt.Errorf("%w: value deserialiser is required", ErrInvalidSubscription)
	case s.Handler == nil:
		return fmt.Errorf("%w: %w", ErrInvalidSubscription, ErrHandlerNotConfigured)
	case s.OffsetPolicy != Latest && s.OffsetPolicy != Earliest:
		return fmt.Errorf("%w: unknown offset policy %d", ErrInvalidSubscription, s.OffsetPolicy)
	}

	if strings.HasPrefix(s.TopicPattern, "^") {
		if _, err := regexp.Compile(s.TopicPattern); err != nil {
			return fmt.Errorf("%w: topic pattern: %w", ErrInvalidSubscription, err)
		}
	}
	return nil
}
