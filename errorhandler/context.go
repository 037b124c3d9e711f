package errorhandler

import (
	"github.com/hugolhafner/go-kcore/kafka"
)

// ErrorContext carries everything a Handler needs to decide what to do with a
// record whose handler returned an error.
type ErrorContext struct {
	// Record is the raw record that failed, detached from the poll buffer.
	Record kafka.ConsumerRecord

	Error error

	// Attempt is the current delivery attempt, 1 indexed.
	Attempt int

	// Subscription is the topic or pattern the failing consumer is subscribed to.
	Subscription string
}

func NewErrorContext(record kafka.ConsumerRecord, err error) ErrorContext {
	return ErrorContext{
		Record:  record.Copy(),
		Error:   err,
		Attempt: 1,
	}
}

func (ec ErrorContext) WithError(err error) ErrorContext {
	ec.Error = err
	return ec
}

func (ec ErrorContext) WithAttempt(attempt int) ErrorContext {
	ec.Attempt = attempt
	return ec
}

func (ec ErrorContext) WithSubscription(subscription string) ErrorContext {
	ec.Subscription = subscription
	return ec
}

func (ec ErrorContext) IncrementAttempt() ErrorContext {
	ec.Attempt++
	return ec
}

func (ec ErrorContext) logFields() []any {
	return []any{
		"error", ec.Error,
		"key", ec.Record.Key,
		"topic", ec.Record.Topic,
		"partition", ec.Record.Partition,
		"offset", ec.Record.Offset,
		"attempt", ec.Attempt,
		"subscription", ec.Subscription,
	}
}
