package errorhandler

import (
	"context"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-kcore/logger"
)

// LogAndContinue logs the error and skips the record. Its offset is committed.
func LogAndContinue(l logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			l.Error("Handler failed, skipping record", ec.logFields()...)
			return ActionContinue{}
		},
	)
}

// LogAndFail logs the error and stops the consumer. This is the default policy.
func LogAndFail(l logger.Logger) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			l.Error("Handler failed, stopping consumer", ec.logFields()...)
			return ActionFail{}
		},
	)
}

// SilentFail stops the consumer without logging at this level.
func SilentFail() Handler {
	return HandlerFunc(
		func(context.Context, ErrorContext) Action {
			return ActionFail{}
		},
	)
}

// WithMaxAttempts retries a record until maxAttempts deliveries were made,
// waiting b between attempts, then defers to fallback.
func WithMaxAttempts(maxAttempts int, b backoff.Backoff, fallback Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			if ec.Attempt >= maxAttempts {
				return fallback.Handle(ctx, ec)
			}

			select {
			case <-ctx.Done():
				return ActionFail{}
			case <-time.After(b.Next(uint(ec.Attempt))):
			}

			return ActionRetry{}
		},
	)
}

// WithDLQ turns a Continue decision of inner into SendToDLQ for topic, e.g.
// WithMaxAttempts(3, b, WithDLQ("orders.dlq", nil)).
func WithDLQ(topic string, inner Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			var action Action = ActionContinue{}
			if inner != nil {
				action = inner.Handle(ctx, ec)
			}

			if action.Type() == ActionTypeContinue {
				return ActionSendToDLQ{topic: topic}
			}

			return action
		},
	)
}

// ActionLogger logs the decision taken by next at level.
func ActionLogger(l logger.Logger, level logger.LogLevel, next Handler) Handler {
	return HandlerFunc(
		func(ctx context.Context, ec ErrorContext) Action {
			action := next.Handle(ctx, ec)

			l.Log(level, "Error handler decision", append([]any{"action", action.Type().String()}, ec.logFields()...)...)
			return action
		},
	)
}
