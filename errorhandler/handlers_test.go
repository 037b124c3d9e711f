//go:build unit

package errorhandler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-kcore/errorhandler"
	"github.com/hugolhafner/go-kcore/kafka"
	"github.com/hugolhafner/go-kcore/logger"
	mocklogger "github.com/hugolhafner/go-kcore/logger/mock"
	"github.com/stretchr/testify/require"
)

func actionHandler(a errorhandler.Action) errorhandler.Handler {
	return errorhandler.HandlerFunc(
		func(context.Context, errorhandler.ErrorContext) errorhandler.Action {
			return a
		},
	)
}

func TestLogAndContinue(t *testing.T) {
	t.Parallel()
	var testErr = errors.New("processing failed")

	tests := []struct {
		name string
		err  error
	}{
		{"simple error", testErr},
		{"nil error", nil},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, nil)

				l := mocklogger.New()
				h := errorhandler.LogAndContinue(l)
				action := h.Handle(context.Background(), ec.WithError(tt.err))

				require.Equal(t, errorhandler.ActionContinue{}, action)
				l.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "Handler failed, skipping record")
			},
		)
	}
}

func TestLogAndFail(t *testing.T) {
	t.Parallel()

	ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{Topic: "t"}, errors.New("boom"))

	l := mocklogger.New()
	action := errorhandler.LogAndFail(l).Handle(context.Background(), ec)

	require.Equal(t, errorhandler.ActionFail{}, action)
	l.AssertCalledWithLevelAndMessage(t, logger.ErrorLevel, "Handler failed, stopping consumer")
}

func TestSilentFail(t *testing.T) {
	t.Parallel()

	action := errorhandler.SilentFail().Handle(context.Background(), errorhandler.ErrorContext{})
	require.Equal(t, errorhandler.ActionFail{}, action)
}

func TestWithMaxAttempts(t *testing.T) {
	t.Parallel()
	t.Run(
		"should call fallback after max attempts", func(t *testing.T) {
			t.Parallel()
			var maxAttempts = 3

			ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, errors.New("processing failed"))

			fallbackCalled := false
			fallback := errorhandler.HandlerFunc(
				func(ctx context.Context, ec errorhandler.ErrorContext) errorhandler.Action {
					fallbackCalled = true
					return errorhandler.ActionFail{}
				},
			)

			h := errorhandler.WithMaxAttempts(maxAttempts, backoff.NewFixed(0), fallback)

			for i := 1; i < maxAttempts; i++ {
				action := h.Handle(context.Background(), ec.WithAttempt(i))
				require.False(t, fallbackCalled, "fallback should not be called yet on attempt %d", i)
				require.Equal(t, errorhandler.ActionRetry{}, action)
			}

			action := h.Handle(context.Background(), ec.WithAttempt(maxAttempts))
			require.True(t, fallbackCalled, "fallback should have been called")
			require.Equal(t, errorhandler.ActionFail{}, action)
		},
	)

	t.Run(
		"should wait between attempts", func(t *testing.T) {
			t.Parallel()

			ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, errors.New("processing failed"))
			h := errorhandler.WithMaxAttempts(
				3,
				backoff.NewFixed(100*time.Millisecond),
				actionHandler(errorhandler.ActionFail{}),
			)

			start := time.Now()
			action := h.Handle(context.Background(), ec.WithAttempt(2))
			elapsed := time.Since(start)

			require.Equal(t, errorhandler.ActionRetry{}, action)
			require.GreaterOrEqual(t, elapsed, 100*time.Millisecond, "should have waited on retry attempt")
		},
	)

	t.Run(
		"should respect context cancellation", func(t *testing.T) {
			t.Parallel()

			ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, errors.New("processing failed"))
			h := errorhandler.WithMaxAttempts(
				3,
				backoff.NewFixed(time.Minute),
				actionHandler(errorhandler.ActionContinue{}),
			)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			action := h.Handle(ctx, ec)
			require.Equal(
				t, errorhandler.ActionFail{}, action, "expected Fail on context cancellation, got: %v",
				action.Type().String(),
			)
		},
	)
}

func TestWithDLQ(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		inner    errorhandler.Handler
		expected errorhandler.ActionType
	}{
		{"nil inner", nil, errorhandler.ActionTypeSendToDLQ},
		{"continue becomes dlq", actionHandler(errorhandler.ActionContinue{}), errorhandler.ActionTypeSendToDLQ},
		{"retry passes through", actionHandler(errorhandler.ActionRetry{}), errorhandler.ActionTypeRetry},
		{"fail passes through", actionHandler(errorhandler.ActionFail{}), errorhandler.ActionTypeFail},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()

				action := errorhandler.WithDLQ("orders.dlq", tt.inner).Handle(
					context.Background(), errorhandler.ErrorContext{},
				)
				require.Equal(t, tt.expected, action.Type())

				if dlq, ok := action.(errorhandler.ActionSendToDLQ); ok {
					require.Equal(t, "orders.dlq", dlq.Topic())
				}
			},
		)
	}
}

func TestWithMaxAttempts_ThenDLQ(t *testing.T) {
	t.Parallel()

	h := errorhandler.WithMaxAttempts(2, backoff.NewFixed(0), errorhandler.WithDLQ("dlq", nil))
	ec := errorhandler.NewErrorContext(kafka.ConsumerRecord{}, errors.New("boom"))

	require.Equal(t, errorhandler.ActionTypeRetry, h.Handle(context.Background(), ec).Type())
	require.Equal(t, errorhandler.ActionTypeSendToDLQ, h.Handle(context.Background(), ec.IncrementAttempt()).Type())
}

func TestActionLogger(t *testing.T) {
	t.Parallel()

	l := mocklogger.New()
	h := errorhandler.ActionLogger(l, logger.WarnLevel, actionHandler(errorhandler.ActionRetry{}))

	action := h.Handle(context.Background(), errorhandler.NewErrorContext(kafka.ConsumerRecord{}, errors.New("x")))

	require.Equal(t, errorhandler.ActionRetry{}, action)
	l.AssertCalledWithLevelAndMessage(t, logger.WarnLevel, "Error handler decision")
}
