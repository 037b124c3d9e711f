package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-kcore/consumer"
	"github.com/hugolhafner/go-kcore/errorhandler"
	"github.com/hugolhafner/go-kcore/kafka"
	"github.com/hugolhafner/go-kcore/logger"
	"github.com/hugolhafner/go-kcore/otel"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

var ErrNoDeadLetterProducer = errors.New("no dead letter producer configured")

// Drainer is the consumer side driven by a Loop. *consumer.Consumer
// implements it.
type Drainer interface {
	DrainStep(ctx context.Context) (consumer.DrainResult, error)
	Skip(rec kafka.ConsumerRecord)
	Redeliver(ctx context.Context, rec kafka.ConsumerRecord) error

	// Done is closed when the drainer is closed.
	Done() <-chan struct{}
	IdleSleep() time.Duration
	Subscription() string
}

var _ Drainer = (*consumer.Consumer[any, any])(nil)

// Loop drives a Drainer: it drains every available record, then sleeps for
// the idle backoff, until the context is cancelled or the drainer is closed.
type Loop struct {
	config Config
	logger logger.Logger
}

func New(opts ...Option) *Loop {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	if config.ErrorHandler == nil {
		config.ErrorHandler = errorhandler.LogAndFail(config.Logger)
	}

	return &Loop{
		config: config,
		logger: config.Logger.With("component", "scheduler"),
	}
}

// Run blocks until ctx is cancelled or d is closed, returning nil, or until
// the error handler decides a handler failure is fatal, returning the
// *consumer.HandlerError.
func (l *Loop) Run(ctx context.Context, d Drainer) error {
	log := l.logger.With("subscription", d.Subscription())

	// sleeps also wake up when the drainer is closed
	wakeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-d.Done():
			cancel()
		case <-wakeCtx.Done():
		}
	}()

	idle := l.config.IdleBackoff
	if idle == nil {
		idle = backoff.NewFixed(d.IdleSleep())
	}

	log.Info("Scheduler loop started")

	var idleCycles uint
	for {
		if wakeCtx.Err() != nil {
			log.Info("Scheduler loop stopped")
			return nil
		}

		res, err := d.DrainStep(ctx)
		if err != nil {
			if errors.Is(err, consumer.ErrConsumerClosed) {
				log.Info("Consumer closed, scheduler loop stopped")
				return nil
			}

			he, ok := consumer.AsHandlerError(err)
			if !ok {
				return err
			}

			if err := l.handleFailure(ctx, d, he, log); err != nil {
				return err
			}
			idleCycles = 0
			continue
		}

		if res == consumer.MessageHandled {
			idleCycles = 0
			continue
		}

		if err := l.config.Sleeper(wakeCtx, idle.Next(idleCycles)); err != nil {
			continue
		}
		idleCycles++
	}
}

func (l *Loop) handleFailure(ctx context.Context, d Drainer, he *consumer.HandlerError, log logger.Logger) error {
	rec := he.Record
	ec := errorhandler.NewErrorContext(rec, he.Cause).WithSubscription(d.Subscription())
	tel := l.config.Telemetry

	for {
		action := l.config.ErrorHandler.Handle(ctx, ec)

		tel.ErrorHandlerActions.Add(
			ctx, 1, metric.WithAttributes(
				otel.AttrErrorAction.String(action.Type().String()),
				semconv.MessagingDestinationName(rec.Topic),
			),
		)

		switch action.Type() {
		case errorhandler.ActionTypeContinue:
			d.Skip(rec)
			return nil

		case errorhandler.ActionTypeRetry:
			ec = ec.IncrementAttempt()
			log.Debug("Redelivering record", "attempt", ec.Attempt, "topic", rec.Topic, "offset", rec.Offset)

			if ec.Attempt%10 == 0 {
				log.Warn(
					"Record seen high number of retry attempts, "+
						"consider sending to DLQ or allowing error handler to skip.",
					"attempt", ec.Attempt, "topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset,
				)
			}

			err := d.Redeliver(ctx, rec)
			if err == nil {
				return nil
			}
			if errors.Is(err, consumer.ErrConsumerClosed) {
				// left unmarked, the next owner of the partition sees it again
				return nil
			}
			ec = ec.WithError(err)

		case errorhandler.ActionTypeSendToDLQ:
			a, ok := action.(errorhandler.ActionSendToDLQ)
			if !ok {
				return fmt.Errorf("unexpected action %T for %s: %w", action, action.Type(), he)
			}

			if err := l.sendToDLQ(ctx, rec, ec, a.Topic()); err != nil {
				log.Error(
					"Failed to send record to DLQ",
					"error", err,
					"dlq_topic", a.Topic(),
					"original_topic", rec.Topic,
					"original_partition", rec.Partition,
					"original_offset", rec.Offset,
				)
				return errors.Join(he, err)
			}

			d.Skip(rec)
			return nil

		default:
			return he
		}
	}
}

func (l *Loop) sendToDLQ(
	ctx context.Context, rec kafka.ConsumerRecord, ec errorhandler.ErrorContext, topic string,
) error {
	if l.config.DeadLetterProducer == nil {
		return fmt.Errorf("dead letter topic %q: %w", topic, ErrNoDeadLetterProducer)
	}

	rec = rec.Copy()
	headers := append(
		rec.Headers,
		kafka.Header{Key: "x-original-topic", Value: []byte(rec.Topic)},
		kafka.Header{Key: "x-original-partition", Value: []byte(strconv.FormatInt(int64(rec.Partition), 10))},
		kafka.Header{Key: "x-original-offset", Value: []byte(strconv.FormatInt(rec.Offset, 10))},
		kafka.Header{Key: "x-error-timestamp", Value: []byte(time.Now().Format(time.RFC3339))},
		kafka.Header{Key: "x-error-attempt", Value: []byte(strconv.Itoa(ec.Attempt))},
		kafka.Header{Key: "x-error-subscription", Value: []byte(ec.Subscription)},
	)
	if ec.Error != nil {
		headers = append(headers, kafka.Header{Key: "x-error-message", Value: []byte(ec.Error.Error())})
	}

	return l.config.DeadLetterProducer.Send(ctx, topic, rec.Key, rec.Value, headers)
}
