package scheduler

import (
	"context"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-kcore/errorhandler"
	"github.com/hugolhafner/go-kcore/kafka"
	"github.com/hugolhafner/go-kcore/logger"
	"github.com/hugolhafner/go-kcore/otel"
)

// Sleeper suspends the loop for d. It must return early with a non-nil
// error once ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Config struct {
	Logger       logger.Logger
	Telemetry    *otel.Telemetry
	ErrorHandler errorhandler.Handler

	// IdleBackoff is consulted with the number of consecutive idle cycles.
	// Nil means a fixed backoff of the drainer's IdleSleep.
	IdleBackoff backoff.Backoff
	Sleeper     Sleeper

	// DeadLetterProducer receives records the error handler sends to a DLQ.
	DeadLetterProducer kafka.Producer
}

func defaultConfig() Config {
	return Config{
		Logger:    logger.NewNoopLogger(),
		Telemetry: otel.Noop(),
		Sleeper:   sleep,
	}
}

type Option func(*Config)

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}

// WithErrorHandler sets the policy for handler failures. The default is
// errorhandler.LogAndFail.
func WithErrorHandler(h errorhandler.Handler) Option {
	return func(c *Config) {
		c.ErrorHandler = h
	}
}

func WithIdleBackoff(b backoff.Backoff) Option {
	return func(c *Config) {
		c.IdleBackoff = b
	}
}

func WithSleeper(s Sleeper) Option {
	return func(c *Config) {
		if s != nil {
			c.Sleeper = s
		}
	}
}

func WithDeadLetterProducer(p kafka.Producer) Option {
	return func(c *Config) {
		c.DeadLetterProducer = p
	}
}
