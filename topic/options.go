package topic

import (
	"time"

	"github.com/hugolhafner/go-kcore/logger"
	"github.com/hugolhafner/go-kcore/otel"
)

type Config struct {
	Logger    logger.Logger
	Telemetry *otel.Telemetry

	// CreateTimeout bounds a single create call. The call is shared by every
	// caller waiting on the same name, so it does not inherit any caller's
	// cancellation.
	CreateTimeout time.Duration
}

func defaultConfig() Config {
	return Config{
		Logger:        logger.NewNoopLogger(),
		Telemetry:     otel.Noop(),
		CreateTimeout: 30 * time.Second,
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

func WithCreateTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.CreateTimeout = d
		}
	}
}
