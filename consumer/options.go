package consumer

import (
	"github.com/hugolhafner/go-kcore/logger"
	"github.com/hugolhafner/go-kcore/otel"
)

type Config struct {
	Logger    logger.Logger
	Telemetry *otel.Telemetry

	// OwnedClient makes Close release the transport after unsubscribing.
	OwnedClient bool
}

func defaultConfig() Config {
	return Config{
		Logger:    logger.NewNoopLogger(),
		Telemetry: otel.Noop(),
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

func WithOwnedClient() Option {
	return func(c *Config) {
		c.OwnedClient = true
	}
}
