package producer

import (
	"github.com/hugolhafner/go-kcore/kafka"
	"github.com/hugolhafner/go-kcore/logger"
	"github.com/hugolhafner/go-kcore/otel"
)

type Config struct {
	Logger    logger.Logger
	Telemetry *otel.Telemetry

	// Headers are attached to every produced record.
	Headers []kafka.Header

	// OwnedClient makes Close release the transport. Leave unset when the
	// client is shared with other producers or consumers.
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

func WithHeaders(headers ...kafka.Header) Option {
	return func(c *Config) {
		c.Headers = append(c.Headers, headers...)
	}
}

func WithOwnedClient() Option {
	return func(c *Config) {
		c.OwnedClient = true
	}
}
