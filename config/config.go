package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/hugolhafner/go-kcore/consumer"
	"github.com/hugolhafner/go-kcore/kafka"
	"github.com/hugolhafner/go-kcore/logger"
	"github.com/hugolhafner/go-kcore/topic"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override; nested keys are separated
// by "__", e.g. KCORE__TOPICS__TURNSTILE__PARTITIONS=12.
const EnvPrefix = "KCORE__"

type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

type TopicConfig struct {
	Partitions int32 `koanf:"partitions"`
	Replicas   int16 `koanf:"replicas"`
}

type Config struct {
	Brokers           []string      `koanf:"brokers"`
	GroupID           string        `koanf:"group_id"`
	ClientID          string        `koanf:"client_id"`
	OffsetReset       string        `koanf:"offset_reset"` // earliest|latest
	SchemaRegistryURL string        `koanf:"schema_registry_url"`
	PollTimeout       time.Duration `koanf:"poll_timeout"`
	IdleSleep         time.Duration `koanf:"idle_sleep"`

	Log    LogConfig              `koanf:"log"`
	Topics map[string]TopicConfig `koanf:"topics"`
}

// Load merges the YAML file at path, if present, with KCORE__ environment
// variables and applies defaults.
func Load(path string) (Config, error) {
	// topic names carry dots, so key paths use "/"
	k := koanf.New("/")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(
		env.Provider(
			EnvPrefix, "__", func(s string) string {
				return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
			},
		), nil,
	); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(c *Config) {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.GroupID == "" {
		c.GroupID = "kcore"
	}
	if c.OffsetReset == "" {
		c.OffsetReset = consumer.Latest.String()
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = consumer.DefaultPollTimeout
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = consumer.DefaultIdleSleep
	}
	if c.Log.Level == "" {
		c.Log.Level = logger.InfoLevel.String()
	}
}

func (c Config) Validate() error {
	if _, err := consumer.ParseOffsetPolicy(c.OffsetReset); err != nil {
		return fmt.Errorf("offset_reset: %w", err)
	}

	for name, t := range c.Topics {
		if err := c.spec(name, t).Validate(); err != nil {
			return fmt.Errorf("topics.%s: %w", name, err)
		}
	}
	return nil
}

func (c Config) OffsetPolicy() consumer.OffsetPolicy {
	p, _ := consumer.ParseOffsetPolicy(c.OffsetReset)
	return p
}

func (c Config) LogLevel() logger.LogLevel {
	return logger.ParseLevel(c.Log.Level)
}

// TopicSpec returns the provisioning spec for name. Topics missing from the
// config get a single partition and replica.
func (c Config) TopicSpec(name string) topic.Spec {
	return c.spec(name, c.Topics[name])
}

func (c Config) spec(name string, t TopicConfig) topic.Spec {
	s := topic.Spec{Name: name, Partitions: t.Partitions, Replicas: t.Replicas}
	if s.Partitions == 0 {
		s.Partitions = 1
	}
	if s.Replicas == 0 {
		s.Replicas = 1
	}
	return s
}

// ProducerOptions configures a KgoClient used only to produce and provision.
func (c Config) ProducerOptions(l logger.Logger) []kafka.KgoOption {
	return []kafka.KgoOption{
		kafka.WithBootstrapServers(c.Brokers),
		kafka.WithClientID(c.ClientID),
		kafka.WithLogger(l),
	}
}

// ConsumerOptions configures a KgoClient for one consumer subscribed to
// pattern. The reset offset mirrors the offset policy.
func (c Config) ConsumerOptions(pattern string, l logger.Logger) []kafka.KgoOption {
	opts := append(
		c.ProducerOptions(l),
		kafka.WithGroupID(c.GroupID),
		kafka.WithResetOffset(c.OffsetPolicy().ResetOffset()),
	)
	if strings.HasPrefix(pattern, "^") {
		opts = append(opts, kafka.WithConsumeRegex())
	}
	return opts
}
