//go:build unit

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hugolhafner/go-kcore/config"
	"github.com/hugolhafner/go-kcore/consumer"
	"github.com/hugolhafner/go-kcore/logger"
	"github.com/hugolhafner/go-kcore/topic"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "kcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	require.Equal(t, "kcore", cfg.GroupID)
	require.Equal(t, consumer.Latest, cfg.OffsetPolicy())
	require.Equal(t, 100*time.Millisecond, cfg.PollTimeout)
	require.Equal(t, time.Second, cfg.IdleSleep)
	require.Equal(t, logger.InfoLevel, cfg.LogLevel())
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(
		t, `
brokers: ["broker-1:9092", "broker-2:9092"]
group_id: arrivals
offset_reset: earliest
schema_registry_url: http://registry:8081
poll_timeout: 250ms
idle_sleep: 2s
log:
  level: debug
  json: true
topics:
  turnstile:
    partitions: 12
    replicas: 3
  org.chicago.cta.weather:
    partitions: 2
`,
	)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Brokers)
	require.Equal(t, "arrivals", cfg.GroupID)
	require.Equal(t, consumer.Earliest, cfg.OffsetPolicy())
	require.Equal(t, "http://registry:8081", cfg.SchemaRegistryURL)
	require.Equal(t, 250*time.Millisecond, cfg.PollTimeout)
	require.Equal(t, 2*time.Second, cfg.IdleSleep)
	require.Equal(t, logger.DebugLevel, cfg.LogLevel())
	require.True(t, cfg.Log.JSON)
	require.Equal(t, topic.Spec{Name: "turnstile", Partitions: 12, Replicas: 3}, cfg.TopicSpec("turnstile"))
	require.Equal(t, int32(2), cfg.TopicSpec("org.chicago.cta.weather").Partitions)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(
		t, `
group_id: from-file
topics:
  turnstile:
    partitions: 4
`,
	)

	t.Setenv("KCORE__GROUP_ID", "from-env")
	t.Setenv("KCORE__OFFSET_RESET", "earliest")
	t.Setenv("KCORE__TOPICS__TURNSTILE__PARTITIONS", "12")
	t.Setenv("KCORE__LOG__LEVEL", "warn")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "from-env", cfg.GroupID)
	require.Equal(t, consumer.Earliest, cfg.OffsetPolicy())
	require.Equal(t, int32(12), cfg.TopicSpec("turnstile").Partitions)
	require.Equal(t, logger.WarnLevel, cfg.LogLevel())
}

func TestLoad_InvalidOffsetReset(t *testing.T) {
	t.Setenv("KCORE__OFFSET_RESET", "sometimes")

	_, err := config.Load("")
	require.Error(t, err)
}

func TestLoad_InvalidTopic(t *testing.T) {
	path := writeConfig(
		t, `
topics:
  turnstile:
    partitions: -1
`,
	)

	_, err := config.Load(path)
	require.ErrorIs(t, err, topic.ErrInvalidSpec)
}

func TestTopicSpec_Unconfigured(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	require.Equal(t, topic.Spec{Name: "weather", Partitions: 1, Replicas: 1}, cfg.TopicSpec("weather"))
}

func TestConsumerOptions_Regex(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	literal := cfg.ConsumerOptions("arrivals", logger.NewNoopLogger())
	pattern := cfg.ConsumerOptions("^arrivals.*", logger.NewNoopLogger())
	require.Len(t, pattern, len(literal)+1)
	require.Len(t, cfg.ProducerOptions(logger.NewNoopLogger()), 3)
}
