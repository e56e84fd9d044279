package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
broker:
  kafka:
    brokers: ["localhost:9092"]
    group_id: action-evaluator
database:
  postgres:
    host: localhost
    port: 5432
    user: hma
    dbname: hma
    sslmode: disable
dispatch:
  timeout: 5s
  retry:
    max_attempts: 4
    initial_interval: 100ms
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "kafka", cfg.Broker.Type)
	assert.Equal(t, "hma_matches", cfg.Broker.Kafka.MatchTopic)
	assert.Equal(t, "hma_actions", cfg.Broker.Kafka.ActionTopic)
	assert.Equal(t, "hma_reactions", cfg.Broker.Kafka.ReactionTopic)
	assert.Equal(t, 60, cfg.Evaluator.Reload.IntervalSeconds)
	assert.True(t, cfg.Evaluator.Reacting.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Dedup.TTL)

	policy := cfg.Dispatch.Retry.Policy()
	assert.Equal(t, 4, policy.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, policy.InitialInterval)
	assert.Equal(t, 2.0, policy.Multiplier)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BROKER_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("EVALUATOR_REACTING_ENABLED", "false")
	t.Setenv("DATABASE_POSTGRES_HOST", "db.internal")

	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.False(t, cfg.Evaluator.Reacting.Enabled)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateStatic(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(writeConfig(t, minimalYAML))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"no brokers", func(c *Config) { c.Broker.Kafka.Brokers = nil }, "broker.kafka.brokers"},
		{"unknown broker", func(c *Config) { c.Broker.Type = "rabbitmq" }, "broker.type"},
		{"same outcome topics", func(c *Config) { c.Broker.Kafka.ReactionTopic = c.Broker.Kafka.ActionTopic }, "broker.kafka.reaction_topic"},
		{"zero reload interval", func(c *Config) { c.Evaluator.Reload.IntervalSeconds = 0 }, "evaluator.reload.interval_seconds"},
		{"bad retry", func(c *Config) { c.Performer.Retry.MaxAttempts = -1 }, "performer.retry.max_attempts"},
		{"bad on_redis_error", func(c *Config) { c.Dedup.OnRedisError = "reject" }, "dedup.on_redis_error"},
		{"rate limit without rps", func(c *Config) { c.RateLimit = RateLimitConfig{Enabled: true, Burst: 1} }, "rate_limit.rps"},
		{"records without mongo", func(c *Config) { c.Records.Enabled = true }, "database.mongodb.uri"},
		{"bad sslmode", func(c *Config) { c.Database.Postgres.SSLMode = "sometimes" }, "database.postgres.sslmode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := ValidateStatic(cfg)
			require.Error(t, err)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}
