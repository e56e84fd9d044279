package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"actioner/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("broker.type", "kafka")
	v.SetDefault("broker.kafka.match_topic", constants.DefaultMatchTopic)
	v.SetDefault("broker.kafka.action_topic", constants.DefaultActionTopic)
	v.SetDefault("broker.kafka.reaction_topic", constants.DefaultReactionTopic)
	v.SetDefault("broker.kafka.config_update_topic", constants.DefaultConfigUpdateTopic)
	v.SetDefault("broker.kafka.dlq_topic", constants.DefaultDLQTopic)
	v.SetDefault("broker.kafka.retry.multiplier", 2.0)

	v.SetDefault("evaluator.reload.interval_seconds", constants.DefaultReloadIntervalSeconds)
	v.SetDefault("evaluator.reacting.enabled", true)

	v.SetDefault("dispatch.timeout", constants.DefaultDispatchTimeout)
	v.SetDefault("performer.http_timeout", constants.DefaultHTTPTimeout)

	v.SetDefault("records.collection", "hma_records")

	v.SetDefault("dedup.ttl", constants.DefaultPerformTTL)
	v.SetDefault("dedup.on_redis_error", constants.FallbackAllow)
	v.SetDefault("dedup.memory_size", 10000)

	v.SetDefault("database.mongodb.database", constants.DefaultMongoDBName)
}

func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	v.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	v.BindEnv("broker.kafka.match_topic", "BROKER_KAFKA_MATCH_TOPIC")
	v.BindEnv("broker.kafka.action_topic", "BROKER_KAFKA_ACTION_TOPIC")
	v.BindEnv("broker.kafka.reaction_topic", "BROKER_KAFKA_REACTION_TOPIC")
	v.BindEnv("broker.kafka.config_update_topic", "BROKER_KAFKA_CONFIG_UPDATE_TOPIC")
	v.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	v.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	v.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	v.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	v.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	v.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	v.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	v.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	v.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	v.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	v.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	v.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	v.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	v.BindEnv("server.port", "SERVER_PORT")

	v.BindEnv("logging.level", "LOGGING_LEVEL")
	v.BindEnv("logging.format", "LOGGING_FORMAT")

	v.BindEnv("evaluator.reacting.enabled", "EVALUATOR_REACTING_ENABLED")
	v.BindEnv("records.enabled", "RECORDS_ENABLED")

	v.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	v.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

// applyEnvOverrides handles values viper cannot decode from a plain string.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if brokersEnv := v.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
}
