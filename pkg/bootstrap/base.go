package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"actioner/internal/broker"
	"actioner/internal/config"
	"actioner/internal/logger"
)

type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
	Consumer broker.Consumer

	configConsumer broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

func (b *Base) InitBroker(serviceName string) error {
	producer, err := broker.NewProducer(b.Config.Broker, serviceName, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}

	consumer, err := broker.NewConsumer(b.Config.Broker, b.Logger)
	if err != nil {
		producer.Close()
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	if serviceName != "" {
		consumer.SetServiceName(serviceName)
	}

	b.Producer = producer
	b.Consumer = consumer
	return nil
}

// ConfigConsumer returns a consumer for the config update topic in a
// consumer group of its own, so every replica sees every update.
func (b *Base) ConfigConsumer(serviceName string) broker.Consumer {
	if b.configConsumer != nil {
		return b.configConsumer
	}
	consumer := broker.NewKafkaConsumerWithGroup(b.Config.Broker.Kafka, ConfigGroupID(b.Config.Broker.Kafka.GroupID), b.Logger)
	consumer.SetServiceName(serviceName)
	b.configConsumer = consumer
	return consumer
}

// ConfigGroupID derives a per-process consumer group from the service group.
func ConfigGroupID(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("%s-config-%s-%s", base, host, uuid.NewString()[:8])
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
	}

	if b.Consumer != nil {
		if err := b.Consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	if b.configConsumer != nil {
		if err := b.configConsumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("config consumer close error: %w", err))
		}
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Infow("Shutting down application...")

	var errs []error

	errs = append(errs, b.ShutdownBroker()...)

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Infow("Application exited successfully")
	return nil
}
