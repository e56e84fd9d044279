//go:build integration

package broker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actioner/internal/broker"
	"actioner/internal/config"
	"actioner/internal/logger"
	"actioner/internal/testinfra"
	"actioner/pkg/retry"
)

func TestKafkaPublishConsumeAndDeadLetter(t *testing.T) {
	brokers := testinfra.Kafka(t)
	cfg := config.KafkaConfig{
		Brokers:  brokers,
		GroupID:  "broker-test",
		DLQTopic: "test_dlq",
		Retry: config.RetryConfig{
			MaxAttempts:     2,
			InitialInterval: 10 * time.Millisecond,
			MaxInterval:     10 * time.Millisecond,
			Multiplier:      1,
		},
	}
	log := logger.NopLogger()

	producer := broker.NewKafkaProducer(cfg, "test", log)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	require.NoError(t, producer.Publish(ctx, "test_in", broker.Message{
		Key:     []byte("ok"),
		Value:   []byte(`{"n":1}`),
		Headers: map[string]string{broker.HeaderMessageID: "m-ok"},
	}))
	require.NoError(t, producer.Publish(ctx, "test_in", broker.Message{Key: []byte("bad"), Value: []byte(`{"n":2}`)}))

	var delivered, failedAttempts atomic.Int32
	consumer := broker.NewKafkaConsumer(cfg, log)
	consumeCtx, stop := context.WithCancel(ctx)
	go consumer.Consume(consumeCtx, "test_in", func(ctx context.Context, msg broker.Message) error {
		if string(msg.Key) == "bad" {
			failedAttempts.Add(1)
			return retry.NewFatalError(errors.New("cannot handle"))
		}
		assert.Equal(t, "m-ok", msg.Headers[broker.HeaderMessageID])
		delivered.Add(1)
		return nil
	})

	reader := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: "test_dlq", GroupID: "dlq-reader"})
	defer reader.Close()

	dead, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bad", string(dead.Key))

	headers := map[string]string{}
	for _, h := range dead.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "test_in", headers[broker.HeaderDLQSourceTopic])
	assert.Contains(t, headers[broker.HeaderDLQReason], "cannot handle")

	require.Eventually(t, func() bool { return delivered.Load() == 1 }, 30*time.Second, 100*time.Millisecond)
	assert.Equal(t, int32(1), failedAttempts.Load())

	stop()
	require.NoError(t, consumer.Close())
}
