package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"actioner/internal/config"
	"actioner/internal/constants"
	"actioner/internal/logger"
	"actioner/pkg/errors"
	"actioner/pkg/logging"
	"actioner/pkg/metrics"
	"actioner/pkg/retry"
	"actioner/pkg/tracing"
)

type KafkaProducer struct {
	writer      *kafka.Writer
	logger      logger.Logger
	serviceName string
}

func NewKafkaProducer(cfg config.KafkaConfig, serviceName string, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           constants.KafkaBatchTimeout,
		WriteTimeout:           constants.KafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Async:                  false,
	}
	return &KafkaProducer{writer: w, logger: log, serviceName: serviceName}
}

func (p *KafkaProducer) Publish(ctx context.Context, topic string, msg Message) error {
	start := time.Now()

	headers := toKafkaHeaders(msg.Headers)
	headers = tracing.InjectTraceContext(ctx, headers)

	err := p.writer.WriteMessages(ctx,
		kafka.Message{
			Topic:   topic,
			Key:     msg.Key,
			Value:   msg.Value,
			Headers: headers,
			Time:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.IncKafkaMessagesWritten(p.serviceName, topic)
	metrics.ObserveKafkaMessageSize(p.serviceName, topic, "out", len(msg.Value))
	metrics.ObserveKafkaWriteDuration(p.serviceName, topic, time.Since(start))
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	groupID     string
	wg          sync.WaitGroup
	readerMu    sync.Mutex
	reader      *kafka.Reader
	logger      logger.Logger
	dlqProducer Producer
	serviceName string
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	return NewKafkaConsumerWithGroup(cfg, cfg.GroupID, log)
}

// NewKafkaConsumerWithGroup overrides the consumer group. Broadcast topics
// such as config updates use a group per process so every instance sees
// every event.
func NewKafkaConsumerWithGroup(cfg config.KafkaConfig, groupID string, log logger.Logger) *KafkaConsumer {
	consumer := &KafkaConsumer{
		cfg:         cfg,
		groupID:     groupID,
		logger:      log,
		serviceName: "unknown",
	}

	if cfg.DLQTopic != "" {
		consumer.dlqProducer = NewKafkaProducer(cfg, "dlq", log)
	}

	return consumer
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
}

// Consume blocks until ctx is done. Messages are committed once the handler
// succeeded or the message was handed to the DLQ. A message that can be
// neither stops consumption with its offset uncommitted, so the group
// redelivers it once the consumer restarts.
func (c *KafkaConsumer) Consume(ctx context.Context, topic string, handler HandlerFunc) error {
	c.logger.Infow("Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.groupID,
		"service_name", c.serviceName,
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  c.cfg.Brokers,
		GroupID:  c.groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	c.readerMu.Lock()
	c.reader = reader
	c.readerMu.Unlock()

	stopped := make(chan error, 1)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		consumeCtx := logging.WithServiceName(ctx, c.serviceName)
		c.logger.InfowCtx(consumeCtx, "Started consuming",
			"topic", topic,
		)

		for {
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.InfowCtx(consumeCtx, "Stopped consuming",
						"topic", topic,
						"reason", "context canceled",
					)
					return
				}
				c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
					"error", err,
					"topic", topic,
				)
				time.Sleep(time.Second)
				continue
			}

			metrics.IncKafkaMessagesRead(c.serviceName, topic)
			metrics.ObserveKafkaMessageSize(c.serviceName, topic, "in", len(m.Value))

			if err := c.handle(ctx, reader, m, handler, topic); err != nil {
				stopped <- err
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-stopped:
		return err
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, reader *kafka.Reader, m kafka.Message, handler HandlerFunc, topic string) error {
	msgCtx, span := tracing.StartSpanFromKafkaMessage(ctx, "kafka.consume", m.Headers)
	defer span.End()

	msg := fromKafkaMessage(m)
	msgID := msg.Headers[HeaderMessageID]
	if msgID == "" {
		msgID = fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset)
	}
	msgCtx = logging.WithMessageID(msgCtx, msgID)
	msgCtx = logging.WithServiceName(msgCtx, c.serviceName)
	if traceID := span.SpanContext().TraceID(); traceID.IsValid() {
		msgCtx = logging.WithTraceID(msgCtx, traceID.String())
	}

	err := c.processMessageWithRetry(msgCtx, msg, handler, topic)
	if err != nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to process message after retries",
			"error", err,
			"topic", topic,
		)
		if settleErr := c.settle(msgCtx, msg, err, topic); settleErr != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.ErrorwCtx(msgCtx, "Failed to send message to DLQ, leaving it uncommitted",
				"error", settleErr,
				"topic", topic,
				"offset", m.Offset,
			)
			return settleErr
		}
	}

	if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.logger.ErrorwCtx(msgCtx, "Failed to commit message",
			"error", err,
			"topic", topic,
		)
	}
	return nil
}

// settle hands a message that failed processing to the DLQ, retrying the
// publish. A nil result means the message may be committed.
func (c *KafkaConsumer) settle(ctx context.Context, msg Message, procErr error, topic string) error {
	if c.dlqProducer == nil {
		c.logger.WarnwCtx(ctx, "No DLQ configured, committing message to avoid blocking",
			"topic", topic,
		)
		return nil
	}

	err := retry.RetryWithCallback(ctx, c.retryPolicy(), func() error {
		return c.sendToDLQ(ctx, msg, procErr, topic)
	}, func(attempt int, err error, nextDelay time.Duration) {
		c.logger.WarnwCtx(ctx, "Retrying DLQ publish",
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
	if err != nil {
		return fmt.Errorf("message from %s was neither processed nor dead-lettered: %w", topic, err)
	}
	return nil
}

func (c *KafkaConsumer) Close() error {
	var err error
	c.readerMu.Lock()
	if c.reader != nil {
		err = c.reader.Close()
	}
	c.readerMu.Unlock()
	if c.dlqProducer != nil {
		if closeErr := c.dlqProducer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	c.wg.Wait()
	return err
}

func (c *KafkaConsumer) retryPolicy() retry.Policy {
	return c.cfg.Retry.Policy()
}

func (c *KafkaConsumer) processMessageWithRetry(ctx context.Context, msg Message, handler HandlerFunc, topic string) error {
	policy := c.retryPolicy()

	return retry.RetryWithCallback(ctx, policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
				c.logger.ErrorwCtx(ctx, "Panic recovered during message processing",
					"error", err,
					"topic", topic,
				)
			}
		}()
		return handler(ctx, msg)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(c.serviceName, topic).Inc()
		c.logger.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}

func (c *KafkaConsumer) sendToDLQ(ctx context.Context, msg Message, originalErr error, sourceTopic string) error {
	dlqMsg := DeadLetter(msg, originalErr, sourceTopic, time.Now())

	if err := c.dlqProducer.Publish(ctx, c.cfg.DLQTopic, dlqMsg); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	reason := "max_retries_exceeded"
	if retry.IsFatal(originalErr) {
		reason = "fatal"
	}
	metrics.DLQMessagesTotal.WithLabelValues(c.serviceName, sourceTopic, reason).Inc()
	c.logger.InfowCtx(ctx, "Message sent to DLQ",
		"source_topic", sourceTopic,
		"dlq_topic", c.cfg.DLQTopic,
		"reason", originalErr.Error(),
	)

	return nil
}

// DeadLetter copies msg and records why and where it failed in its headers.
func DeadLetter(msg Message, cause error, sourceTopic string, at time.Time) Message {
	headers := make(map[string]string, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderDLQReason] = cause.Error()
	headers[HeaderDLQSourceTopic] = sourceTopic
	headers[HeaderDLQTimestamp] = at.UTC().Format(time.RFC3339Nano)

	return Message{Key: msg.Key, Value: msg.Value, Headers: headers}
}

func toKafkaHeaders(headers map[string]string) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers)+2)
	for k, v := range headers {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

func fromKafkaMessage(m kafka.Message) Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{Key: m.Key, Value: m.Value, Headers: headers}
}
