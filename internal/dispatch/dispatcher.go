package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"actioner/internal/broker"
	"actioner/internal/config"
	"actioner/internal/constants"
	"actioner/internal/label"
	"actioner/internal/logger"
	"actioner/internal/match"
	pkgerrors "actioner/pkg/errors"
	"actioner/pkg/logging"
	"actioner/pkg/metrics"
	"actioner/pkg/retry"
	"actioner/pkg/tracing"
)

// messageNamespace seeds the deterministic message ids, so redelivering the
// same match produces the same ids downstream.
var messageNamespace = uuid.MustParse("5b0c6c1e-3f1a-4d8e-9a53-6e2f0f1d7c42")

// Failure is one outcome message that could not be published.
type Failure struct {
	Topic     string
	Label     string
	MessageID string
	Attempts  int
	Err       error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("dispatch of %s to %s failed after %d attempts: %v", f.Label, f.Topic, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Delivery records one published outcome message.
type Delivery struct {
	Topic     string
	Label     string
	MessageID string
	Attempts  int
}

type Report struct {
	Delivered []Delivery
	Failed    []*Failure
}

type outgoing struct {
	topic string
	label string
	msg   broker.Message
}

type Dispatcher struct {
	producer      broker.Producer
	actionTopic   string
	reactionTopic string
	policy        retry.Policy
	timeout       time.Duration
	logger        logger.Logger
}

func NewDispatcher(producer broker.Producer, topics config.KafkaConfig, cfg config.DispatchConfig, log logger.Logger) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultDispatchTimeout
	}
	return &Dispatcher{
		producer:      producer,
		actionTopic:   topics.ActionTopic,
		reactionTopic: topics.ReactionTopic,
		policy:        cfg.Retry.Policy(),
		timeout:       timeout,
		logger:        log,
	}
}

// MessageID derives a stable id for the outcome message of one label.
func MessageID(m match.Message, l label.Label) string {
	return uuid.NewSHA1(messageNamespace, []byte(m.ContentKey+"\x00"+m.ContentHash+"\x00"+l.String())).String()
}

// Dispatch publishes one message per action and per reaction. Messages are
// published concurrently and independently: a failing message never stops
// the others. The error, if any, wraps every Failure.
func (d *Dispatcher) Dispatch(ctx context.Context, m match.Message, actions []label.ActionLabel, reactions []label.ReactionLabel) (Report, error) {
	ctx, span := tracing.StartSpan(ctx, "dispatch", "dispatch")
	defer span.End()

	batch := make([]outgoing, 0, len(actions)+len(reactions))
	for _, a := range actions {
		payload, err := match.NewActionMessage(m, a).Encode()
		if err != nil {
			return Report{}, fmt.Errorf("failed to encode action message: %w", err)
		}
		batch = append(batch, d.outgoing(d.actionTopic, m, a.Label(), payload))
	}
	for _, r := range reactions {
		payload, err := match.NewReactionMessage(m, r).Encode()
		if err != nil {
			return Report{}, fmt.Errorf("failed to encode reaction message: %w", err)
		}
		batch = append(batch, d.outgoing(d.reactionTopic, m, r.Label(), payload))
	}

	deliveries := make([]Delivery, len(batch))
	failures := make([]*Failure, len(batch))

	// Goroutines never return an error so one failure does not cancel the
	// group context for the others.
	var g errgroup.Group
	for i, out := range batch {
		g.Go(func() error {
			attempts, err := d.publish(ctx, out)
			if err != nil {
				failures[i] = &Failure{Topic: out.topic, Label: out.label, MessageID: out.msg.Headers[broker.HeaderMessageID], Attempts: attempts, Err: err}
				return nil
			}
			deliveries[i] = Delivery{Topic: out.topic, Label: out.label, MessageID: out.msg.Headers[broker.HeaderMessageID], Attempts: attempts}
			return nil
		})
	}
	_ = g.Wait()

	var report Report
	var errs []error
	for i := range batch {
		if failures[i] != nil {
			report.Failed = append(report.Failed, failures[i])
			errs = append(errs, failures[i])
			continue
		}
		report.Delivered = append(report.Delivered, deliveries[i])
	}

	if len(errs) > 0 {
		return report, pkgerrors.ErrDispatchFailed.WithCause(errors.Join(errs...))
	}
	return report, nil
}

func (d *Dispatcher) outgoing(topic string, m match.Message, l label.Label, payload []byte) outgoing {
	return outgoing{
		topic: topic,
		label: l.String(),
		msg: broker.Message{
			Key:     []byte(m.ContentKey),
			Value:   payload,
			Headers: map[string]string{broker.HeaderMessageID: MessageID(m, l)},
		},
	}
}

// publish retries transient failures with backoff until the per-message
// timeout expires.
func (d *Dispatcher) publish(ctx context.Context, out outgoing) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	ctx = logging.WithMessageID(ctx, out.msg.Headers[broker.HeaderMessageID])

	start := time.Now()
	attempts := 0
	var lastErr error

	err := retry.RetryWithCallback(ctx, d.policy, func() error {
		attempts++
		lastErr = d.producer.Publish(ctx, out.topic, out.msg)
		return lastErr
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues("dispatch", out.topic).Inc()
		d.logger.WarnwCtx(ctx, "Publish failed, retrying",
			"topic", out.topic,
			"label", out.label,
			"attempt", attempt,
			"next_delay", nextDelay,
			"error", err,
		)
	})
	metrics.ObserveDispatchDuration(out.topic, time.Since(start))

	if err != nil {
		if lastErr != nil && !errors.Is(err, lastErr) {
			err = errors.Join(lastErr, err)
		}
		metrics.DispatchMessagesTotal.WithLabelValues(out.topic, "failed").Inc()
		d.logger.ErrorwCtx(ctx, "Failed to dispatch message",
			"topic", out.topic,
			"label", out.label,
			"attempts", attempts,
			"error", err,
		)
		return attempts, err
	}

	metrics.DispatchMessagesTotal.WithLabelValues(out.topic, "delivered").Inc()
	d.logger.DebugwCtx(ctx, "Dispatched message",
		"topic", out.topic,
		"label", out.label,
		"attempts", attempts,
	)
	return attempts, nil
}
