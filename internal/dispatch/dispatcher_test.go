package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actioner/internal/broker"
	"actioner/internal/config"
	"actioner/internal/label"
	"actioner/internal/logger"
	"actioner/internal/match"
	pkgerrors "actioner/pkg/errors"
)

type published struct {
	topic string
	msg   broker.Message
}

// flakyProducer fails publishes whose payload contains a configured needle
// and records every successful publish.
type flakyProducer struct {
	mu        sync.Mutex
	failFirst map[string]int
	alwaysErr map[string]bool
	block     bool
	calls     map[string]int
	delivered []published
}

func newFlakyProducer() *flakyProducer {
	return &flakyProducer{
		failFirst: map[string]int{},
		alwaysErr: map[string]bool{},
		calls:     map[string]int{},
	}
}

func (p *flakyProducer) Publish(ctx context.Context, topic string, msg broker.Message) error {
	if p.block {
		<-ctx.Done()
		return ctx.Err()
	}

	id := string(msg.Value)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[id]++

	for needle := range p.alwaysErr {
		if strings.Contains(id, needle) {
			return errors.New("broker unavailable")
		}
	}
	for needle, n := range p.failFirst {
		if strings.Contains(id, needle) && p.calls[id] <= n {
			return errors.New("leader not available")
		}
	}

	p.delivered = append(p.delivered, published{topic: topic, msg: msg})
	return nil
}

func (p *flakyProducer) Close() error { return nil }

var topics = config.KafkaConfig{ActionTopic: "hma_actions", ReactionTopic: "hma_reactions"}

func fastRetry(timeout time.Duration) config.DispatchConfig {
	return config.DispatchConfig{
		Timeout: timeout,
		Retry: config.RetryConfig{
			MaxAttempts:     5,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      1.5,
			MaxElapsedTime:  time.Second,
		},
	}
}

var sample = match.Message{
	ContentKey:  "images/1.jpg",
	ContentHash: "f8f8f0cee0f4a84f06370a22038f63f0b36e2ed596621e1d33e6b39c4e9c9b22",
	MatchingBankedSignals: []match.BankedSignal{{
		BankedContentID: "2862392437204724",
		BankID:          "303636684709969",
		BankSource:      "te",
	}},
}

func TestPublishFailsTwiceThenSucceeds(t *testing.T) {
	producer := newFlakyProducer()
	producer.failFirst["EnqueueForReview"] = 2
	d := NewDispatcher(producer, topics, fastRetry(time.Second), logger.NopLogger())

	report, err := d.Dispatch(context.Background(), sample, []label.ActionLabel{label.Action("EnqueueForReview")}, nil)
	require.NoError(t, err)

	require.Len(t, producer.delivered, 1)
	assert.Equal(t, "hma_actions", producer.delivered[0].topic)
	assert.Empty(t, report.Failed)
	require.Len(t, report.Delivered, 1)
	assert.Equal(t, 3, report.Delivered[0].Attempts)

	decoded, err := match.DecodeActionMessage(producer.delivered[0].msg.Value)
	require.NoError(t, err)
	assert.Equal(t, label.Action("EnqueueForReview"), decoded.ActionLabel)
	assert.Equal(t, sample.ContentKey, string(producer.delivered[0].msg.Key))
}

func TestFailuresAreIndependent(t *testing.T) {
	producer := newFlakyProducer()
	producer.alwaysErr["Broken"] = true
	d := NewDispatcher(producer, topics, fastRetry(time.Second), logger.NopLogger())

	actions := []label.ActionLabel{label.Action("EnqueueForReview"), label.Action("Broken"), label.Action("Notify")}
	reactions := []label.ReactionLabel{label.ThreatExchangeReaction("SAW_THIS_TOO")}

	report, err := d.Dispatch(context.Background(), sample, actions, reactions)
	require.Error(t, err)
	assert.True(t, errors.Is(err, pkgerrors.ErrDispatchFailed))

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "Action:Broken", failure.Label)
	assert.Equal(t, 5, failure.Attempts)

	require.Len(t, report.Failed, 1)
	require.Len(t, report.Delivered, 3)
	assert.Equal(t, "Action:EnqueueForReview", report.Delivered[0].Label)
	assert.Equal(t, "Action:Notify", report.Delivered[1].Label)
	assert.Equal(t, "hma_reactions", report.Delivered[2].Topic)
	assert.Len(t, producer.delivered, 3)
}

func TestPublishBoundedByTimeout(t *testing.T) {
	producer := newFlakyProducer()
	producer.block = true
	d := NewDispatcher(producer, topics, fastRetry(50*time.Millisecond), logger.NopLogger())

	start := time.Now()
	report, err := d.Dispatch(context.Background(), sample, []label.ActionLabel{label.Action("EnqueueForReview")}, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0], context.DeadlineExceeded)
}

func TestNothingToDispatch(t *testing.T) {
	producer := newFlakyProducer()
	d := NewDispatcher(producer, topics, fastRetry(time.Second), logger.NopLogger())

	report, err := d.Dispatch(context.Background(), sample, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Delivered)
	assert.Empty(t, producer.delivered)
}

func TestMessageIDsAreStable(t *testing.T) {
	producer := newFlakyProducer()
	d := NewDispatcher(producer, topics, fastRetry(time.Second), logger.NopLogger())
	actions := []label.ActionLabel{label.Action("EnqueueForReview")}

	first, err := d.Dispatch(context.Background(), sample, actions, nil)
	require.NoError(t, err)
	second, err := d.Dispatch(context.Background(), sample, actions, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Delivered[0].MessageID, second.Delivered[0].MessageID)
	assert.Equal(t, first.Delivered[0].MessageID, producer.delivered[0].msg.Headers[broker.HeaderMessageID])
	assert.NotEqual(t, MessageID(sample, label.Action("Notify").Label()), first.Delivered[0].MessageID)
}
