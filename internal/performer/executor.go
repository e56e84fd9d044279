package performer

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"actioner/internal/catalog"
	"actioner/internal/config"
	"actioner/internal/constants"
	"actioner/internal/dedup"
	"actioner/internal/logger"
	"actioner/internal/match"
	"actioner/pkg/circuitbreaker"
	"actioner/pkg/errors"
	"actioner/pkg/ratelimit"
	"actioner/pkg/retry"
	"actioner/pkg/tracing"
)

// SnapshotSource supplies the current catalog snapshot.
type SnapshotSource interface {
	Snapshot() (*catalog.Snapshot, error)
}

type cachedPerformer struct {
	version   int
	performer Performer
}

// Executor runs the performer configured for an action message. It claims
// the action first so a redelivered message does not repeat a successful
// call, and retries failed calls with backoff.
type Executor struct {
	source   SnapshotSource
	registry *Registry
	guard    *dedup.Guard
	client   *http.Client
	limiter  *ratelimit.Keyed
	breakers config.CircuitBreakerConfig
	policy   retry.Policy
	logger   logger.Logger

	mu         sync.Mutex
	performers map[string]cachedPerformer
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

func WithGuard(g *dedup.Guard) ExecutorOption {
	return func(e *Executor) { e.guard = g }
}

func WithRateLimiter(l *ratelimit.Keyed) ExecutorOption {
	return func(e *Executor) { e.limiter = l }
}

func WithCircuitBreakers(cfg config.CircuitBreakerConfig) ExecutorOption {
	return func(e *Executor) { e.breakers = cfg }
}

func WithHTTPClient(c *http.Client) ExecutorOption {
	return func(e *Executor) { e.client = c }
}

func NewExecutor(source SnapshotSource, registry *Registry, cfg config.PerformerConfig, log logger.Logger, opts ...ExecutorOption) *Executor {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	e := &Executor{
		source:     source,
		registry:   registry,
		client:     &http.Client{Timeout: timeout},
		policy:     cfg.Retry.Policy(),
		logger:     log,
		performers: make(map[string]cachedPerformer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute performs msg's action. Failures that retrying cannot fix are
// returned as fatal errors so the consumer dead-letters the message.
func (e *Executor) Execute(ctx context.Context, msg match.ActionMessage) error {
	action := msg.ActionLabel.Value()
	ctx, span := tracing.StartSpan(ctx, "performer", "execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("action", action),
		attribute.String("content_key", msg.ContentKey),
	)

	snap, err := e.source.Snapshot()
	if err != nil {
		return err
	}

	cfg, ok := snap.Performer(action)
	if !ok {
		return errors.ErrNotFound.
			WithCause(fmt.Errorf("no performer configured for action %s", action)).
			WithDetail("action", action)
	}

	p, err := e.performerFor(cfg)
	if err != nil {
		return errors.ErrPerformerFailed.WithCause(err).WithDetail("performer", cfg.Name).AsFatal()
	}

	key := dedup.Key(msg.ContentKey, msg.ContentHash, action)
	if e.guard != nil {
		claimed, err := e.guard.Claim(ctx, key)
		if err != nil {
			return err
		}
		if !claimed {
			e.logger.InfowCtx(ctx, "Action already performed, skipping",
				"action", action,
				"content_key", msg.ContentKey,
			)
			return nil
		}
	}

	var last Result
	err = retry.RetryWithCallback(ctx, e.policy, func() error {
		last = p.Perform(ctx, msg.Message)
		failure := last.Failure()
		if failure != nil && last.Permanent() {
			return retry.NewFatalError(failure)
		}
		return failure
	}, func(attempt int, err error, nextDelay time.Duration) {
		e.logger.WarnwCtx(ctx, "Retrying action performer",
			"performer", cfg.Name,
			"attempt", attempt,
			"max_attempts", e.policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
		)
	})
	if err != nil {
		if e.guard != nil {
			e.guard.Release(context.WithoutCancel(ctx), key)
		}
		e.logger.ErrorwCtx(ctx, "Action performer failed",
			"performer", cfg.Name,
			"status_code", last.StatusCode,
			"error", err,
		)
		return errors.ErrPerformerFailed.
			WithCause(err).
			WithDetail("performer", cfg.Name).
			WithDetail("status_code", last.StatusCode).
			AsFatal()
	}

	e.logger.InfowCtx(ctx, "Action performed",
		"performer", cfg.Name,
		"status_code", last.StatusCode,
		"duration_ms", last.Duration.Milliseconds(),
	)
	return nil
}

// performerFor returns the built performer for cfg, rebuilding it when the
// catalog holds a newer version.
func (e *Executor) performerFor(cfg catalog.PerformerConfig) (Performer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cached, ok := e.performers[cfg.Name]; ok && cached.version == cfg.Version {
		return cached.performer, nil
	}

	p, err := e.registry.Build(cfg, e.client)
	if err != nil {
		return nil, err
	}

	var breaker *circuitbreaker.Wrapper
	if e.breakers.Enabled {
		breaker = circuitbreaker.NewWrapper(circuitbreaker.FromSettings("performer-"+cfg.Name, e.breakers))
	}
	p = NewGuarded(p, breaker, e.limiter)

	e.performers[cfg.Name] = cachedPerformer{version: cfg.Version, performer: p}
	return p, nil
}
