package performer

import (
	"context"
	"fmt"
	"time"

	"actioner/internal/match"
	"actioner/pkg/circuitbreaker"
	"actioner/pkg/metrics"
	"actioner/pkg/ratelimit"
)

// Guarded puts a performer behind its destination's rate limiter and circuit
// breaker. Either may be nil.
type Guarded struct {
	inner   Performer
	breaker *circuitbreaker.Wrapper
	limiter *ratelimit.Keyed
}

func NewGuarded(inner Performer, breaker *circuitbreaker.Wrapper, limiter *ratelimit.Keyed) *Guarded {
	return &Guarded{inner: inner, breaker: breaker, limiter: limiter}
}

func (g *Guarded) Name() string {
	return g.inner.Name()
}

func (g *Guarded) Perform(ctx context.Context, m match.Message) Result {
	start := time.Now()
	name := g.inner.Name()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, name); err != nil {
			return g.observe(Result{Performer: name, Err: fmt.Errorf("rate limit wait: %w", err)}, start)
		}
	}

	if g.breaker == nil {
		return g.observe(g.inner.Perform(ctx, m), start)
	}

	// Client errors are answers from a healthy endpoint and do not count
	// against the breaker.
	var result Result
	_, err := circuitbreaker.Run(ctx, g.breaker, func() (struct{}, error) {
		result = g.inner.Perform(ctx, m)
		if result.Success() || result.Permanent() {
			return struct{}{}, nil
		}
		return struct{}{}, result.Failure()
	})
	if err != nil && result.Performer == "" {
		result = Result{Performer: name, Err: err}
	}
	return g.observe(result, start)
}

func (g *Guarded) observe(r Result, start time.Time) Result {
	status := "success"
	switch {
	case r.Err != nil:
		status = "error"
	case !r.Success():
		status = fmt.Sprintf("%dxx", r.StatusCode/100)
	}
	metrics.PerformerRequestsTotal.WithLabelValues(r.Performer, status).Inc()
	metrics.ObservePerformerDuration(r.Performer, time.Since(start))
	return r
}
