package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"actioner/pkg/metrics"
)

type limiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimitConfig struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

// Keyed holds one token bucket per key, such as a webhook destination or a
// client IP. Buckets unused for MaxAge are dropped by Cleanup.
type Keyed struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	limiters map[string]*limiter
}

func NewKeyed(cfg RateLimitConfig) *Keyed {
	defaults := DefaultConfig()
	if cfg.RPS <= 0 {
		cfg.RPS = defaults.RPS
	}
	if cfg.Burst < 1 {
		cfg.Burst = defaults.Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = defaults.MaxAge
	}
	return &Keyed{cfg: cfg, limiters: make(map[string]*limiter)}
}

func (k *Keyed) get(key string) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.limiters[key]
	if !ok {
		l = &limiter{limiter: rate.NewLimiter(rate.Limit(k.cfg.RPS), k.cfg.Burst)}
		k.limiters[key] = l
	}
	l.lastSeen = time.Now()
	return l.limiter
}

// Allow takes a token for key without waiting.
func (k *Keyed) Allow(key string) bool {
	if !k.get(key).Allow() {
		metrics.RateLimitRequestsTotal.WithLabelValues(key, "limited").Inc()
		return false
	}
	metrics.RateLimitRequestsTotal.WithLabelValues(key, "allowed").Inc()
	return true
}

// Wait blocks until key has a token or ctx ends.
func (k *Keyed) Wait(ctx context.Context, key string) error {
	l := k.get(key)
	if l.Allow() {
		metrics.RateLimitRequestsTotal.WithLabelValues(key, "allowed").Inc()
		return nil
	}
	metrics.RateLimitRequestsTotal.WithLabelValues(key, "delayed").Inc()
	return l.Wait(ctx)
}

// Remaining reports the whole tokens currently available for key.
func (k *Keyed) Remaining(key string) int {
	remaining := int(k.get(key).Tokens())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

// Cleanup drops buckets not used since now minus MaxAge.
func (k *Keyed) Cleanup(now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, l := range k.limiters {
		if now.Sub(l.lastSeen) > k.cfg.MaxAge {
			delete(k.limiters, key)
		}
	}
}

// Run calls Cleanup every CleanupInterval until ctx ends.
func (k *Keyed) Run(ctx context.Context) {
	ticker := time.NewTicker(k.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			k.Cleanup(now)
		}
	}
}
