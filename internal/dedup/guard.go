package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"actioner/internal/config"
	"actioner/internal/constants"
	"actioner/internal/logger"
	"actioner/pkg/metrics"
	"actioner/pkg/tracing"
)

// Guard makes performing an action idempotent across redeliveries: a
// performer claims the action before running it and releases the claim if
// the action fails.
type Guard struct {
	repo    Repository
	ttl     time.Duration
	onError string
	logger  logger.Logger
}

func NewGuard(repo Repository, cfg config.DedupConfig, log logger.Logger) *Guard {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = constants.DefaultPerformTTL
	}
	onError := strings.ToLower(cfg.OnRedisError)
	if onError == "" {
		onError = constants.FallbackAllow
	}
	return &Guard{
		repo:    repo,
		ttl:     ttl,
		onError: onError,
		logger:  log,
	}
}

// Key hashes the identifying parts of an action into a claim key.
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return constants.CacheKeyPrefixPerform + hex.EncodeToString(sum[:])
}

// Claim reports whether the caller now owns key. A store error is either
// treated as a successful claim or returned, depending on on_redis_error.
func (g *Guard) Claim(ctx context.Context, key string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup", "claim")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	claimed, err := g.repo.SetNX(ctx, key, time.Now().Unix(), g.ttl)
	if err != nil {
		metrics.PerformDedupTotal.WithLabelValues("error").Inc()
		if g.onError == constants.FallbackAllow {
			metrics.FallbackUsageTotal.WithLabelValues("dedup", "allow_on_error", "store_error").Inc()
			g.logger.WarnwCtx(ctx, "Perform guard unavailable, performing anyway (fallback: allow)",
				"error", err,
			)
			return true, nil
		}
		metrics.FallbackUsageTotal.WithLabelValues("dedup", "fail_on_error", "store_error").Inc()
		return false, fmt.Errorf("perform guard unavailable: %w", err)
	}

	if claimed {
		metrics.PerformDedupTotal.WithLabelValues("claimed").Inc()
	} else {
		metrics.PerformDedupTotal.WithLabelValues("duplicate").Inc()
	}
	return claimed, nil
}

// Release drops a claim so that a later redelivery can try again.
func (g *Guard) Release(ctx context.Context, key string) {
	if err := g.repo.Delete(ctx, key); err != nil {
		g.logger.WarnwCtx(ctx, "Failed to release perform claim",
			"key", key,
			"error", err,
		)
		return
	}
	metrics.PerformDedupTotal.WithLabelValues("released").Inc()
}
