package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actioner/internal/config"
	"actioner/internal/constants"
	"actioner/internal/logger"
)

type failingRepository struct {
	err   error
	calls int
}

func (r *failingRepository) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	r.calls++
	return false, r.err
}

func (r *failingRepository) Delete(ctx context.Context, key string) error {
	r.calls++
	return r.err
}

func TestGuardClaimsOnce(t *testing.T) {
	g := NewGuard(NewMemoryRepository(100, time.Minute), config.DedupConfig{}, logger.NopLogger())
	ctx := context.Background()
	key := Key("images/1.jpg", "aa", "EnqueueForReview")

	claimed, err := g.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = g.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)

	g.Release(ctx, key)
	claimed, err = g.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestKeyIsStableAndPrefixed(t *testing.T) {
	a := Key("images/1.jpg", "aa", "EnqueueForReview")
	assert.Equal(t, a, Key("images/1.jpg", "aa", "EnqueueForReview"))
	assert.NotEqual(t, a, Key("images/1.jpg", "aa", "Notify"))
	assert.Contains(t, a, constants.CacheKeyPrefixPerform)
	assert.Len(t, a, len(constants.CacheKeyPrefixPerform)+64)
}

func TestGuardStoreErrorFallbacks(t *testing.T) {
	storeErr := errors.New("connection refused")

	allow := NewGuard(&failingRepository{err: storeErr}, config.DedupConfig{OnRedisError: constants.FallbackAllow}, logger.NopLogger())
	claimed, err := allow.Claim(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, claimed)

	fail := NewGuard(&failingRepository{err: storeErr}, config.DedupConfig{OnRedisError: constants.FallbackFail}, logger.NopLogger())
	claimed, err = fail.Claim(context.Background(), "k")
	require.ErrorIs(t, err, storeErr)
	assert.False(t, claimed)

	// Release errors are logged, never surfaced.
	fail.Release(context.Background(), "k")
}

func TestGuardRespectsCancelledContext(t *testing.T) {
	repo := &failingRepository{}
	g := NewGuard(repo, config.DedupConfig{}, logger.NopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Claim(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, repo.calls)
}

func TestCircuitBreakerRepositoryOpensOnFailures(t *testing.T) {
	inner := &failingRepository{err: errors.New("connection refused")}
	repo := NewCircuitBreakerRepository(inner, config.CircuitBreakerConfig{
		Enabled:      true,
		MinRequests:  2,
		FailureRatio: 0.5,
		Timeout:      time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := repo.SetNX(ctx, "k", 1, time.Minute)
		require.Error(t, err)
	}
	assert.Equal(t, "open", repo.State())

	_, err := repo.SetNX(ctx, "k", 1, time.Minute)
	require.Error(t, err)
	assert.Equal(t, 2, inner.calls)

	disabled := NewCircuitBreakerRepository(NewMemoryRepository(10, time.Minute), config.CircuitBreakerConfig{})
	assert.Equal(t, "disabled", disabled.State())
	ok, err := disabled.SetNX(ctx, "k", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, disabled.Delete(ctx, "k"))
}

func TestMemoryRepositoryExpires(t *testing.T) {
	repo := NewMemoryRepository(10, 20*time.Millisecond)
	ctx := context.Background()

	ok, err := repo.SetNX(ctx, "k", 1, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Eventually(t, func() bool {
		ok, _ := repo.SetNX(ctx, "k", 1, 0)
		return ok
	}, time.Second, 10*time.Millisecond)
}
