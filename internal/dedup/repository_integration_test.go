//go:build integration

package dedup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actioner/internal/config"
	"actioner/internal/dedup"
	"actioner/internal/logger"
	"actioner/internal/testinfra"
)

func TestRedisGuard(t *testing.T) {
	client := testinfra.Redis(t)
	guard := dedup.NewGuard(dedup.NewRedisRepository(client), config.DedupConfig{TTL: time.Minute}, logger.NopLogger())
	ctx := context.Background()
	key := dedup.Key("images/1.jpg", "aa", "EnqueueForReview")

	claimed, err := guard.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = guard.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)

	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	guard.Release(ctx, key)
	exists, err := client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}
