//go:build integration

package records_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"actioner/internal/records"
	"actioner/internal/testinfra"
	"actioner/pkg/migrations"
)

func TestMongoStore(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx := context.Background()

	require.NoError(t, migrations.EnsureRecordsCollection(ctx, db, records.CollectionName))
	require.NoError(t, migrations.EnsureRecordsCollection(ctx, db, records.CollectionName))

	store := records.NewMongoStore(db, "")
	now := time.Now().UTC().Truncate(time.Millisecond)

	hash := records.HashRecord{ContentKey: "images/1.jpg", ContentHash: "aa", Timestamp: now, Quality: 90}
	require.NoError(t, store.PutHashRecord(ctx, hash))

	for i, entry := range []string{"100", "200"} {
		require.NoError(t, store.PutMatchRecord(ctx, records.MatchRecord{
			ContentKey:  "images/1.jpg",
			ContentHash: "aa",
			Timestamp:   now.Add(time.Duration(i) * time.Second),
			BankEntryID: entry,
			TEHash:      "bb",
		}))
	}
	require.NoError(t, store.PutMatchRecord(ctx, records.MatchRecord{
		ContentKey:  "images/2.jpg",
		ContentHash: "cc",
		Timestamp:   now.Add(5 * time.Second),
		BankEntryID: "100",
		TEHash:      "bb",
	}))

	t.Run("by content key", func(t *testing.T) {
		hashes, matches, err := store.QueryByContentKey(ctx, "images/1.jpg")
		require.NoError(t, err)
		require.Len(t, hashes, 1)
		assert.Equal(t, 90, hashes[0].Quality)
		assert.True(t, now.Equal(hashes[0].Timestamp))
		require.Len(t, matches, 2)
		assert.Equal(t, "100", matches[0].BankEntryID)
		assert.Equal(t, "200", matches[1].BankEntryID)
	})

	t.Run("by bank entry", func(t *testing.T) {
		matches, err := store.QueryByBankEntry(ctx, "100")
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "images/1.jpg", matches[0].ContentKey)
		assert.Equal(t, "images/2.jpg", matches[1].ContentKey)
	})

	t.Run("by hash type", func(t *testing.T) {
		matches, err := store.QueryByHashType(ctx, records.SignalTypePDQ)
		require.NoError(t, err)
		assert.Len(t, matches, 3)
	})

	t.Run("first write wins", func(t *testing.T) {
		redelivered := hash
		redelivered.Quality = 40
		redelivered.Timestamp = now.Add(time.Hour)
		require.NoError(t, store.PutHashRecord(ctx, redelivered))

		require.NoError(t, store.PutMatchRecord(ctx, records.MatchRecord{
			ContentKey:  "images/1.jpg",
			ContentHash: "aa",
			Timestamp:   now.Add(time.Hour),
			BankEntryID: "100",
			TEHash:      "zz",
		}))

		hashes, matches, err := store.QueryByContentKey(ctx, "images/1.jpg")
		require.NoError(t, err)
		require.Len(t, hashes, 1)
		assert.Equal(t, 90, hashes[0].Quality)
		assert.True(t, now.Equal(hashes[0].Timestamp))
		require.Len(t, matches, 2)
		assert.Equal(t, "100", matches[0].BankEntryID)
		assert.True(t, now.Equal(matches[0].Timestamp))
		assert.Equal(t, "bb", matches[0].TEHash)
	})
}
