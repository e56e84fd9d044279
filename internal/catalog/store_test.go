package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "actioner/pkg/errors"
)

var entryColumns = []string{"config_type", "name", "subtype", "version", "fields", "updated_at"}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStoreList(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT config_type, name, subtype, version, fields, updated_at FROM config_entries ORDER BY`).
		WillReturnRows(sqlmock.NewRows(entryColumns).
			AddRow("Action", "A", "", 2, []byte(`{"priority":1}`), now).
			AddRow("ActionPerformer", "A", "WebhookPostActionPerformer", 1, []byte(`{"url":"http://x"}`), now))

	entries, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{ConfigType: "Action", Name: "A", Version: 2, Fields: []byte(`{"priority":1}`), UpdatedAt: now}, entries[0])
	assert.Equal(t, "WebhookPostActionPerformer", entries[1].Subtype)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreListError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM config_entries`).WillReturnError(errors.New("connection refused"))

	_, err := store.List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPostgresStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM config_entries WHERE config_type = \$1 AND name = \$2`).
		WithArgs("Action", "missing").
		WillReturnRows(sqlmock.NewRows(entryColumns))

	_, err := store.Get(context.Background(), "Action", "missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestPostgresStorePutBumpsVersionAndRecordsHistory(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fields := `{"priority":3}`

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO config_entries .* ON CONFLICT \(config_type, name\) DO UPDATE .* RETURNING version, updated_at`).
		WithArgs("Action", "A", "", fields).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(4, now))
	mock.ExpectExec(`INSERT INTO config_entry_versions`).
		WithArgs(sqlmock.AnyArg(), "Action", "A", "", 4, fields, "alice", now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	saved, err := store.Put(context.Background(), Entry{ConfigType: "Action", Name: "A", Fields: []byte(fields)}, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, saved.Version)
	assert.Equal(t, now, saved.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorePutRollsBackOnHistoryFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO config_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(1, time.Now()))
	mock.ExpectExec(`INSERT INTO config_entry_versions`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.Put(context.Background(), Entry{ConfigType: "Action", Name: "A"}, "alice")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorePutRequiresKey(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.Put(context.Background(), Entry{ConfigType: "Action"}, "alice")
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestPostgresStoreDelete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM config_entries`).WithArgs("Action", "A").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM config_entries`).WithArgs("Action", "B").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(context.Background(), "Action", "A"))

	err := store.Delete(context.Background(), "Action", "B")
	assert.True(t, pkgerrors.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreHistory(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM config_entry_versions .* ORDER BY version DESC`).
		WithArgs("Action", "A").
		WillReturnRows(sqlmock.NewRows([]string{"id", "config_type", "name", "subtype", "version", "fields", "changed_by", "created_at"}).
			AddRow("id-2", "Action", "A", "", 2, []byte(`{"priority":2}`), "bob", now).
			AddRow("id-1", "Action", "A", "", 1, []byte(`{"priority":1}`), "alice", now.Add(-time.Hour)))

	versions, err := store.History(context.Background(), "Action", "A")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, "bob", versions[0].ChangedBy)
	assert.Equal(t, "alice", versions[1].ChangedBy)
}
