package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	pkgerrors "actioner/pkg/errors"
	"actioner/pkg/metrics"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store is the read side the catalog reloads from.
type Store interface {
	List(ctx context.Context) ([]Entry, error)
}

// Writer is implemented by stores that accept configuration changes.
type Writer interface {
	Put(ctx context.Context, e Entry, changedBy string) (Entry, error)
	Delete(ctx context.Context, configType, name string) error
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate brings the config tables up to date.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (s *PostgresStore) List(ctx context.Context) (entries []Entry, err error) {
	defer observe("list", time.Now(), &err)

	query := `
		SELECT config_type, name, subtype, version, fields, updated_at
		FROM config_entries
		ORDER BY config_type ASC, name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query config entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e Entry
		var fields []byte
		if err := rows.Scan(&e.ConfigType, &e.Name, &e.Subtype, &e.Version, &fields, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan config entry: %w", err)
		}
		e.Fields = fields
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}

func (s *PostgresStore) Get(ctx context.Context, configType, name string) (e Entry, err error) {
	defer observe("get", time.Now(), &err)

	query := `
		SELECT config_type, name, subtype, version, fields, updated_at
		FROM config_entries
		WHERE config_type = $1 AND name = $2
	`

	var fields []byte
	err = s.db.QueryRowContext(ctx, query, configType, name).Scan(
		&e.ConfigType, &e.Name, &e.Subtype, &e.Version, &fields, &e.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, pkgerrors.ErrNotFound.WithCause(err).
			WithDetail("message", fmt.Sprintf("%s %q not found", configType, name))
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get config entry: %w", err)
	}
	e.Fields = fields

	return e, nil
}

// Put inserts or replaces an entry, bumps its version and records the new
// version in config_entry_versions, all in one transaction.
func (s *PostgresStore) Put(ctx context.Context, e Entry, changedBy string) (_ Entry, err error) {
	defer observe("put", time.Now(), &err)

	if e.ConfigType == "" || e.Name == "" {
		return Entry{}, pkgerrors.ErrValidation.WithDetail("message", "config_type and name are required")
	}
	if len(e.Fields) == 0 {
		e.Fields = []byte("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	upsert := `
		INSERT INTO config_entries (config_type, name, subtype, version, fields, updated_at)
		VALUES ($1, $2, $3, 1, $4, NOW())
		ON CONFLICT (config_type, name) DO UPDATE
		SET subtype = EXCLUDED.subtype,
		    fields = EXCLUDED.fields,
		    version = config_entries.version + 1,
		    updated_at = NOW()
		RETURNING version, updated_at
	`

	if err = tx.QueryRowContext(ctx, upsert, e.ConfigType, e.Name, e.Subtype, string(e.Fields)).Scan(&e.Version, &e.UpdatedAt); err != nil {
		return Entry{}, fmt.Errorf("failed to upsert config entry: %w", err)
	}

	history := `
		INSERT INTO config_entry_versions (id, config_type, name, subtype, version, fields, changed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if _, err = tx.ExecContext(ctx, history,
		uuid.New().String(), e.ConfigType, e.Name, e.Subtype, e.Version, string(e.Fields), changedBy, e.UpdatedAt,
	); err != nil {
		return Entry{}, fmt.Errorf("failed to record config entry version: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return Entry{}, fmt.Errorf("failed to commit config entry: %w", err)
	}

	return e, nil
}

func (s *PostgresStore) Delete(ctx context.Context, configType, name string) (err error) {
	defer observe("delete", time.Now(), &err)

	res, err := s.db.ExecContext(ctx, `DELETE FROM config_entries WHERE config_type = $1 AND name = $2`, configType, name)
	if err != nil {
		return fmt.Errorf("failed to delete config entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("%s %q not found", configType, name))
	}

	return nil
}

// History returns every stored version of an entry, newest first.
func (s *PostgresStore) History(ctx context.Context, configType, name string) (versions []EntryVersion, err error) {
	defer observe("history", time.Now(), &err)

	query := `
		SELECT id, config_type, name, subtype, version, fields, changed_by, created_at
		FROM config_entry_versions
		WHERE config_type = $1 AND name = $2
		ORDER BY version DESC
	`

	rows, err := s.db.QueryContext(ctx, query, configType, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v EntryVersion
		var fields []byte
		if err := rows.Scan(&v.ID, &v.ConfigType, &v.Name, &v.Subtype, &v.Version, &fields, &v.ChangedBy, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		v.Fields = fields
		versions = append(versions, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return versions, nil
}

func observe(operation string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = "error"
	}
	metrics.IncDatabaseQuery("postgres", operation, status)
	metrics.ObserveDatabaseQueryDuration("postgres", operation, time.Since(start))
}
