package sqlitex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrSchemaMismatch is returned when an existing database was created with a
// different schema version than the one the binary expects.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// EnsureSchema creates ddl plus a schema_version row on an empty database, or
// checks that an initialized database carries version. There are no
// migrations; a mismatch means the file has to be recreated.
func EnsureSchema(ctx context.Context, db *sql.DB, ddl string, version int) error {
	ctx = EnsureContext(ctx)

	var initialized int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&initialized); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if initialized == 0 {
		return createSchema(ctx, db, ddl, version)
	}

	var found int
	if err := db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&found); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if found != version {
		return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, found, version)
	}
	return nil
}

// SchemaVersion reads the recorded version. It returns 0 when the table
// exists but holds no row.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(EnsureContext(ctx), "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return version, err
}

func createSchema(ctx context.Context, db *sql.DB, ddl string, version int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
