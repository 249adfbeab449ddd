package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"metaprop/internal/config"
	"metaprop/internal/record"
	"metaprop/internal/sqlitex"
)

// Store persists records in SQLite and answers reverse relation lookups.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var (
	_ record.Store = (*Store)(nil)
	_ record.Graph = (*Store)(nil)
)

// Open initializes or connects to the records database configured in cfg.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.Paths.RecordsDB)
}

// OpenPath initializes or connects to the records database at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sqlitex.Open(dbPath)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, path: dbPath, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Find loads a record. Unknown ids yield an error matching record.ErrNotFound.
func (s *Store) Find(ctx context.Context, id uuid.UUID) (*record.Record, error) {
	ctx = sqlitex.EnsureContext(ctx)
	var entityType string
	err := s.db.QueryRowContext(ctx, `SELECT entity_type FROM records WHERE id = ?`, id.String()).Scan(&entityType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, record.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find record %s: %w", id, err)
	}
	rec := record.New(id, entityType)

	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value FROM record_fields WHERE record_id = ? ORDER BY field, place`, id.String())
	if err != nil {
		return nil, fmt.Errorf("load fields %s: %w", id, err)
	}
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan field: %w", err)
		}
		rec.Fields[field] = append(rec.Fields[field], value)
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("load fields %s: %w", id, err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT type, target_id FROM relations WHERE source_id = ? ORDER BY place`, id.String())
	if err != nil {
		return nil, fmt.Errorf("load relations %s: %w", id, err)
	}
	for rows.Next() {
		var relType, rawTarget string
		if err := rows.Scan(&relType, &rawTarget); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		target, err := uuid.Parse(rawTarget)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("relation target %q: %w", rawTarget, err)
		}
		rec.Relations = append(rec.Relations, record.Relation{Type: relType, Target: target})
	}
	if err := closeRows(rows); err != nil {
		return nil, fmt.Errorf("load relations %s: %w", id, err)
	}
	return rec, nil
}

// Persist writes rec, replacing any previous fields and relations, in a single
// transaction.
func (s *Store) Persist(ctx context.Context, rec *record.Record) error {
	if rec == nil {
		return errors.New("persist: nil record")
	}
	if rec.ID == uuid.Nil {
		return errors.New("persist: record id is required")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.persistTx(ctx, tx, rec)
	})
}

func (s *Store) persistTx(ctx context.Context, tx *sql.Tx, rec *record.Record) error {
	id := rec.ID.String()
	now := sqlitex.FormatTime(s.now())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO records (id, entity_type, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET entity_type = excluded.entity_type, updated_at = excluded.updated_at`,
		id, rec.EntityType, now, now,
	); err != nil {
		return fmt.Errorf("upsert record %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM record_fields WHERE record_id = ?`, id); err != nil {
		return fmt.Errorf("clear fields %s: %w", id, err)
	}
	for _, field := range rec.FieldNames() {
		for place, value := range rec.Fields[field] {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO record_fields (record_id, field, place, value) VALUES (?, ?, ?, ?)`,
				id, field, place, value,
			); err != nil {
				return fmt.Errorf("insert field %s.%s: %w", id, field, err)
			}
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM relations WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("clear relations %s: %w", id, err)
	}
	for place, rel := range rec.Relations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO relations (source_id, type, target_id, place) VALUES (?, ?, ?, ?)`,
			id, rel.Type, rel.Target.String(), place,
		); err != nil {
			return fmt.Errorf("insert relation %s: %w", id, err)
		}
	}
	return nil
}

// Delete removes a record with its fields and outgoing relations.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	var removed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id.String())
		if err != nil {
			return fmt.Errorf("delete record %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = n > 0
		return nil
	})
	return removed, err
}

// List returns record ids, optionally filtered by entity type, in creation order.
func (s *Store) List(ctx context.Context, entityType string) ([]uuid.UUID, error) {
	query := `SELECT id FROM records`
	var args []any
	if entityType != "" {
		query += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY created_at, id`
	return s.queryIDs(ctx, query, args...)
}

// DependentsOf returns the records holding a relation that targets rec.
func (s *Store) DependentsOf(ctx context.Context, rec *record.Record) ([]uuid.UUID, error) {
	if rec == nil {
		return nil, nil
	}
	return s.queryIDs(ctx,
		`SELECT DISTINCT source_id FROM relations WHERE target_id = ? ORDER BY source_id`,
		rec.ID.String(),
	)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(sqlitex.EnsureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx = sqlitex.EnsureContext(ctx)
	return sqlitex.RetryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()
		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

func closeRows(rows *sql.Rows) error {
	iterErr := rows.Err()
	closeErr := rows.Close()
	if iterErr != nil {
		return iterErr
	}
	return closeErr
}
