package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"metaprop/internal/config"
	"metaprop/internal/sqlitex"
)

// Store manages the pending set backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

var _ Queue = (*Store)(nil)

// Open initializes or connects to the queue database configured in cfg.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.Paths.QueueDB)
}

// OpenPath initializes or connects to the queue database at dbPath.
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

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = sqlitex.EnsureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := sqlitex.RetryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Enqueue marks id pending. Enqueueing a pending id leaves its position unchanged.
func (s *Store) Enqueue(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`INSERT INTO pending (record_id, enqueued_at) VALUES (?, ?) ON CONFLICT(record_id) DO NOTHING`,
		id.String(), sqlitex.FormatTime(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", id, err)
	}
	return affected(res)
}

// Poll removes and returns the oldest pending id.
func (s *Store) Poll(ctx context.Context) (uuid.UUID, bool, error) {
	ctx = sqlitex.EnsureContext(ctx)
	var raw string
	err := sqlitex.RetryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`DELETE FROM pending WHERE seq = (SELECT MIN(seq) FROM pending) RETURNING record_id`,
		).Scan(&raw)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("poll queue: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("poll queue: invalid record id %q: %w", raw, err)
	}
	return id, true, nil
}

// Clear removes id from the pending set if present.
func (s *Store) Clear(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM pending WHERE record_id = ?`, id.String())
	if err != nil {
		return false, fmt.Errorf("clear %s: %w", id, err)
	}
	return affected(res)
}

// Contains reports whether id is pending.
func (s *Store) Contains(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(sqlitex.EnsureContext(ctx),
		`SELECT COUNT(1) FROM pending WHERE record_id = ?`, id.String(),
	).Scan(&count); err != nil {
		return false, fmt.Errorf("lookup %s: %w", id, err)
	}
	return count > 0, nil
}

// Len returns the number of pending ids.
func (s *Store) Len(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(sqlitex.EnsureContext(ctx), `SELECT COUNT(1) FROM pending`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}

// List returns up to limit pending entries in poll order. A limit of zero or
// less returns every entry.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT seq, record_id, enqueued_at FROM pending ORDER BY seq`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(sqlitex.EnsureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Purge removes every pending id and returns how many were dropped.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM pending`)
	if err != nil {
		return 0, fmt.Errorf("purge queue: %w", err)
	}
	return res.RowsAffected()
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		seq        int64
		rawID      string
		enqueuedAt string
	)
	if err := scanner.Scan(&seq, &rawID, &enqueuedAt); err != nil {
		return Entry{}, fmt.Errorf("scan pending entry: %w", err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Entry{}, fmt.Errorf("pending entry %d: invalid record id %q: %w", seq, rawID, err)
	}
	entry := Entry{Seq: seq, RecordID: id}
	if ts, err := sqlitex.ParseTime(enqueuedAt); err == nil {
		entry.EnqueuedAt = ts
	}
	return entry, nil
}
