// Package pgqueue implements the pending-enhancement queue on PostgreSQL for
// deployments where several hosts enqueue concurrently.
package pgqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"metaprop/internal/queue"
)

const ddl = `
CREATE TABLE IF NOT EXISTS metaprop_pending (
  seq bigserial PRIMARY KEY,
  record_id text NOT NULL UNIQUE,
  enqueued_at timestamptz NOT NULL DEFAULT now()
);
`

// Store is a queue.Queue backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ queue.Queue = (*Store)(nil)

// Open connects to dsn and ensures the queue table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create queue table: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Enqueue marks id pending.
func (s *Store) Enqueue(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO metaprop_pending (record_id) VALUES ($1) ON CONFLICT (record_id) DO NOTHING`, id.String())
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Poll removes and returns the oldest pending id. Concurrent pollers skip
// rows locked by each other.
func (s *Store) Poll(ctx context.Context) (uuid.UUID, bool, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `
DELETE FROM metaprop_pending
WHERE seq = (
  SELECT seq FROM metaprop_pending ORDER BY seq FOR UPDATE SKIP LOCKED LIMIT 1
)
RETURNING record_id`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
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

// Clear removes id if pending.
func (s *Store) Clear(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM metaprop_pending WHERE record_id = $1`, id.String())
	if err != nil {
		return false, fmt.Errorf("clear %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Len returns the number of pending ids.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(1) FROM metaprop_pending`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// List returns up to limit entries in poll order; limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]queue.Entry, error) {
	query := `SELECT seq, record_id, enqueued_at FROM metaprop_pending ORDER BY seq`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var entries []queue.Entry
	for rows.Next() {
		var (
			entry queue.Entry
			raw   string
		)
		if err := rows.Scan(&entry.Seq, &raw, &entry.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scan pending entry: %w", err)
		}
		if entry.RecordID, err = uuid.Parse(raw); err != nil {
			return nil, fmt.Errorf("pending entry %d: invalid record id %q: %w", entry.Seq, raw, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Stats returns the pending count and the oldest enqueue time.
func (s *Store) Stats(ctx context.Context) (queue.Stats, error) {
	var (
		stats  queue.Stats
		oldest *time.Time
	)
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(1), MIN(enqueued_at) FROM metaprop_pending`).Scan(&stats.Pending, &oldest); err != nil {
		return queue.Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	stats.Oldest = oldest
	return stats, nil
}

// Contains reports whether id is pending.
func (s *Store) Contains(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM metaprop_pending WHERE record_id = $1)`, id.String(),
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup %s: %w", id, err)
	}
	return exists, nil
}

// Purge removes every pending id.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM metaprop_pending`)
	if err != nil {
		return 0, fmt.Errorf("purge queue: %w", err)
	}
	return tag.RowsAffected(), nil
}
