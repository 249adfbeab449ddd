package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"metaprop/internal/sqlitex"
)

// Stats returns the pending count and the oldest enqueue time.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		count  int
		oldest sql.NullString
	)
	row := s.db.QueryRowContext(sqlitex.EnsureContext(ctx), `SELECT COUNT(1), (SELECT enqueued_at FROM pending ORDER BY seq LIMIT 1) FROM pending`)
	if err := row.Scan(&count, &oldest); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	stats := Stats{Pending: count}
	if oldest.Valid {
		if ts, err := sqlitex.ParseTime(oldest.String); err == nil {
			stats.Oldest = &ts
		}
	}
	return stats, nil
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("queue database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(sqlitex.EnsureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping queue database: %w", err)
	}
	health.DatabaseReadable = true

	version, err := sqlitex.SchemaVersion(connCtx, s.db)
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}
	health.SchemaVersion = version

	var tableName string
	row := s.db.QueryRowContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'pending'")
	if err := row.Scan(&tableName); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			health.Error = err.Error()
			return health, fmt.Errorf("query table info: %w", err)
		}
	} else {
		health.TableExists = true
	}

	if health.TableExists {
		row = s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM pending")
		if err := row.Scan(&health.Pending); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count pending: %w", err)
		}
	}

	row = s.db.QueryRowContext(connCtx, "PRAGMA integrity_check")
	var integrityResult string
	if err := row.Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}
