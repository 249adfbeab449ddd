package queue

import (
	"context"
	_ "embed"
	"fmt"

	"metaprop/internal/sqlitex"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes.
const schemaVersion = 1

// ErrSchemaMismatch is returned by Open when the queue database predates the
// current schema.
var ErrSchemaMismatch = sqlitex.ErrSchemaMismatch

func (s *Store) initSchema(ctx context.Context) error {
	if err := sqlitex.EnsureSchema(ctx, s.db, schemaSQL, schemaVersion); err != nil {
		return fmt.Errorf("queue %s: %w (pending ids are rebuilt by `metaprop reindex --all` after deleting it)", s.path, err)
	}
	return nil
}
