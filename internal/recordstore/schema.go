package recordstore

import (
	"context"
	_ "embed"
	"fmt"

	"metaprop/internal/sqlitex"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch is returned by Open when the records database was written
// by an incompatible version.
var ErrSchemaMismatch = sqlitex.ErrSchemaMismatch

func (s *Store) initSchema(ctx context.Context) error {
	if err := sqlitex.EnsureSchema(ctx, s.db, schemaSQL, schemaVersion); err != nil {
		return fmt.Errorf("records %s: %w", s.path, err)
	}
	return nil
}
