package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"metaprop/internal/config"
	"metaprop/internal/queue"
	"metaprop/internal/record"
	"metaprop/internal/recordstore"
)

// MustOpenQueue opens the SQLite queue for cfg and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustOpenRecords opens the SQLite record store for cfg and registers cleanup.
func MustOpenRecords(t testing.TB, cfg *config.Config) *recordstore.Store {
	t.Helper()

	store, err := recordstore.Open(cfg)
	if err != nil {
		t.Fatalf("recordstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustPersist writes rec and fails the test on error.
func MustPersist(t testing.TB, store record.Store, rec *record.Record) {
	t.Helper()

	if err := store.Persist(context.Background(), rec); err != nil {
		t.Fatalf("persist %s: %v", rec.ID, err)
	}
}

// MustFind loads id and fails the test on error.
func MustFind(t testing.TB, store record.Finder, id uuid.UUID) *record.Record {
	t.Helper()

	rec, err := store.Find(context.Background(), id)
	if err != nil {
		t.Fatalf("find %s: %v", id, err)
	}
	return rec
}

// NewRecord builds a record with the given single-valued fields.
func NewRecord(entityType string, fields map[string]string, relations ...record.Relation) *record.Record {
	rec := record.New(uuid.New(), entityType)
	for name, value := range fields {
		rec.SetValues(name, []string{value})
	}
	rec.Relations = append(rec.Relations, relations...)
	return rec
}
