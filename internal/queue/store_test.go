package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"metaprop/internal/queue"
	"metaprop/internal/testsupport"
)

func TestEnqueueIsSetLike(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	id := uuid.New()
	added, err := store.Enqueue(ctx, id)
	if err != nil || !added {
		t.Fatalf("first enqueue: added=%v err=%v", added, err)
	}
	added, err = store.Enqueue(ctx, id)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if added {
		t.Fatal("expected duplicate enqueue to be a no-op")
	}
	n, err := store.Len(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected single pending entry, got %d (%v)", n, err)
	}
}

func TestPollReturnsOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		if _, err := store.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	// Re-enqueueing the first id must not move it to the back.
	if _, err := store.Enqueue(ctx, ids[0]); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}

	for i, want := range ids {
		got, ok, err := store.Poll(ctx)
		if err != nil || !ok {
			t.Fatalf("poll %d: ok=%v err=%v", i, ok, err)
		}
		if got != want {
			t.Fatalf("poll %d: got %s want %s", i, got, want)
		}
	}
	_, ok, err := store.Poll(ctx)
	if err != nil {
		t.Fatalf("poll empty: %v", err)
	}
	if ok {
		t.Fatal("expected empty queue")
	}
}

func TestClearReportsRemoval(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	id := uuid.New()
	removed, err := store.Clear(ctx, id)
	if err != nil || removed {
		t.Fatalf("clear of absent id: removed=%v err=%v", removed, err)
	}
	if _, err := store.Enqueue(ctx, id); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	removed, err = store.Clear(ctx, id)
	if err != nil || !removed {
		t.Fatalf("clear of pending id: removed=%v err=%v", removed, err)
	}
	pending, err := store.Contains(ctx, id)
	if err != nil || pending {
		t.Fatalf("expected id gone, pending=%v err=%v", pending, err)
	}
}

func TestPendingSurvivesReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id := uuid.New()
	if _, err := store.Enqueue(context.Background(), id); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := testsupport.MustOpenQueue(t, cfg)
	got, ok, err := reopened.Poll(context.Background())
	if err != nil || !ok || got != id {
		t.Fatalf("expected %s after reopen, got %s ok=%v err=%v", id, got, ok, err)
	}
}

func TestListStatsAndPurge(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 0 || stats.Oldest != nil {
		t.Fatalf("expected empty stats, got %+v", stats)
	}

	first, second := uuid.New(), uuid.New()
	for _, id := range []uuid.UUID{first, second} {
		if _, err := store.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	entries, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].RecordID != first {
		t.Fatalf("expected first entry only, got %+v", entries)
	}
	if entries[0].EnqueuedAt.IsZero() {
		t.Fatal("expected enqueue time to be recorded")
	}

	stats, err = store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 2 || stats.Oldest == nil {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	purged, err := store.Purge(ctx)
	if err != nil || purged != 2 {
		t.Fatalf("purge: n=%d err=%v", purged, err)
	}
	if n, _ := store.Len(ctx); n != 0 {
		t.Fatalf("expected empty queue after purge, got %d", n)
	}
}

func TestConcurrentProducersDeduplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	shared := uuid.New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Enqueue(ctx, shared); err != nil {
				t.Errorf("enqueue: %v", err)
			}
			if _, err := store.Enqueue(ctx, uuid.New()); err != nil {
				t.Errorf("enqueue: %v", err)
			}
		}()
	}
	wg.Wait()

	n, err := store.Len(ctx)
	if err != nil {
		t.Fatalf("len: %v", err)
	}
	if n != 9 {
		t.Fatalf("expected 9 pending ids, got %d", n)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	if _, err := store.Enqueue(context.Background(), uuid.New()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists {
		t.Fatalf("unexpected health: %+v", health)
	}
	if !health.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
	if health.Pending != 1 || health.SchemaVersion != 1 {
		t.Fatalf("unexpected counts: %+v", health)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	store, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("raw open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := queue.OpenPath(path); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
