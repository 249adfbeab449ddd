package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"metaprop/internal/dispatch"
	"metaprop/internal/enhancer"
	"metaprop/internal/record"
	"metaprop/internal/testsupport"
)

func TestEnhanceAllCollectsOutcomes(t *testing.T) {
	poisoned := uuid.New()
	h := newHarness(t, func(record.Finder) []enhancer.Enhancer {
		return []enhancer.Enhancer{funcEnhancer{name: "stamp", apply: func(_ context.Context, rec *record.Record, _ bool) (bool, error) {
			if rec.ID == poisoned {
				return false, errors.New("poisoned")
			}
			return rec.SetValues("stamp", []string{"1"}), nil
		}}}
	})

	fresh := testsupport.NewRecord("Dataset", nil)
	stamped := testsupport.NewRecord("Dataset", map[string]string{"stamp": "1"})
	bad := testsupport.NewRecord("Dataset", nil)
	bad.ID = poisoned
	for _, rec := range []*record.Record{fresh, stamped, bad} {
		testsupport.MustPersist(t, h.records, rec)
	}
	missing := uuid.New()

	ids := []uuid.UUID{fresh.ID, stamped.ID, bad.ID, missing, fresh.ID}
	result, err := h.disp.EnhanceAll(context.Background(), ids, dispatch.Deep, 3)
	if err != nil {
		t.Fatalf("EnhanceAll: %v", err)
	}
	if len(result.Items) != 4 {
		t.Fatalf("expected duplicates collapsed to 4 items, got %d", len(result.Items))
	}
	if result.Changed != 1 || result.Unchanged != 1 || result.Missing != 1 || result.Failed != 1 {
		t.Fatalf("unexpected counts %+v", result)
	}
	failures := result.Failures()
	if len(failures) != 1 || failures[0].ID != poisoned || failures[0].Outcome != dispatch.OutcomeEnhancerFailed {
		t.Fatalf("unexpected failures %+v", failures)
	}
	if result.Items[0].ID != fresh.ID || result.Items[3].ID != missing {
		t.Fatalf("expected input order preserved, got %+v", result.Items)
	}
}

func TestEnhanceAllStopsOnCancellation(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.disp.EnhanceAll(ctx, []uuid.UUID{uuid.New()}, dispatch.Deep, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestConsumerRunsOncePerBatch(t *testing.T) {
	calls := 0
	h := newHarness(t, func(record.Finder) []enhancer.Enhancer {
		return []enhancer.Enhancer{funcEnhancer{name: "count", apply: func(_ context.Context, rec *record.Record, deep bool) (bool, error) {
			if deep {
				t.Error("consumer must run shallow passes")
			}
			calls++
			return false, nil
		}}}
	})
	rec := testsupport.NewRecord("Dataset", nil)
	testsupport.MustPersist(t, h.records, rec)
	consumer := dispatch.NewConsumer(h.disp)
	ctx := context.Background()

	for _, kind := range []dispatch.EventKind{dispatch.EventCreated, dispatch.EventModified} {
		if _, err := consumer.Consume(ctx, dispatch.Event{RecordID: rec.ID, Kind: kind}); err != nil {
			t.Fatalf("consume: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one pass per batch, got %d", calls)
	}

	consumer.End()
	if _, err := consumer.Consume(ctx, dispatch.Event{RecordID: rec.ID, Kind: dispatch.EventModified}); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected new batch to re-run, got %d", calls)
	}

	if _, err := consumer.Consume(ctx, dispatch.Event{RecordID: uuid.New(), Kind: dispatch.EventCreated}); err != nil {
		t.Fatalf("missing record should be ignored, got %v", err)
	}
}

func TestConsumerCollapsesConcurrentEvents(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, func(record.Finder) []enhancer.Enhancer {
		return []enhancer.Enhancer{funcEnhancer{name: "slow", apply: func(ctx context.Context, _ *record.Record, _ bool) (bool, error) {
			if calls.Add(1) == 1 {
				close(started)
				select {
				case <-release:
				case <-ctx.Done():
					return false, ctx.Err()
				}
			}
			return false, nil
		}}}
	})
	rec := testsupport.NewRecord("Dataset", nil)
	testsupport.MustPersist(t, h.records, rec)
	consumer := dispatch.NewConsumer(h.disp)
	ctx := context.Background()

	var wg sync.WaitGroup
	var firstErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = consumer.Consume(ctx, dispatch.Event{RecordID: rec.ID, Kind: dispatch.EventCreated})
	}()
	<-started

	if _, err := consumer.Consume(ctx, dispatch.Event{RecordID: rec.ID, Kind: dispatch.EventModified}); err != nil {
		t.Fatalf("second consume: %v", err)
	}
	close(release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first consume: %v", firstErr)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one pass for concurrent events, got %d", n)
	}
}

func TestConsumerRetriesAfterFailedPass(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	h := newHarness(t, func(record.Finder) []enhancer.Enhancer {
		return []enhancer.Enhancer{funcEnhancer{name: "flaky", apply: func(context.Context, *record.Record, bool) (bool, error) {
			calls++
			if calls == 1 {
				return false, boom
			}
			return false, nil
		}}}
	})
	rec := testsupport.NewRecord("Dataset", nil)
	testsupport.MustPersist(t, h.records, rec)
	consumer := dispatch.NewConsumer(h.disp)
	ctx := context.Background()

	if _, err := consumer.Consume(ctx, dispatch.Event{RecordID: rec.ID, Kind: dispatch.EventCreated}); !errors.Is(err, boom) {
		t.Fatalf("expected enhancer error, got %v", err)
	}
	if _, err := consumer.Consume(ctx, dispatch.Event{RecordID: rec.ID, Kind: dispatch.EventModified}); err != nil {
		t.Fatalf("retry consume: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected failed pass to be retried within the batch, got %d calls", calls)
	}
}

func TestConsumerDeleteInvalidatesDependents(t *testing.T) {
	h := newHarness(t, nil)
	person := testsupport.NewRecord("Person", nil)
	pub := testsupport.NewRecord("Publication", nil, record.Relation{Type: "author", Target: person.ID})
	testsupport.MustPersist(t, h.records, pub)

	consumer := dispatch.NewConsumer(h.disp)
	if _, err := consumer.Consume(context.Background(), dispatch.Event{RecordID: person.ID, Kind: dispatch.EventDeleted}); err != nil {
		t.Fatalf("consume delete: %v", err)
	}
	if pending := h.pending(t); len(pending) != 1 || pending[0] != pub.ID {
		t.Fatalf("expected dependent enqueued, got %v", pending)
	}
}
