package drain_test

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"metaprop/internal/config"
	"metaprop/internal/dispatch"
	"metaprop/internal/drain"
	"metaprop/internal/enhancer"
	"metaprop/internal/logging"
	"metaprop/internal/logs"
	"metaprop/internal/queue"
	"metaprop/internal/record"
	"metaprop/internal/recordstore"
	"metaprop/internal/testsupport"
)

type stampEnhancer struct {
	fail  map[uuid.UUID]bool
	block chan struct{}
	calls atomic.Int32
}

func (s *stampEnhancer) Name() string { return "stamp" }

func (s *stampEnhancer) CanApply(*record.Record) bool { return true }

func (s *stampEnhancer) Apply(ctx context.Context, rec *record.Record, _ bool) (bool, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if s.fail[rec.ID] {
		return false, errors.New("poisoned record")
	}
	return rec.SetValues("stamp", []string{"done"}), nil
}

type fixture struct {
	records *recordstore.Store
	queue   *queue.Store
	stamp   *stampEnhancer
	worker  *drain.Worker
}

func newFixture(t *testing.T, opts drain.Options) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	records := testsupport.MustOpenRecords(t, cfg)
	q := testsupport.MustOpenQueue(t, cfg)
	stamp := &stampEnhancer{fail: map[uuid.UUID]bool{}}
	registry, err := enhancer.NewRegistry(stamp)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	disp := dispatch.New(registry, records, records, q)
	return &fixture{records: records, queue: q, stamp: stamp, worker: drain.New(q, records, disp, opts)}
}

func (f *fixture) seed(t *testing.T) *record.Record {
	t.Helper()
	rec := testsupport.NewRecord("Dataset", nil)
	testsupport.MustPersist(t, f.records, rec)
	if _, err := f.queue.Enqueue(context.Background(), rec.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return rec
}

func TestRunOnceDrainsQueue(t *testing.T) {
	f := newFixture(t, drain.Options{})
	a, b := f.seed(t), f.seed(t)

	summary, err := f.worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Polled != 2 || summary.Changed != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for _, rec := range []*record.Record{a, b} {
		if got, _ := testsupport.MustFind(t, f.records, rec.ID).First("stamp"); got != "done" {
			t.Fatalf("expected %s processed", rec.ID)
		}
	}
	if n, _ := f.queue.Len(context.Background()); n != 0 {
		t.Fatalf("expected empty queue, got %d", n)
	}
}

func TestRunOnceDropsMissingRecords(t *testing.T) {
	f := newFixture(t, drain.Options{})
	if _, err := f.queue.Enqueue(context.Background(), uuid.New()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	summary, err := f.worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Missing != 1 || summary.Failed != 0 {
		t.Fatalf("expected missing record counted, got %+v", summary)
	}
	if n, _ := f.queue.Len(context.Background()); n != 0 {
		t.Fatalf("expected queue empty, got %d", n)
	}
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "drain.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	f := newFixture(t, drain.Options{Logger: logger})
	d := f.seed(t)
	e := f.seed(t)
	f.stamp.fail[d.ID] = true

	summary, err := f.worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if summary.Failed != 1 || summary.Changed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if got, _ := testsupport.MustFind(t, f.records, e.ID).First("stamp"); got != "done" {
		t.Fatal("expected healthy record processed after poisoned one")
	}
	if testsupport.MustFind(t, f.records, d.ID).Has("stamp") {
		t.Fatal("expected failed record left unwritten")
	}
	if pending, _ := f.queue.Contains(context.Background(), d.ID); pending {
		t.Fatal("failed id must not be re-enqueued")
	}

	failures := failedItemEntries(t, logPath)
	if len(failures) != 1 || failures[0].RecordID != d.ID.String() {
		t.Fatalf("expected one drain_item_failed entry for %s, got %+v", d.ID, failures)
	}
}

func failedItemEntries(t *testing.T, path string) []logs.Entry {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer file.Close()

	var out []logs.Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		entry, ok := logs.ParseEntry(scanner.Text())
		if ok && entry.Fields[logging.FieldEventType] == "drain_item_failed" {
			out = append(out, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan log: %v", err)
	}
	return out
}

func TestRunOnceIsSingleFlight(t *testing.T) {
	f := newFixture(t, drain.Options{})
	f.seed(t)
	f.stamp.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.worker.RunOnce(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for f.stamp.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first run never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !f.worker.Status(context.Background()).Draining {
		t.Fatal("expected status to report draining")
	}
	if _, err := f.worker.RunOnce(context.Background()); !errors.Is(err, drain.ErrAlreadyDraining) {
		t.Fatalf("expected ErrAlreadyDraining, got %v", err)
	}
	close(f.stamp.block)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestRunOnceRespectsCrossProcessLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "drain.lock")
	f := newFixture(t, drain.Options{LockPath: lockPath})
	f.seed(t)

	other := flock.New(lockPath)
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("take lock: locked=%v err=%v", locked, err)
	}
	if _, err := f.worker.RunOnce(context.Background()); !errors.Is(err, drain.ErrAlreadyDraining) {
		t.Fatalf("expected ErrAlreadyDraining while lock held, got %v", err)
	}
	_ = other.Unlock()

	summary, err := f.worker.RunOnce(context.Background())
	if err != nil || summary.Polled != 1 {
		t.Fatalf("expected run after unlock, got %+v %v", summary, err)
	}
}

func TestRunOnceBudgetRequeuesInFlightID(t *testing.T) {
	f := newFixture(t, drain.Options{MaxRuntime: 50 * time.Millisecond})
	rec := f.seed(t)
	f.stamp.block = make(chan struct{})
	defer close(f.stamp.block)

	summary, err := f.worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("budget expiry should not be an error, got %v", err)
	}
	if !summary.Interrupted || summary.Requeued != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if pending, _ := f.queue.Contains(context.Background(), rec.ID); !pending {
		t.Fatal("expected in-flight id restored to the queue")
	}
	if testsupport.MustFind(t, f.records, rec.ID).Has("stamp") {
		t.Fatal("expected interrupted pass not persisted")
	}
}

func TestRunOnceReturnsParentCancellation(t *testing.T) {
	f := newFixture(t, drain.Options{})
	rec := f.seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.worker.RunOnce(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if pending, _ := f.queue.Contains(context.Background(), rec.ID); !pending {
		t.Fatal("expected pending entry untouched")
	}
}

func TestStartStopSchedule(t *testing.T) {
	f := newFixture(t, drain.Options{Interval: time.Hour})
	rec := f.seed(t)

	if err := f.worker.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.worker.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		status := f.worker.Status(context.Background())
		if status.LastRun != nil {
			if status.LastRun.Changed != 1 || status.Pending != 0 || !status.Running {
				t.Fatalf("unexpected status %+v", status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduled run did not happen")
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.worker.Stop()
	if f.worker.Status(context.Background()).Running {
		t.Fatal("expected schedule stopped")
	}
	if !testsupport.MustFind(t, f.records, rec.ID).Has("stamp") {
		t.Fatal("expected scheduled run to process the record")
	}

	idle := drain.New(f.queue, f.records, nil, drain.Options{})
	if err := idle.Start(context.Background()); err == nil {
		t.Fatal("expected zero interval to be rejected")
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithDrain(config.Drain{
		IntervalSeconds:   30,
		MaxRuntimeSeconds: 600,
		MaxItemsPerSecond: 4,
		Burst:             2,
	}))
	opts := drain.OptionsFromConfig(cfg)
	if opts.Interval != 30*time.Second || opts.MaxRuntime != 10*time.Minute {
		t.Fatalf("unexpected durations: %+v", opts)
	}
	if opts.MaxItemsPerSecond != 4 || opts.Burst != 2 {
		t.Fatalf("unexpected throttle: %+v", opts)
	}
	if opts.LockPath != cfg.DrainLockPath() {
		t.Fatalf("expected drain lock path %q, got %q", cfg.DrainLockPath(), opts.LockPath)
	}
}
