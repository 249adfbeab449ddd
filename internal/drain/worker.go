package drain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"metaprop/internal/config"
	"metaprop/internal/dispatch"
	"metaprop/internal/logging"
	"metaprop/internal/metrics"
	"metaprop/internal/queue"
	"metaprop/internal/record"
)

// ErrAlreadyDraining is returned when a run is requested while another run
// holds the drain guard.
var ErrAlreadyDraining = errors.New("drain already in progress")

// Enhancer runs an enhancement pass over a record.
type Enhancer interface {
	Enhance(ctx context.Context, rec *record.Record, mode dispatch.Mode) (bool, error)
}

// Summary describes one drain run.
type Summary struct {
	Started     time.Time
	Duration    time.Duration
	Polled      int
	Changed     int
	Unchanged   int
	Missing     int
	Failed      int
	Requeued    int
	Interrupted bool
}

// Options tunes a Worker.
type Options struct {
	Interval          time.Duration
	MaxRuntime        time.Duration
	MaxItemsPerSecond float64
	Burst             int
	LockPath          string
	Logger            *slog.Logger
	Observer          metrics.Observer
}

// Worker drains the pending queue.
type Worker struct {
	queue    queue.Queue
	finder   record.Finder
	enhancer Enhancer
	logger   *slog.Logger
	observer metrics.Observer
	limiter  *rate.Limiter

	interval   time.Duration
	maxRuntime time.Duration
	lockPath   string

	draining atomic.Bool

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastErr     error
	lastSummary *Summary
}

// New constructs a worker.
func New(q queue.Queue, finder record.Finder, enhancer Enhancer, opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Worker{
		queue:      q,
		finder:     finder,
		enhancer:   enhancer,
		logger:     logging.NewComponentLogger(logger, "drain"),
		observer:   metrics.OrNop(opts.Observer),
		interval:   opts.Interval,
		maxRuntime: opts.MaxRuntime,
		lockPath:   opts.LockPath,
	}
	if opts.MaxItemsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(opts.MaxItemsPerSecond), burst)
	}
	return w
}

// OptionsFromConfig maps the [drain] section onto worker options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Interval:          time.Duration(cfg.Drain.IntervalSeconds) * time.Second,
		MaxRuntime:        time.Duration(cfg.Drain.MaxRuntimeSeconds) * time.Second,
		MaxItemsPerSecond: cfg.Drain.MaxItemsPerSecond,
		Burst:             cfg.Drain.Burst,
		LockPath:          cfg.DrainLockPath(),
	}
}

// RunOnce polls and processes ids until the queue is empty, the runtime
// budget expires or ctx is cancelled. It returns ctx's error only when ctx
// itself was cancelled; an expired budget ends the run normally with
// Summary.Interrupted set.
func (w *Worker) RunOnce(ctx context.Context) (Summary, error) {
	if !w.draining.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyDraining
	}
	defer w.draining.Store(false)

	if w.lockPath != "" {
		lock := flock.New(w.lockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return Summary{}, fmt.Errorf("acquire drain lock: %w", err)
		}
		if !locked {
			return Summary{}, ErrAlreadyDraining
		}
		defer func() { _ = lock.Unlock() }()
	}

	summary, err := w.drain(ctx)
	w.record(summary, err)
	w.observer.RunCompleted(metrics.RunStats{
		Polled:    summary.Polled,
		Changed:   summary.Changed,
		Unchanged: summary.Unchanged,
		Missing:   summary.Missing,
		Failed:    summary.Failed,
		Requeued:  summary.Requeued,
	}, summary.Duration)

	attrs := []slog.Attr{
		logging.Int("polled", summary.Polled),
		logging.Int("changed", summary.Changed),
		logging.Int("unchanged", summary.Unchanged),
		logging.Int("missing", summary.Missing),
		logging.Int("failed", summary.Failed),
		logging.Int("requeued", summary.Requeued),
		logging.Bool("interrupted", summary.Interrupted),
		logging.Duration("elapsed", summary.Duration),
	}
	switch {
	case err != nil:
		w.logger.Info("drain run stopped", logging.Args(append(attrs, logging.Error(err))...)...)
	case summary.Polled > 0:
		w.logger.Info("drain run complete", logging.Args(attrs...)...)
	default:
		w.logger.Debug("drain run found no pending records")
	}
	return summary, err
}

func (w *Worker) drain(ctx context.Context) (Summary, error) {
	summary := Summary{Started: time.Now()}

	runCtx := ctx
	if w.maxRuntime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.maxRuntime)
		defer cancel()
	}

	for {
		if runCtx.Err() != nil {
			summary.Interrupted = true
			break
		}
		if w.limiter != nil {
			if err := w.limiter.Wait(runCtx); err != nil {
				summary.Interrupted = true
				break
			}
		}

		id, ok, err := w.queue.Poll(runCtx)
		if err != nil {
			if dispatch.IsCancellation(err) && runCtx.Err() != nil {
				summary.Interrupted = true
				break
			}
			summary.Duration = time.Since(summary.Started)
			return summary, fmt.Errorf("poll queue: %w", err)
		}
		if !ok {
			break
		}
		summary.Polled++

		if interrupted := w.process(runCtx, id, &summary); interrupted {
			w.requeue(ctx, id, &summary)
			summary.Interrupted = true
			break
		}
	}

	summary.Duration = time.Since(summary.Started)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// process runs the deep pass for id and reports whether the run was
// interrupted before the pass finished.
func (w *Worker) process(ctx context.Context, id uuid.UUID, summary *Summary) bool {
	logger := logging.WithContext(logging.WithRecordID(ctx, id.String()), w.logger)

	rec, err := w.finder.Find(ctx, id)
	switch {
	case errors.Is(err, record.ErrNotFound):
		summary.Missing++
		w.observer.ItemDrained(dispatch.OutcomeMissing)
		logger.Debug("pending record no longer exists; dropping entry")
		return false
	case err != nil:
		if dispatch.IsCancellation(err) && ctx.Err() != nil {
			return true
		}
		summary.Failed++
		w.observer.ItemDrained(dispatch.OutcomePersistenceFailed)
		logging.WarnWithContext(logger, "failed to load pending record", "drain_lookup_failed",
			logging.String(logging.FieldErrorHint, "check the records database; the entry was dropped"),
			logging.String(logging.FieldImpact, "derived metadata stays stale until the record changes again"),
			logging.Error(err),
		)
		return false
	}

	changed, err := w.enhancer.Enhance(ctx, rec, dispatch.Deep)
	if err != nil {
		if dispatch.IsCancellation(err) && ctx.Err() != nil {
			return true
		}
		summary.Failed++
		outcome := dispatch.Classify(err)
		w.observer.ItemDrained(outcome)
		attrs := []slog.Attr{
			logging.String(logging.FieldOutcome, outcome),
			logging.String(logging.FieldErrorHint, "fix the cause and run `metaprop enhance --deep` for this record"),
			logging.String(logging.FieldImpact, "derived metadata stays stale until the record changes again"),
			logging.Error(err),
		}
		var enhErr *dispatch.EnhancerError
		if errors.As(err, &enhErr) {
			attrs = append(attrs, logging.String(logging.FieldEnhancer, enhErr.Enhancer))
		}
		logging.WarnWithContext(logger, "deep enhancement failed", "drain_item_failed", attrs...)
		return false
	}

	if changed {
		summary.Changed++
		w.observer.ItemDrained(dispatch.OutcomeChanged)
	} else {
		summary.Unchanged++
		w.observer.ItemDrained(dispatch.OutcomeUnchanged)
	}
	return false
}

func (w *Worker) requeue(ctx context.Context, id uuid.UUID, summary *Summary) {
	if _, err := w.queue.Enqueue(context.WithoutCancel(ctx), id); err != nil {
		logging.ErrorWithContext(w.logger, "failed to restore interrupted pending entry", "drain_requeue_failed",
			logging.String(logging.FieldRecordID, id.String()),
			logging.String(logging.FieldErrorHint, "re-enqueue the record with `metaprop queue enqueue`"),
			logging.Error(err),
		)
		return
	}
	summary.Requeued++
}

func (w *Worker) record(summary Summary, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	snapshot := summary
	w.lastSummary = &snapshot
	w.lastErr = err
}
