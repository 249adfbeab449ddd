package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"metaprop/internal/enhancer"
	"metaprop/internal/logging"
	"metaprop/internal/metrics"
	"metaprop/internal/queue"
	"metaprop/internal/record"
)

// Dispatcher runs enhancement passes and schedules dependents.
type Dispatcher struct {
	registry *enhancer.Registry
	store    record.Store
	graph    record.Graph
	queue    queue.Queue
	logger   *slog.Logger
	observer metrics.Observer
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logging.NewComponentLogger(logger, "dispatch")
		}
	}
}

// WithObserver reports pass outcomes to o.
func WithObserver(o metrics.Observer) Option {
	return func(d *Dispatcher) {
		d.observer = metrics.OrNop(o)
	}
}

// New constructs a dispatcher over the given collaborators.
func New(registry *enhancer.Registry, store record.Store, graph record.Graph, q queue.Queue, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		store:    store,
		graph:    graph,
		queue:    q,
		logger:   logging.NewNop(),
		observer: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enhance runs one pass over rec and reports whether any field changed.
//
// When the pass changes rec it is persisted and every dependent id is
// enqueued. On error rec is restored to its state before the call and
// nothing is persisted; if a deep pass had cleared a pending entry for rec,
// that entry is restored as well.
func (d *Dispatcher) Enhance(ctx context.Context, rec *record.Record, mode Mode) (bool, error) {
	if rec == nil {
		return false, errors.New("enhance: nil record")
	}
	start := time.Now()
	changed, enqueued, err := d.enhance(ctx, rec, mode)
	elapsed := time.Since(start)

	outcome := outcomeOf(changed, err)
	d.observer.PassCompleted(mode.String(), outcome, elapsed)
	d.observer.DependentsEnqueued(enqueued)

	logger := logging.WithContext(logging.WithMode(logging.WithRecordID(ctx, rec.ID.String()), mode.String()), d.logger)
	if err != nil {
		logger.Debug("enhancement pass failed",
			logging.String(logging.FieldOutcome, outcome),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
		)
		return changed, err
	}
	logger.Debug("enhancement pass complete",
		logging.String(logging.FieldOutcome, outcome),
		logging.Int("dependents_enqueued", enqueued),
		logging.Duration("elapsed", elapsed),
	)
	return changed, nil
}

func (d *Dispatcher) enhance(ctx context.Context, rec *record.Record, mode Mode) (changed bool, enqueued int, err error) {
	snapshot := rec.Clone()
	persisted := false
	cleared := false

	if mode == Deep {
		cleared, err = d.queue.Clear(ctx, rec.ID)
		if err != nil {
			return false, 0, &PersistenceError{RecordID: rec.ID, Op: OpClear, Err: err}
		}
	}

	defer func() {
		if err == nil {
			return
		}
		if !persisted {
			*rec = *snapshot
			changed = false
		}
		if cleared {
			if _, restoreErr := d.queue.Enqueue(context.WithoutCancel(ctx), rec.ID); restoreErr != nil {
				logging.ErrorWithContext(d.logger, "failed to restore pending entry", "pending_restore_failed",
					logging.String(logging.FieldRecordID, rec.ID.String()),
					logging.String(logging.FieldErrorHint, "re-enqueue the record manually with `metaprop queue enqueue`"),
					logging.String(logging.FieldImpact, "record may keep stale derived metadata"),
					logging.Error(restoreErr),
				)
			}
		}
	}()

	// CanApply is evaluated as the pass goes rather than through
	// Registry.Applicable up front, so a later enhancer sees the fields written
	// by earlier ones when deciding whether it applies.
	deep := mode == Deep
	for _, e := range d.registry.Enhancers() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, 0, ctxErr
		}
		if !e.CanApply(rec) {
			continue
		}
		applied, applyErr := e.Apply(ctx, rec, deep)
		if applyErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && IsCancellation(applyErr) {
				return false, 0, applyErr
			}
			return false, 0, &EnhancerError{Enhancer: e.Name(), RecordID: rec.ID, Err: applyErr}
		}
		if applied {
			changed = true
		}
	}
	if !changed {
		return false, 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, 0, ctxErr
	}

	// Dependents are resolved before the write; a failed lookup must leave the
	// store untouched.
	dependents, err := d.graph.DependentsOf(ctx, rec)
	if err != nil {
		return false, 0, &PersistenceError{RecordID: rec.ID, Op: OpDependents, Err: err}
	}
	if err := d.store.Persist(ctx, rec); err != nil {
		if IsCancellation(err) && ctx.Err() != nil {
			return false, 0, err
		}
		return false, 0, &PersistenceError{RecordID: rec.ID, Op: OpPersist, Err: err}
	}
	persisted = true

	enqueued, err = d.enqueueAll(context.WithoutCancel(ctx), rec.ID, dependents)
	if err != nil {
		return true, enqueued, &PersistenceError{RecordID: rec.ID, Op: OpEnqueue, Err: err}
	}
	return true, enqueued, nil
}

func (d *Dispatcher) enqueueAll(ctx context.Context, self uuid.UUID, ids []uuid.UUID) (int, error) {
	added := 0
	var errs []error
	for _, id := range ids {
		if id == self {
			continue
		}
		ok, err := d.queue.Enqueue(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue dependent %s: %w", id, err))
			continue
		}
		if ok {
			added++
		}
	}
	return added, errors.Join(errs...)
}

// EnhanceByID loads id and runs a pass over it. A missing record yields an
// error matching record.ErrNotFound.
func (d *Dispatcher) EnhanceByID(ctx context.Context, id uuid.UUID, mode Mode) (bool, error) {
	rec, err := d.store.Find(ctx, id)
	if err != nil {
		return false, err
	}
	return d.Enhance(ctx, rec, mode)
}

// InvalidateDependents enqueues every record depending on id without running
// a pass over id itself. It is used when id was deleted or changed outside
// the engine.
func (d *Dispatcher) InvalidateDependents(ctx context.Context, id uuid.UUID) (int, error) {
	dependents, err := d.graph.DependentsOf(ctx, &record.Record{ID: id})
	if err != nil {
		return 0, &PersistenceError{RecordID: id, Op: OpDependents, Err: err}
	}
	added, err := d.enqueueAll(ctx, id, dependents)
	d.observer.DependentsEnqueued(added)
	if err != nil {
		return added, &PersistenceError{RecordID: id, Op: OpEnqueue, Err: err}
	}
	return added, nil
}
