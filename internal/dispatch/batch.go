package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"metaprop/internal/logging"
	"metaprop/internal/record"
)

// ItemResult is the outcome of one pass in a batch.
type ItemResult struct {
	ID      uuid.UUID
	Outcome string
	Err     error
}

// BatchResult aggregates a batch of passes in input order.
type BatchResult struct {
	Items     []ItemResult
	Changed   int
	Unchanged int
	Missing   int
	Failed    int
}

// Failures returns the items whose pass returned an error other than a
// missing record.
func (b BatchResult) Failures() []ItemResult {
	var out []ItemResult
	for _, item := range b.Items {
		if item.Err != nil && item.Outcome != OutcomeMissing {
			out = append(out, item)
		}
	}
	return out
}

// EnhanceAll runs a pass over each id with at most concurrency passes in
// flight. Individual failures are recorded and do not stop the batch; only
// cancellation of ctx is returned as an error. Duplicate ids run once.
func (d *Dispatcher) EnhanceAll(ctx context.Context, ids []uuid.UUID, mode Mode, concurrency int) (BatchResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	items := make([]ItemResult, len(unique))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, id := range unique {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			changed, err := d.EnhanceByID(ctx, id, mode)
			items[i] = ItemResult{ID: id, Outcome: outcomeOf(changed, err), Err: err}
			if err != nil && !errors.Is(err, record.ErrNotFound) && !IsCancellation(err) {
				logging.WarnWithContext(d.logger, "re-index pass failed", "reindex_item_failed",
					logging.String(logging.FieldRecordID, id.String()),
					logging.String(logging.FieldMode, mode.String()),
					logging.String(logging.FieldErrorHint, "inspect the record and retry with `metaprop enhance --deep`"),
					logging.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	result := BatchResult{Items: make([]ItemResult, 0, len(items))}
	for _, item := range items {
		if item.ID == uuid.Nil {
			continue
		}
		result.Items = append(result.Items, item)
		switch item.Outcome {
		case OutcomeChanged:
			result.Changed++
		case OutcomeUnchanged:
			result.Unchanged++
		case OutcomeMissing:
			result.Missing++
		default:
			result.Failed++
		}
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}
