package enhancer

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"metaprop/internal/record"
)

// SourceSuffix is appended to a related enhancer's target field to name the
// field that remembers which records contributed its values.
const SourceSuffix = ".source"

// Related copies a field from the records reached through one relation type
// into a virtual field on the owning record.
type Related struct {
	ID           string
	RelationType string
	SourceField  string
	TargetField  string
	EntityTypes  []string
	Finder       record.Finder
}

// Name implements Enhancer.
func (e *Related) Name() string { return e.ID }

// CanApply holds when the record has a matching relation or carries sources
// recorded by an earlier pass that may need cleaning up. A target value
// without recorded sources belongs to the record itself.
func (e *Related) CanApply(rec *record.Record) bool {
	if !matchesEntity(e.EntityTypes, rec) {
		return false
	}
	if len(rec.RelationTargets(e.RelationType)) > 0 {
		return true
	}
	return rec.Has(e.sourceField())
}

// Apply implements Enhancer. Shallow passes only recompute when the set of
// related records differs from the recorded sources.
func (e *Related) Apply(ctx context.Context, rec *record.Record, deep bool) (bool, error) {
	targets := uniqueIDs(rec.RelationTargets(e.RelationType))
	if !deep && slices.Equal(idStrings(targets), rec.Values(e.sourceField())) {
		return false, nil
	}

	var values, sources []string
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if target == rec.ID {
			values = append(values, rec.Values(e.SourceField)...)
			sources = append(sources, target.String())
			continue
		}
		related, err := e.Finder.Find(ctx, target)
		if errors.Is(err, record.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("resolve %s relation %s: %w", e.RelationType, target, err)
		}
		values = append(values, related.Values(e.SourceField)...)
		sources = append(sources, target.String())
	}

	// Nothing resolved and nothing written before: the target is not ours to clear.
	if len(sources) == 0 && !rec.Has(e.sourceField()) {
		return false, nil
	}

	changed := rec.SetValues(e.TargetField, values)
	if rec.SetValues(e.sourceField(), sources) {
		changed = true
	}
	return changed, nil
}

func (e *Related) sourceField() string {
	return e.TargetField + SourceSuffix
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func idStrings(ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
