package enhancer

import (
	"context"
	"strings"

	"golang.org/x/text/unicode/norm"

	"metaprop/internal/record"
)

// Normalize rewrites field values to NFC with collapsed whitespace.
type Normalize struct {
	ID          string
	EntityTypes []string
	Fields      []string
}

// Name implements Enhancer.
func (e *Normalize) Name() string { return e.ID }

// CanApply implements Enhancer.
func (e *Normalize) CanApply(rec *record.Record) bool {
	if !matchesEntity(e.EntityTypes, rec) {
		return false
	}
	for _, field := range e.Fields {
		if rec.Has(field) {
			return true
		}
	}
	return false
}

// Apply implements Enhancer. Values that normalize to empty are dropped.
func (e *Normalize) Apply(_ context.Context, rec *record.Record, _ bool) (bool, error) {
	changed := false
	for _, field := range e.Fields {
		current := rec.Values(field)
		if len(current) == 0 {
			continue
		}
		cleaned := make([]string, 0, len(current))
		for _, value := range current {
			if v := normalizeValue(value); v != "" {
				cleaned = append(cleaned, v)
			}
		}
		if rec.SetValues(field, cleaned) {
			changed = true
		}
	}
	return changed, nil
}

func normalizeValue(value string) string {
	return strings.Join(strings.Fields(norm.NFC.String(value)), " ")
}
