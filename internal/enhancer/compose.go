package enhancer

import (
	"context"
	"strings"

	"metaprop/internal/record"
)

// Compose builds a label from the first value of several fields.
type Compose struct {
	ID          string
	EntityTypes []string
	Fields      []string
	Prefix      string
	Separator   string
	TargetField string
}

// Name implements Enhancer.
func (e *Compose) Name() string { return e.ID }

// CanApply implements Enhancer.
func (e *Compose) CanApply(rec *record.Record) bool {
	return len(e.EntityTypes) > 0 && matchesEntity(e.EntityTypes, rec)
}

// Apply implements Enhancer. Records with none of the source fields are left alone.
func (e *Compose) Apply(_ context.Context, rec *record.Record, _ bool) (bool, error) {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range e.Fields {
		value, ok := rec.First(field)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		parts = append(parts, value)
	}
	if len(parts) == 0 {
		return false, nil
	}
	return rec.SetValues(e.TargetField, []string{e.Prefix + strings.Join(parts, e.Separator)}), nil
}
