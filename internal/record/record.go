// Package record defines the metadata record model shared by the store, the
// enhancers and the dispatcher.
package record

import (
	"context"
	"errors"
	"slices"
	"sort"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record identifier does not resolve.
var ErrNotFound = errors.New("record not found")

// Relation points from the owning record to another record it depends on.
type Relation struct {
	Type   string    `yaml:"type" json:"type"`
	Target uuid.UUID `yaml:"target" json:"target"`
}

// Record is a metadata entity: ordered multi-valued fields plus typed
// relations to other records.
type Record struct {
	ID         uuid.UUID           `yaml:"id" json:"id"`
	EntityType string              `yaml:"entity_type" json:"entity_type"`
	Fields     map[string][]string `yaml:"fields" json:"fields"`
	Relations  []Relation          `yaml:"relations" json:"relations"`
}

// New creates an empty record of the given entity type.
func New(id uuid.UUID, entityType string) *Record {
	return &Record{ID: id, EntityType: entityType, Fields: map[string][]string{}}
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{
		ID:         r.ID,
		EntityType: r.EntityType,
		Fields:     make(map[string][]string, len(r.Fields)),
		Relations:  slices.Clone(r.Relations),
	}
	for k, v := range r.Fields {
		out.Fields[k] = slices.Clone(v)
	}
	return out
}

// Values returns the ordered values for a field. The slice must not be mutated.
func (r *Record) Values(field string) []string {
	if r == nil || r.Fields == nil {
		return nil
	}
	return r.Fields[field]
}

// First returns the first value of a field.
func (r *Record) First(field string) (string, bool) {
	values := r.Values(field)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Has reports whether the field carries at least one value.
func (r *Record) Has(field string) bool {
	return len(r.Values(field)) > 0
}

// SetValues replaces a field's values and reports whether anything changed.
// An empty slice removes the field.
func (r *Record) SetValues(field string, values []string) bool {
	current := r.Values(field)
	if slices.Equal(current, values) {
		return false
	}
	if r.Fields == nil {
		r.Fields = map[string][]string{}
	}
	if len(values) == 0 {
		delete(r.Fields, field)
		return true
	}
	r.Fields[field] = slices.Clone(values)
	return true
}

// RelationTargets returns targets of relations of the given type in order.
func (r *Record) RelationTargets(relationType string) []uuid.UUID {
	var out []uuid.UUID
	for _, rel := range r.Relations {
		if rel.Type == relationType {
			out = append(out, rel.Target)
		}
	}
	return out
}

// FieldNames returns the populated field names sorted lexically.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name, values := range r.Fields {
		if len(values) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Equal reports whether two records carry identical content.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.ID != other.ID || r.EntityType != other.EntityType {
		return false
	}
	if !slices.Equal(r.Relations, other.Relations) {
		return false
	}
	if len(r.FieldNames()) != len(other.FieldNames()) {
		return false
	}
	for name, values := range r.Fields {
		if !slices.Equal(values, other.Fields[name]) {
			return false
		}
	}
	return true
}

// Finder resolves records by identifier.
type Finder interface {
	Find(ctx context.Context, id uuid.UUID) (*Record, error)
}

// Store is the persistent record repository used by enhancement passes.
type Store interface {
	Finder
	Persist(ctx context.Context, rec *Record) error
}

// Graph answers dependency questions: which records derive metadata from rec.
type Graph interface {
	DependentsOf(ctx context.Context, rec *Record) ([]uuid.UUID, error)
}
