// Package enhancer defines the pluggable enhancer contract, the ordered
// registry the dispatcher consults, and the built-in enhancers that can be
// declared in configuration.
package enhancer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"metaprop/internal/record"
)

// Enhancer derives metadata on a record.
//
// Apply mutates rec in place and reports whether any field changed. It must be
// idempotent: applying it twice to an unchanged record reports no change the
// second time. In deep mode an enhancer re-reads every upstream source it
// depends on instead of trusting cached state on rec.
type Enhancer interface {
	Name() string
	CanApply(rec *record.Record) bool
	Apply(ctx context.Context, rec *record.Record, deep bool) (bool, error)
}

// Registry holds enhancers in registration order.
type Registry struct {
	mu        sync.RWMutex
	enhancers []Enhancer
	names     map[string]struct{}
}

// NewRegistry returns a registry pre-populated with enhancers.
func NewRegistry(enhancers ...Enhancer) (*Registry, error) {
	r := &Registry{names: make(map[string]struct{})}
	for _, e := range enhancers {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends e. Names must be unique and non-empty.
func (r *Registry) Register(e Enhancer) error {
	if e == nil {
		return fmt.Errorf("register enhancer: nil enhancer")
	}
	name := strings.TrimSpace(e.Name())
	if name == "" {
		return fmt.Errorf("register enhancer: name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names == nil {
		r.names = make(map[string]struct{})
	}
	if _, exists := r.names[name]; exists {
		return fmt.Errorf("register enhancer: duplicate name %q", name)
	}
	r.names[name] = struct{}{}
	r.enhancers = append(r.enhancers, e)
	return nil
}

// Applicable returns the enhancers whose CanApply holds for rec, in
// registration order. The result reflects rec as it is now; a pass that
// mutates rec re-checks CanApply per enhancer instead.
func (r *Registry) Applicable(rec *record.Record) []Enhancer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Enhancer
	for _, e := range r.enhancers {
		if e.CanApply(rec) {
			out = append(out, e)
		}
	}
	return out
}

// Enhancers returns every registered enhancer in registration order.
func (r *Registry) Enhancers() []Enhancer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Enhancer, len(r.enhancers))
	copy(out, r.enhancers)
	return out
}

// Len returns the number of registered enhancers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.enhancers)
}

func matchesEntity(types []string, rec *record.Record) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if strings.EqualFold(t, rec.EntityType) {
			return true
		}
	}
	return false
}
