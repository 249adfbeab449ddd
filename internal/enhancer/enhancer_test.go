package enhancer_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"metaprop/internal/config"
	"metaprop/internal/enhancer"
	"metaprop/internal/record"
)

type mapFinder map[uuid.UUID]*record.Record

func (m mapFinder) Find(_ context.Context, id uuid.UUID) (*record.Record, error) {
	rec, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("lookup %s: %w", id, record.ErrNotFound)
	}
	return rec.Clone(), nil
}

type named struct {
	name  string
	apply bool
}

func (n named) Name() string { return n.name }

func (n named) CanApply(*record.Record) bool { return n.apply }

func (n named) Apply(context.Context, *record.Record, bool) (bool, error) {
	return false, nil
}

func TestRegistryKeepsOrderAndFiltersApplicable(t *testing.T) {
	registry, err := enhancer.NewRegistry(named{"a", true}, named{"b", false}, named{"c", true})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if registry.Len() != 3 {
		t.Fatalf("expected 3 enhancers, got %d", registry.Len())
	}
	applicable := registry.Applicable(record.New(uuid.New(), "Publication"))
	if len(applicable) != 2 || applicable[0].Name() != "a" || applicable[1].Name() != "c" {
		t.Fatalf("unexpected applicable set: %v", applicable)
	}
	if err := registry.Register(named{"a", true}); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}
	if err := registry.Register(named{" ", true}); err == nil {
		t.Fatal("expected blank name to be rejected")
	}
}

func TestRelatedCopiesSourceFieldAndRecordsSources(t *testing.T) {
	person := record.New(uuid.New(), "Person")
	person.SetValues("dc.title", []string{"Ada"})
	missing := uuid.New()
	finder := mapFinder{person.ID: person}

	pub := record.New(uuid.New(), "Publication")
	pub.Relations = []record.Relation{{Type: "author", Target: person.ID}, {Type: "author", Target: missing}}

	e := &enhancer.Related{ID: "authors", RelationType: "author", SourceField: "dc.title", TargetField: "virtual.author", Finder: finder}
	if !e.CanApply(pub) {
		t.Fatal("expected related enhancer to apply")
	}
	changed, err := e.Apply(context.Background(), pub, false)
	if err != nil || !changed {
		t.Fatalf("first apply: changed=%v err=%v", changed, err)
	}
	if got := pub.Values("virtual.author"); len(got) != 1 || got[0] != "Ada" {
		t.Fatalf("unexpected virtual values %v", got)
	}
	if got := pub.Values("virtual.author" + enhancer.SourceSuffix); len(got) != 1 || got[0] != person.ID.String() {
		t.Fatalf("expected unresolved target skipped in sources, got %v", got)
	}

	for _, deep := range []bool{false, true} {
		changed, err = e.Apply(context.Background(), pub, deep)
		if err != nil || changed {
			t.Fatalf("reapply deep=%v should be a no-op: changed=%v err=%v", deep, changed, err)
		}
	}
}

func TestRelatedShallowSkipsButDeepRereads(t *testing.T) {
	person := record.New(uuid.New(), "Person")
	person.SetValues("dc.title", []string{"Ada"})
	finder := mapFinder{person.ID: person}

	pub := record.New(uuid.New(), "Publication")
	pub.Relations = []record.Relation{{Type: "author", Target: person.ID}}
	e := &enhancer.Related{ID: "authors", RelationType: "author", SourceField: "dc.title", TargetField: "virtual.author", Finder: finder}
	if _, err := e.Apply(context.Background(), pub, false); err != nil {
		t.Fatalf("apply: %v", err)
	}

	person.SetValues("dc.title", []string{"Ada Lovelace"})

	changed, err := e.Apply(context.Background(), pub, false)
	if err != nil || changed {
		t.Fatalf("shallow pass with unchanged relations should skip: changed=%v err=%v", changed, err)
	}
	changed, err = e.Apply(context.Background(), pub, true)
	if err != nil || !changed {
		t.Fatalf("deep pass should pick up upstream change: changed=%v err=%v", changed, err)
	}
	if got, _ := pub.First("virtual.author"); got != "Ada Lovelace" {
		t.Fatalf("expected refreshed value, got %q", got)
	}
}

func TestRelatedCleansUpRemovedRelations(t *testing.T) {
	person := record.New(uuid.New(), "Person")
	person.SetValues("dc.title", []string{"Ada"})
	finder := mapFinder{person.ID: person}

	pub := record.New(uuid.New(), "Publication")
	pub.Relations = []record.Relation{{Type: "author", Target: person.ID}}
	e := &enhancer.Related{ID: "authors", RelationType: "author", SourceField: "dc.title", TargetField: "virtual.author", Finder: finder}
	if _, err := e.Apply(context.Background(), pub, false); err != nil {
		t.Fatalf("apply: %v", err)
	}

	pub.Relations = nil
	if !e.CanApply(pub) {
		t.Fatal("expected enhancer to stay applicable while stale values remain")
	}
	changed, err := e.Apply(context.Background(), pub, false)
	if err != nil || !changed {
		t.Fatalf("expected cleanup: changed=%v err=%v", changed, err)
	}
	if pub.Has("virtual.author") || pub.Has("virtual.author"+enhancer.SourceSuffix) {
		t.Fatalf("expected virtual fields removed, got %v", pub.Fields)
	}
	if e.CanApply(pub) {
		t.Fatal("expected enhancer to stop applying once clean")
	}
}

func TestRelatedKeepsOwnValueWithoutRecordedSources(t *testing.T) {
	pub := record.New(uuid.New(), "Publication")
	pub.SetValues("title", []string{"Own title"})
	e := &enhancer.Related{ID: "titles", RelationType: "author", SourceField: "title", TargetField: "title", Finder: mapFinder{}}

	if e.CanApply(pub) {
		t.Fatal("expected enhancer not to apply without relations or recorded sources")
	}
	for _, deep := range []bool{false, true} {
		changed, err := e.Apply(context.Background(), pub, deep)
		if err != nil || changed {
			t.Fatalf("deep=%v: expected no change, got changed=%v err=%v", deep, changed, err)
		}
		if got, _ := pub.First("title"); got != "Own title" {
			t.Fatalf("deep=%v: own title lost, got %v", deep, pub.Values("title"))
		}
	}

	pub.Relations = []record.Relation{{Type: "author", Target: uuid.New()}}
	changed, err := e.Apply(context.Background(), pub, true)
	if err != nil || changed {
		t.Fatalf("unresolved relation should leave own title: changed=%v err=%v", changed, err)
	}
	if got, _ := pub.First("title"); got != "Own title" {
		t.Fatalf("own title lost after unresolved relation, got %v", pub.Values("title"))
	}
}

func TestComposeBuildsLabel(t *testing.T) {
	e := &enhancer.Compose{
		ID:          "label",
		EntityTypes: []string{"Project"},
		Fields:      []string{"acronym", "missing", "dc.title"},
		Prefix:      "P: ",
		Separator:   " - ",
		TargetField: "label",
	}
	project := record.New(uuid.New(), "Project")
	project.SetValues("acronym", []string{"MP", "ignored"})
	project.SetValues("dc.title", []string{"Metadata Propagation"})

	if e.CanApply(record.New(uuid.New(), "Person")) {
		t.Fatal("compose must be gated by entity type")
	}
	changed, err := e.Apply(context.Background(), project, false)
	if err != nil || !changed {
		t.Fatalf("apply: changed=%v err=%v", changed, err)
	}
	if got, _ := project.First("label"); got != "P: MP - Metadata Propagation" {
		t.Fatalf("unexpected label %q", got)
	}
	if changed, _ := e.Apply(context.Background(), project, true); changed {
		t.Fatal("expected second apply to be idempotent")
	}

	empty := record.New(uuid.New(), "Project")
	if changed, _ := e.Apply(context.Background(), empty, false); changed || empty.Has("label") {
		t.Fatal("expected no label without source values")
	}
}

func TestNormalizeCollapsesWhitespaceAndComposes(t *testing.T) {
	e := &enhancer.Normalize{ID: "norm", Fields: []string{"dc.title"}}
	rec := record.New(uuid.New(), "Publication")
	rec.SetValues("dc.title", []string{"  Café \t society ", "   "})

	changed, err := e.Apply(context.Background(), rec, false)
	if err != nil || !changed {
		t.Fatalf("apply: changed=%v err=%v", changed, err)
	}
	got := rec.Values("dc.title")
	if len(got) != 1 || got[0] != "Café society" {
		t.Fatalf("unexpected normalized values %q", got)
	}
	if changed, _ := e.Apply(context.Background(), rec, false); changed {
		t.Fatal("expected normalized record to be stable")
	}
}

func TestFromConfigBuildsInOrder(t *testing.T) {
	defs := []config.Enhancer{
		{Name: "norm", Type: config.EnhancerTypeNormalize, Fields: []string{"dc.title"}},
		{Name: "authors", Type: config.EnhancerTypeRelated, Relation: "author", SourceField: "dc.title", TargetField: "virtual.author"},
		{Name: "label", Type: config.EnhancerTypeCompose, EntityTypes: []string{"Project"}, Fields: []string{"dc.title"}, TargetField: "label"},
	}
	registry, err := enhancer.FromConfig(defs, mapFinder{})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	var names []string
	for _, e := range registry.Enhancers() {
		names = append(names, e.Name())
	}
	if strings.Join(names, ",") != "norm,authors,label" {
		t.Fatalf("unexpected order %v", names)
	}

	if _, err := enhancer.FromConfig([]config.Enhancer{{Name: "x", Type: "magic"}}, nil); err == nil {
		t.Fatal("expected unknown type to fail")
	}
	if _, err := enhancer.FromConfig(defs[1:2], nil); err == nil {
		t.Fatal("expected related enhancer without finder to fail")
	}
}
