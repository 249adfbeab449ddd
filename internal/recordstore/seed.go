package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"metaprop/internal/record"
)

type seedDocument struct {
	Records []seedRecord `yaml:"records"`
}

type seedRecord struct {
	ID         string              `yaml:"id"`
	EntityType string              `yaml:"entity_type"`
	Fields     map[string][]string `yaml:"fields,omitempty"`
	Relations  []seedRelation      `yaml:"relations,omitempty"`
}

type seedRelation struct {
	Type   string `yaml:"type"`
	Target string `yaml:"target"`
}

// Import loads a YAML seed document and persists every record in one
// transaction. It returns the imported ids in document order.
func (s *Store) Import(ctx context.Context, r io.Reader) ([]uuid.UUID, error) {
	recs, err := Decode(r)
	if err != nil {
		return nil, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			if err := s.persistTx(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

// Decode parses a YAML seed document into records.
func Decode(r io.Reader) ([]*record.Record, error) {
	var doc seedDocument
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(doc.Records))
	out := make([]*record.Record, 0, len(doc.Records))
	for i, item := range doc.Records {
		id, err := uuid.Parse(strings.TrimSpace(item.ID))
		if err != nil {
			return nil, fmt.Errorf("seed record %d: invalid id %q: %w", i, item.ID, err)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("seed record %d: duplicate id %s", i, id)
		}
		seen[id] = struct{}{}
		entityType := strings.TrimSpace(item.EntityType)
		if entityType == "" {
			return nil, fmt.Errorf("seed record %s: entity_type is required", id)
		}
		rec := record.New(id, entityType)
		for name, values := range item.Fields {
			rec.SetValues(strings.TrimSpace(name), values)
		}
		for _, rel := range item.Relations {
			target, err := uuid.Parse(strings.TrimSpace(rel.Target))
			if err != nil {
				return nil, fmt.Errorf("seed record %s: invalid relation target %q: %w", id, rel.Target, err)
			}
			rec.Relations = append(rec.Relations, record.Relation{Type: strings.TrimSpace(rel.Type), Target: target})
		}
		out = append(out, rec)
	}
	return out, nil
}

// Encode writes records using the seed document format accepted by Import.
func Encode(w io.Writer, recs ...*record.Record) error {
	doc := seedDocument{Records: make([]seedRecord, 0, len(recs))}
	for _, rec := range recs {
		item := seedRecord{
			ID:         rec.ID.String(),
			EntityType: rec.EntityType,
			Fields:     rec.Clone().Fields,
		}
		for _, rel := range rec.Relations {
			item.Relations = append(item.Relations, seedRelation{Type: rel.Type, Target: rel.Target.String()})
		}
		doc.Records = append(doc.Records, item)
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("encode seed: %w", err)
	}
	return encoder.Close()
}
