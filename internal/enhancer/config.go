package enhancer

import (
	"fmt"

	"metaprop/internal/config"
	"metaprop/internal/record"
)

// FromConfig builds a registry from [[enhancers]] definitions in order.
// finder resolves related records for "related" enhancers.
func FromConfig(defs []config.Enhancer, finder record.Finder) (*Registry, error) {
	registry, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		e, err := build(def, finder)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(e); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func build(def config.Enhancer, finder record.Finder) (Enhancer, error) {
	switch def.Type {
	case config.EnhancerTypeRelated:
		if finder == nil {
			return nil, fmt.Errorf("enhancer %q: related enhancers need a record finder", def.Name)
		}
		return &Related{
			ID:           def.Name,
			RelationType: def.Relation,
			SourceField:  def.SourceField,
			TargetField:  def.TargetField,
			EntityTypes:  def.EntityTypes,
			Finder:       finder,
		}, nil
	case config.EnhancerTypeCompose:
		separator := def.Separator
		if separator == "" {
			separator = " "
		}
		return &Compose{
			ID:          def.Name,
			EntityTypes: def.EntityTypes,
			Fields:      def.Fields,
			Prefix:      def.Prefix,
			Separator:   separator,
			TargetField: def.TargetField,
		}, nil
	case config.EnhancerTypeNormalize:
		return &Normalize{
			ID:          def.Name,
			EntityTypes: def.EntityTypes,
			Fields:      def.Fields,
		}, nil
	default:
		return nil, fmt.Errorf("enhancer %q: unsupported type %q", def.Name, def.Type)
	}
}
