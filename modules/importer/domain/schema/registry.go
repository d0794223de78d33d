package schema

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iota-uz/assetdesk/pkg/serrors"
)

var ErrUnknownEntity = serrors.NewError("IMPORT_UNKNOWN_ENTITY", "unknown import entity", "")

// Registry looks descriptors up by entity name or alias. It is read-only once built.
type Registry struct {
	byName      map[string]*Descriptor
	descriptors []*Descriptor
}

func NewRegistry(descriptors ...*Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Descriptor)}
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		for _, name := range append([]string{d.Entity}, d.Aliases...) {
			key := NormalizeHeader(name)
			if _, dup := r.byName[key]; dup {
				return nil, fmt.Errorf("%w: entity name %q registered twice", ErrInvalidSchema, name)
			}
			r.byName[key] = d
		}
		r.descriptors = append(r.descriptors, d)
	}
	return r, nil
}

// DefaultRegistry builds fresh copies of the built-in descriptors.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(EmployeesSchema(), AssetsSchema(), SimCardsSchema())
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Get(entity string) (*Descriptor, error) {
	d, ok := r.byName[NormalizeHeader(entity)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (expected one of %s)", ErrUnknownEntity, entity, strings.Join(r.Entities(), ", "))
	}
	return d, nil
}

func (r *Registry) Entities() []string {
	out := make([]string, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d.Entity)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Descriptors() []*Descriptor {
	out := make([]*Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	sort.Slice(out, func(i, j int) bool { return out[i].Entity < out[j].Entity })
	return out
}

// Override is the per-entity section of a schema overrides file:
//
//	employees:
//	  synonyms:
//	    mobile: [handphone, hp]
//	  required: [email]
type Override struct {
	Synonyms map[string][]string `yaml:"synonyms"`
	Required []string            `yaml:"required"`
}

// ApplyOverrides adds synonyms and required flags from a YAML document. Overrides never remove
// built-in behaviour. Call it before the registry is shared.
func (r *Registry) ApplyOverrides(data []byte) error {
	var doc map[string]Override
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: overrides: %v", ErrInvalidSchema, err)
	}
	entities := make([]string, 0, len(doc))
	for entity := range doc {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	for _, entity := range entities {
		o := doc[entity]
		d, err := r.Get(entity)
		if err != nil {
			return err
		}
		for field, synonyms := range o.Synonyms {
			f := d.field(field)
			if f == nil {
				return fmt.Errorf("%w: overrides: %s has no field %q", ErrInvalidSchema, d.Entity, field)
			}
			f.Synonyms = append(f.Synonyms, synonyms...)
		}
		for _, field := range o.Required {
			f := d.field(field)
			if f == nil {
				return fmt.Errorf("%w: overrides: %s has no field %q", ErrInvalidSchema, d.Entity, field)
			}
			f.Required = true
		}
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}
