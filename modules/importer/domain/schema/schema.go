package schema

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/iota-uz/assetdesk/pkg/serrors"
)

var ErrInvalidSchema = serrors.NewError("IMPORT_INVALID_SCHEMA", "invalid import schema", "")

type FieldType int

const (
	String FieldType = iota
	Date
	Email
	// NumericText holds digits that must survive as text (phone, account and serial numbers).
	NumericText
	Decimal
	Enum
)

func (t FieldType) String() string {
	switch t {
	case String:
		return "string"
	case Date:
		return "date"
	case Email:
		return "email"
	case NumericText:
		return "numeric_text"
	case Decimal:
		return "decimal"
	case Enum:
		return "enum"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

func (t FieldType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// OnMissing decides what happens to a reference value that matches nothing.
type OnMissing int

const (
	Create OnMissing = iota
	Null
	Reject
)

func (o OnMissing) String() string {
	switch o {
	case Create:
		return "create"
	case Null:
		return "null"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("OnMissing(%d)", int(o))
	}
}

func (o OnMissing) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Allowed  []string  `json:"allowed,omitempty"`
	Synonyms []string  `json:"synonyms,omitempty"`
}

// Reference binds a field holding a free-text name to a reference kind.
// ParentField names another reference field whose resolved id scopes this one.
type Reference struct {
	Field       string    `json:"field"`
	Kind        Kind      `json:"kind"`
	ParentField string    `json:"parent_field,omitempty"`
	OnMissing   OnMissing `json:"on_missing"`
}

// SplitName fills First and Last from Source when both are absent.
type SplitName struct {
	Source string `json:"source"`
	First  string `json:"first"`
	Last   string `json:"last"`
}

type Descriptor struct {
	Entity     string      `json:"entity"`
	Aliases    []string    `json:"aliases,omitempty"`
	Fields     []Field     `json:"fields"`
	References []Reference `json:"references"`
	NaturalKey []string    `json:"natural_key"`
	SplitName  *SplitName  `json:"split_name,omitempty"`

	headers map[string]string
}

// NormalizeHeader lower-cases and trims h, turns spaces and hyphens into underscores,
// and drops any other punctuation: "Mobile No." becomes "mobile_no".
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	var b strings.Builder
	b.Grow(len(h))
	lastUnderscore := false
	for _, r := range h {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case r == ' ' || r == '-' || r == '_' || r == '/' || r == '\t':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func (d *Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (d *Descriptor) field(name string) *Field {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}

func (d *Descriptor) Reference(field string) (Reference, bool) {
	for _, ref := range d.References {
		if ref.Field == field {
			return ref, true
		}
	}
	return Reference{}, false
}

// Canonical maps a raw header cell to a declared field name through the synonym table.
func (d *Descriptor) Canonical(header string) (string, bool) {
	if d.headers == nil {
		d.index()
	}
	name, ok := d.headers[NormalizeHeader(header)]
	return name, ok
}

func (d *Descriptor) index() {
	d.headers = make(map[string]string, len(d.Fields)*3)
	for _, f := range d.Fields {
		d.headers[NormalizeHeader(f.Name)] = f.Name
	}
	for _, f := range d.Fields {
		for _, s := range f.Synonyms {
			key := NormalizeHeader(s)
			if _, taken := d.headers[key]; !taken {
				d.headers[key] = f.Name
			}
		}
	}
}

// MissingColumns lists required fields that the given canonical columns cannot supply.
func (d *Descriptor) MissingColumns(present map[string]bool) []string {
	var missing []string
	for _, f := range d.Fields {
		if !f.Required || present[f.Name] {
			continue
		}
		if d.SplitName != nil && present[d.SplitName.Source] &&
			(f.Name == d.SplitName.First || f.Name == d.SplitName.Last) {
			continue
		}
		missing = append(missing, f.Name)
	}
	return missing
}

// ReferenceLevels groups references so that every parent precedes its children.
func (d *Descriptor) ReferenceLevels() [][]Reference {
	var roots, children []Reference
	for _, ref := range d.References {
		if ref.ParentField == "" {
			roots = append(roots, ref)
		} else {
			children = append(children, ref)
		}
	}
	levels := [][]Reference{}
	if len(roots) > 0 {
		levels = append(levels, roots)
	}
	if len(children) > 0 {
		levels = append(levels, children)
	}
	return levels
}

// Kinds returns the distinct reference kinds in dependency order.
func (d *Descriptor) Kinds() []Kind {
	seen := make(map[Kind]bool)
	var out []Kind
	for _, level := range d.ReferenceLevels() {
		for _, ref := range level {
			if !seen[ref.Kind] {
				seen[ref.Kind] = true
				out = append(out, ref.Kind)
			}
		}
	}
	return out
}

func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.Entity) == "" {
		return fmt.Errorf("%w: entity name is required", ErrInvalidSchema)
	}
	names := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		if f.Name == "" || f.Name != NormalizeHeader(f.Name) {
			return fmt.Errorf("%w: %s: field name %q must be lower_snake_case", ErrInvalidSchema, d.Entity, f.Name)
		}
		if names[f.Name] {
			return fmt.Errorf("%w: %s: duplicate field %q", ErrInvalidSchema, d.Entity, f.Name)
		}
		names[f.Name] = true
		if f.Type == Enum && len(f.Allowed) == 0 {
			return fmt.Errorf("%w: %s: enum field %q has no allowed values", ErrInvalidSchema, d.Entity, f.Name)
		}
	}

	if len(d.NaturalKey) == 0 {
		return fmt.Errorf("%w: %s: natural key is required", ErrInvalidSchema, d.Entity)
	}
	for _, k := range d.NaturalKey {
		f, ok := d.Field(k)
		if !ok {
			return fmt.Errorf("%w: %s: natural key field %q is not declared", ErrInvalidSchema, d.Entity, k)
		}
		if !f.Required {
			return fmt.Errorf("%w: %s: natural key field %q must be required", ErrInvalidSchema, d.Entity, k)
		}
	}

	refs := make(map[string]Reference, len(d.References))
	for _, ref := range d.References {
		if !names[ref.Field] {
			return fmt.Errorf("%w: %s: reference field %q is not declared", ErrInvalidSchema, d.Entity, ref.Field)
		}
		if _, dup := refs[ref.Field]; dup {
			return fmt.Errorf("%w: %s: field %q has two references", ErrInvalidSchema, d.Entity, ref.Field)
		}
		if !ref.Kind.Known() {
			return fmt.Errorf("%w: %s: unknown reference kind %q", ErrInvalidSchema, d.Entity, ref.Kind)
		}
		refs[ref.Field] = ref
	}
	for _, ref := range d.References {
		want, hasParent := ref.Kind.Parent()
		if ref.ParentField == "" {
			if hasParent {
				return fmt.Errorf("%w: %s: %s references need a %s parent field", ErrInvalidSchema, d.Entity, ref.Kind, want)
			}
			continue
		}
		parent, ok := refs[ref.ParentField]
		if !ok {
			return fmt.Errorf("%w: %s: parent field %q of %q is not a reference", ErrInvalidSchema, d.Entity, ref.ParentField, ref.Field)
		}
		if !hasParent || parent.Kind != want {
			return fmt.Errorf("%w: %s: %s cannot be scoped by %s", ErrInvalidSchema, d.Entity, ref.Kind, parent.Kind)
		}
		if parent.ParentField != "" {
			return fmt.Errorf("%w: %s: parent field %q must not have a parent itself", ErrInvalidSchema, d.Entity, ref.ParentField)
		}
	}

	if s := d.SplitName; s != nil {
		for _, name := range []string{s.Source, s.First, s.Last} {
			if !names[name] {
				return fmt.Errorf("%w: %s: split-name field %q is not declared", ErrInvalidSchema, d.Entity, name)
			}
		}
	}

	d.index()
	return nil
}
