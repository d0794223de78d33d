package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

const DateLayout = "2006-01-02"

// RawRow is one decoded data line keyed by canonical field name.
type RawRow struct {
	Line   int
	Values map[string]string
}

// Value is a normalized cell. Present is false for missing columns and sentinel values
// such as "n/a"; Invalid marks a present value that could not be parsed.
type Value struct {
	Raw     string
	Text    string
	Present bool
	Invalid bool
}

func Absent(raw string) Value {
	return Value{Raw: raw}
}

func Text(raw, text string) Value {
	return Value{Raw: raw, Text: text, Present: true}
}

func Unparseable(raw string) Value {
	return Value{Raw: raw, Text: strings.TrimSpace(raw), Present: true, Invalid: true}
}

// Record is a normalized row of one entity. Refs holds resolved reference ids by field name.
type Record struct {
	Line     int
	Entity   string
	Values   map[string]Value
	Refs     map[string]uuid.UUID
	Warnings []string
}

func New(line int, entity string) *Record {
	return &Record{
		Line:   line,
		Entity: entity,
		Values: make(map[string]Value),
		Refs:   make(map[string]uuid.UUID),
	}
}

func (r *Record) Get(field string) Value {
	return r.Values[field]
}

func (r *Record) Set(field string, v Value) {
	r.Values[field] = v
}

// Text returns the normalized text of field, or "" when absent.
func (r *Record) Text(field string) string {
	v := r.Values[field]
	if !v.Present {
		return ""
	}
	return v.Text
}

func (r *Record) Warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// TakeWarnings returns and clears the pending warnings.
func (r *Record) TakeWarnings() []string {
	w := r.Warnings
	r.Warnings = nil
	return w
}

// Key returns the natural key values in declaration order.
func (r *Record) Key(fields []string) []string {
	key := make([]string, len(fields))
	for i, f := range fields {
		key[i] = r.Text(f)
	}
	return key
}

// Payload converts the record into backend column values: dates become time.Time, decimals
// become decimal.Decimal, reference fields carry their resolved uuid, and absent values are nil.
func (r *Record) Payload(d *schema.Descriptor) map[string]any {
	out := make(map[string]any, len(d.Fields))
	for _, f := range d.Fields {
		if _, isRef := d.Reference(f.Name); isRef {
			if id, ok := r.Refs[f.Name]; ok {
				out[f.Name] = id
			} else {
				out[f.Name] = nil
			}
			continue
		}
		v := r.Values[f.Name]
		if !v.Present || v.Invalid {
			out[f.Name] = nil
			continue
		}
		switch f.Type {
		case schema.Date:
			t, err := time.Parse(DateLayout, v.Text)
			if err != nil {
				out[f.Name] = nil
				continue
			}
			out[f.Name] = t
		case schema.Decimal:
			dec, err := decimal.NewFromString(v.Text)
			if err != nil {
				out[f.Name] = nil
				continue
			}
			out[f.Name] = dec
		default:
			out[f.Name] = v.Text
		}
	}
	return out
}

// ValidationOutcome pairs a source line with its blocking errors. No errors means the row is valid.
type ValidationOutcome struct {
	Line   int
	Errors []string
}

func (o ValidationOutcome) Valid() bool {
	return len(o.Errors) == 0
}

// CreationCandidate is a reference value that matched nothing and must be created.
// When the parent is itself pending creation, ParentID is nil and ParentName carries its text.
type CreationCandidate struct {
	Kind       schema.Kind
	Name       string
	ParentKind schema.Kind
	ParentID   uuid.UUID
	ParentName string
	Lines      []int
	Suggestion string
}

type Operation int

const (
	Insert Operation = iota
	Update
)

func (o Operation) String() string {
	switch o {
	case Insert:
		return "insert"
	case Update:
		return "update"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// ReconciledRow is a resolved record tagged for insert or update.
type ReconciledRow struct {
	Record   *Record
	Op       Operation
	Key      []string
	TargetID uuid.UUID
}
