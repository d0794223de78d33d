package services

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{v: validator.New()}
}

// Validate checks one record. An unparseable optional date is not an error: it is cleared and
// a warning is left on the record.
func (v *Validator) Validate(rec *record.Record, d *schema.Descriptor) record.ValidationOutcome {
	out := record.ValidationOutcome{Line: rec.Line}
	for _, f := range d.Fields {
		val := rec.Get(f.Name)
		if !val.Present {
			if f.Required {
				out.Errors = append(out.Errors, fmt.Sprintf("%s is required", f.Name))
			}
			continue
		}
		switch f.Type {
		case schema.Date:
			if !val.Invalid {
				continue
			}
			if f.Required {
				out.Errors = append(out.Errors, fmt.Sprintf("%s: unrecognized date %q", f.Name, val.Text))
				continue
			}
			rec.Warn("%s: unrecognized date %q, left empty", f.Name, val.Text)
			rec.Set(f.Name, record.Absent(val.Raw))
		case schema.Email:
			if err := v.v.Var(val.Text, "email"); err != nil {
				out.Errors = append(out.Errors, fmt.Sprintf("%s: invalid email %q", f.Name, strings.TrimSpace(val.Raw)))
			}
		case schema.Enum:
			if !slices.Contains(f.Allowed, val.Text) {
				out.Errors = append(out.Errors, fmt.Sprintf("%s: %q is not one of %s", f.Name, strings.TrimSpace(val.Raw), strings.Join(f.Allowed, ", ")))
			}
		case schema.Decimal:
			if _, err := decimal.NewFromString(val.Text); err != nil {
				out.Errors = append(out.Errors, fmt.Sprintf("%s: invalid number %q", f.Name, strings.TrimSpace(val.Raw)))
			}
		}
	}
	return out
}
