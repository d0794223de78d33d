package services

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

var dateLayouts = []string{
	"2-Jan-06",
	"2-Jan-2006",
	"2 Jan 2006",
	"2-January-2006",
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// Plain numbers in a date column are read as Excel serial days between 1954 and 2119; smaller
// values are more likely years or typos.
const (
	minExcelSerial = 20000
	maxExcelSerial = 80000
)

var sentinels = map[string]bool{
	"":    true,
	"-":   true,
	"n/a": true,
}

// Normalizer turns raw cells into typed values. It never fails: anything it cannot interpret is
// kept and marked invalid for the validator to judge.
type Normalizer struct{}

func (Normalizer) Normalize(raw record.RawRow, d *schema.Descriptor) *record.Record {
	rec := record.New(raw.Line, d.Entity)
	for _, f := range d.Fields {
		cell, ok := raw.Values[f.Name]
		if !ok {
			rec.Set(f.Name, record.Absent(""))
			continue
		}
		rec.Set(f.Name, normalizeValue(f, cell))
	}
	if s := d.SplitName; s != nil {
		splitName(rec, s)
	}
	return rec
}

func normalizeValue(f schema.Field, cell string) record.Value {
	v := strings.TrimSpace(cell)
	if sentinels[strings.ToLower(v)] {
		return record.Absent(cell)
	}
	switch f.Type {
	case schema.Date:
		t, ok := ParseDate(v)
		if !ok {
			return record.Unparseable(cell)
		}
		return record.Text(cell, t.Format(record.DateLayout))
	case schema.NumericText:
		return record.Text(cell, FixNumericText(v))
	case schema.Decimal:
		return record.Text(cell, strings.ReplaceAll(strings.ReplaceAll(v, ",", ""), " ", ""))
	case schema.Email:
		return record.Text(cell, strings.ToLower(v))
	case schema.Enum:
		return record.Text(cell, schema.NormalizeHeader(v))
	default:
		return record.Text(cell, v)
	}
}

// ParseDate accepts the day-month-year forms spreadsheets produce, ISO dates and Excel serial
// day numbers.
func ParseDate(v string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil && serial >= minExcelSerial && serial < maxExcelSerial && !strings.ContainsAny(v, "eE") {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// FixNumericText undoes spreadsheet number mangling in identifiers: "8.31E+11" becomes
// "831000000000" and "923001234567.0" loses its fraction. Leading zeros survive a zero
// fraction ("00123.0" stays "00123") but not exponent notation.
func FixNumericText(v string) string {
	v = strings.TrimPrefix(v, "'")
	if !strings.ContainsAny(v, ".eE") {
		return v
	}
	if !strings.ContainsAny(v, "eE") {
		whole, frac, _ := strings.Cut(v, ".")
		if digits(whole) && strings.Trim(frac, "0") == "" {
			return whole
		}
		return v
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return v
	}
	return d.String()
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func splitName(rec *record.Record, s *schema.SplitName) {
	if rec.Get(s.First).Present || rec.Get(s.Last).Present {
		return
	}
	src := rec.Get(s.Source)
	if !src.Present {
		return
	}
	parts := strings.Fields(src.Text)
	if len(parts) == 0 {
		return
	}
	rec.Set(s.First, record.Text(parts[0], parts[0]))
	if len(parts) > 1 {
		last := strings.Join(parts[1:], " ")
		rec.Set(s.Last, record.Text(last, last))
	}
}
