package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

func normalize(d *schema.Descriptor, line int, values map[string]string) *record.Record {
	return Normalizer{}.Normalize(record.RawRow{Line: line, Values: values}, d)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, time.January, 3, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"3-Jan-24", "03-Jan-24", "3-JAN-2024", "03-jan-2024", "2024-01-03", "3 Jan 2024", "45294"} {
		got, ok := ParseDate(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	for _, in := range []string{"31-Feb-24", "2024", "soon", "01/03/2024", "8.31E+11"} {
		_, ok := ParseDate(in)
		require.False(t, ok, in)
	}
}

func TestFixNumericText(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"8.31E+11":       "831000000000",
		"8.31e11":        "831000000000",
		"923001234567.0": "923001234567",
		"00123.0":        "00123",
		"0300.00":        "0300",
		"12.":            "12",
		"A1.0":           "A1.0",
		"0300":           "0300",
		"'0300":          "0300",
		"1.5":            "1.5",
		"12-34":          "12-34",
		"abc.e":          "abc.e",
	}
	for in, want := range cases {
		require.Equal(t, want, FixNumericText(in), in)
	}
}

func TestNormalizer_Employees(t *testing.T) {
	t.Parallel()

	d := employees(t)
	rec := normalize(d, 7, map[string]string{
		"code":         " E1 ",
		"name":         "Alice  Smith Jones",
		"email":        "ALICE@Example.COM",
		"mobile":       "9.23001E+11",
		"department":   "N/A",
		"joining_date": "3-Jan-24",
		"status":       "On Leave",
		"manager":      "-",
	})

	require.Equal(t, 7, rec.Line)
	require.Equal(t, "E1", rec.Text("code"))
	require.Equal(t, "Alice", rec.Text("first_name"))
	require.Equal(t, "Smith Jones", rec.Text("last_name"))
	require.Equal(t, "alice@example.com", rec.Text("email"))
	require.Equal(t, "923001000000", rec.Text("mobile"))
	require.False(t, rec.Get("department").Present)
	require.False(t, rec.Get("manager").Present)
	require.False(t, rec.Get("project").Present)
	require.Equal(t, "2024-01-03", rec.Text("joining_date"))
	require.Equal(t, "on_leave", rec.Text("status"))
}

func TestNormalizer_OnlyDeclaredSentinelsBlank(t *testing.T) {
	t.Parallel()

	d := employees(t)
	rec := normalize(d, 2, map[string]string{
		"code":       "E1",
		"name":       "Na",
		"department": "NA",
		"location":   " n/a ",
		"project":    "-",
		"position":   "",
	})

	require.True(t, rec.Get("name").Present)
	require.Equal(t, "Na", rec.Text("name"))
	require.True(t, rec.Get("department").Present)
	require.Equal(t, "NA", rec.Text("department"))
	require.False(t, rec.Get("location").Present)
	require.False(t, rec.Get("project").Present)
	require.False(t, rec.Get("position").Present)
}

func TestNormalizer_SplitNameKeepsExplicitParts(t *testing.T) {
	t.Parallel()

	d := employees(t)
	rec := normalize(d, 2, map[string]string{"code": "E1", "name": "Alice Smith", "last_name": "Brown"})
	require.False(t, rec.Get("first_name").Present)
	require.Equal(t, "Brown", rec.Text("last_name"))

	rec = normalize(d, 3, map[string]string{"code": "E2", "name": "Cher"})
	require.Equal(t, "Cher", rec.Text("first_name"))
	require.False(t, rec.Get("last_name").Present)
}

func TestNormalizer_UnparseableDateIsMarked(t *testing.T) {
	t.Parallel()

	rec := normalize(employees(t), 2, map[string]string{"code": "E1", "name": "A", "joining_date": "next monday"})
	v := rec.Get("joining_date")
	require.True(t, v.Present)
	require.True(t, v.Invalid)
	require.Equal(t, "next monday", v.Text)
}
