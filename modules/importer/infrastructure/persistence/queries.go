package persistence

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func selectReferencesSQL(k KindTable) string {
	parent := "NULL::uuid"
	if k.Parent != "" {
		parent = ident(k.Parent)
	}
	return fmt.Sprintf(
		"SELECT %s, %s, %s FROM %s WHERE tenant_id = $1 ORDER BY %s",
		ident(k.ID), ident(k.Name), parent, ident(k.Table), ident(k.ID),
	)
}

func insertReferenceSQL(k KindTable) string {
	if k.Parent == "" {
		return fmt.Sprintf(
			"INSERT INTO %s (%s, tenant_id, %s) VALUES ($1, $2, $3) RETURNING %s",
			ident(k.Table), ident(k.ID), ident(k.Name), ident(k.ID),
		)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s, tenant_id, %s, %s) VALUES ($1, $2, $3, $4) RETURNING %s",
		ident(k.Table), ident(k.ID), ident(k.Name), ident(k.Parent), ident(k.ID),
	)
}

// selectExistingSQL matches natural keys passed as one text array per key column.
func selectExistingSQL(e EntityTable) string {
	cols := e.KeyColumns()
	selected := make([]string, len(cols))
	compared := make([]string, len(cols))
	arrays := make([]string, len(cols))
	for i, c := range cols {
		selected[i] = ident(c) + "::text"
		compared[i] = fmt.Sprintf("t.%s::text = k.k%d", ident(c), i)
		arrays[i] = fmt.Sprintf("$%d::text[]", i+2)
	}
	names := make([]string, len(cols))
	for i := range cols {
		names[i] = fmt.Sprintf("k%d", i)
	}
	return fmt.Sprintf(
		"SELECT t.%s, %s FROM %s t JOIN unnest(%s) AS k(%s) ON %s WHERE t.tenant_id = $1",
		ident(e.ID),
		"t."+strings.Join(selected, ", t."),
		ident(e.Table),
		strings.Join(arrays, ", "),
		strings.Join(names, ", "),
		strings.Join(compared, " AND "),
	)
}

// writeColumns returns the mapped fields present in values, sorted for stable statements.
func writeColumns(e EntityTable, values map[string]any) []string {
	fields := make([]string, 0, len(values))
	for f := range values {
		if e.column(f) != "" {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	return fields
}

func insertRowSQL(e EntityTable, fields []string) string {
	cols := []string{ident(e.ID), "tenant_id"}
	params := []string{"$1", "$2"}
	for i, f := range fields {
		cols = append(cols, ident(e.column(f)))
		params = append(params, fmt.Sprintf("$%d", i+3))
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		ident(e.Table), strings.Join(cols, ", "), strings.Join(params, ", "),
	)
}

func updateRowSQL(e EntityTable, fields []string) string {
	sets := make([]string, 0, len(fields)+1)
	for i, f := range fields {
		sets = append(sets, fmt.Sprintf("%s = $%d", ident(e.column(f)), i+3))
	}
	sets = append(sets, "updated_at = now()")
	return fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = $1 AND tenant_id = $2",
		ident(e.Table), strings.Join(sets, ", "), ident(e.ID),
	)
}
