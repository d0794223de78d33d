package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

func TestSelectReferencesSQL(t *testing.T) {
	t.Parallel()

	m := DefaultMapping()
	require.Equal(t,
		`SELECT "id", "name", NULL::uuid FROM "departments" WHERE tenant_id = $1 ORDER BY "id"`,
		selectReferencesSQL(m.Kinds[schema.Departments]))
	require.Equal(t,
		`SELECT "id", "name", "category_id" FROM "asset_items" WHERE tenant_id = $1 ORDER BY "id"`,
		selectReferencesSQL(m.Kinds[schema.Items]))
	require.Equal(t,
		`SELECT "id", "code", NULL::uuid FROM "employees" WHERE tenant_id = $1 ORDER BY "id"`,
		selectReferencesSQL(m.Kinds[schema.Employees]))
}

func TestInsertReferenceSQL(t *testing.T) {
	t.Parallel()

	m := DefaultMapping()
	require.Equal(t,
		`INSERT INTO "vendors" ("id", tenant_id, "name") VALUES ($1, $2, $3) RETURNING "id"`,
		insertReferenceSQL(m.Kinds[schema.Vendors]))
	require.Equal(t,
		`INSERT INTO "sim_plans" ("id", tenant_id, "name", "provider_id") VALUES ($1, $2, $3, $4) RETURNING "id"`,
		insertReferenceSQL(m.Kinds[schema.Plans]))
}

func TestSelectExistingSQL_CompositeKey(t *testing.T) {
	t.Parallel()

	e := DefaultMapping().Entities[schema.EntitySimCards]
	require.Equal(t,
		`SELECT t."id", t."account_number"::text, t."service_number"::text FROM "sim_cards" t `+
			`JOIN unnest($2::text[], $3::text[]) AS k(k0, k1) `+
			`ON t."account_number"::text = k.k0 AND t."service_number"::text = k.k1 WHERE t.tenant_id = $1`,
		selectExistingSQL(e))
}

func TestWriteSQL(t *testing.T) {
	t.Parallel()

	e := DefaultMapping().Entities[schema.EntityAssets]
	values := map[string]any{"tag": "A-1", "name": "Laptop", "category": nil, "unmapped": "x"}
	fields := writeColumns(e, values)
	require.Equal(t, []string{"category", "name", "tag"}, fields)

	require.Equal(t,
		`INSERT INTO "assets" ("id", tenant_id, "category_id", "name", "tag") VALUES ($1, $2, $3, $4, $5)`,
		insertRowSQL(e, fields))
	require.Equal(t,
		`UPDATE "assets" SET "category_id" = $3, "name" = $4, "tag" = $5, updated_at = now() WHERE "id" = $1 AND tenant_id = $2`,
		updateRowSQL(e, fields))
}

func TestMapping_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultMapping().Validate())

	m := DefaultMapping()
	e := m.Entities[schema.EntityAssets]
	e.Key = []string{"barcode"}
	m.Entities[schema.EntityAssets] = e
	require.Error(t, m.Validate())

	m = DefaultMapping()
	k := m.Kinds[schema.Items]
	k.Parent = ""
	m.Kinds[schema.Items] = k
	require.Error(t, m.Validate())
}
