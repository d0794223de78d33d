package record

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

func TestRecord_PayloadTypesValues(t *testing.T) {
	t.Parallel()

	d := schema.AssetsSchema()
	require.NoError(t, d.Validate())

	category := uuid.New()
	rec := New(2, d.Entity)
	rec.Set("tag", Text("A-1", "A-1"))
	rec.Set("name", Text("Laptop", "Laptop"))
	rec.Set("category", Text("IT", "IT"))
	rec.Set("purchase_date", Text("3-Jan-24", "2024-01-03"))
	rec.Set("warranty_expiry", Unparseable("soon"))
	rec.Set("cost", Text("1,200.50", "1200.5"))
	rec.Set("vendor", Absent("n/a"))
	rec.Refs["category"] = category

	p := rec.Payload(d)
	require.Equal(t, "A-1", p["tag"])
	require.Equal(t, category, p["category"])
	require.Nil(t, p["item"])
	require.Nil(t, p["vendor"])
	require.Nil(t, p["warranty_expiry"])
	require.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), p["purchase_date"])
	require.True(t, decimal.RequireFromString("1200.5").Equal(p["cost"].(decimal.Decimal)))
	require.Contains(t, p, "serial_number")
	require.Nil(t, p["serial_number"])
}

func TestRecord_KeyAndWarnings(t *testing.T) {
	t.Parallel()

	rec := New(4, schema.EntitySimCards)
	rec.Set("account_number", Text("831000000000", "831000000000"))
	rec.Set("service_number", Text(" 0300 ", "0300"))
	require.Equal(t, []string{"831000000000", "0300"}, rec.Key([]string{"account_number", "service_number"}))
	require.Equal(t, "", rec.Text("plan"))

	rec.Warn("plan %q not found", "Gold")
	require.Equal(t, []string{`plan "Gold" not found`}, rec.TakeWarnings())
	require.Empty(t, rec.TakeWarnings())
}

func TestStage_Before(t *testing.T) {
	t.Parallel()

	require.True(t, StageIdle.Before(StageDecoding))
	require.True(t, StageResolving.Before(StageMaterializing))
	require.False(t, StageReported.Before(StageExecuting))
	require.False(t, StageExecuting.Before(StageExecuting))
}

func TestReport_ErrorLines(t *testing.T) {
	t.Parallel()

	r := Report{
		Failed: 1,
		ErrorDetails: []RowMessage{
			{Row: 3, Message: "name is required"},
		},
	}
	require.Equal(t, []string{"Row 3: name is required"}, r.ErrorLines())
	require.True(t, r.HasErrors())
	require.False(t, Report{}.HasErrors())
}
