package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/assetdesk/modules/importer/domain/backend"
	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/reference"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
	"github.com/iota-uz/assetdesk/modules/importer/infrastructure/memory"
)

func testOptions() Options {
	return Options{BatchSize: 50, Concurrency: 4, Retry: fastRetry, MaxErrorDetails: 100}
}

func runImport(t *testing.T, b backend.Backend, entity, data string, mutate ...func(*Options)) (record.Report, error) {
	t.Helper()
	d, err := schema.DefaultRegistry().Get(entity)
	require.NoError(t, err)
	opts := testOptions()
	for _, m := range mutate {
		m(&opts)
	}
	return NewEngine(b).Run(context.Background(), d, []byte(data), opts)
}

func requireCounts(t *testing.T, r record.Report) {
	t.Helper()
	require.Equal(t, r.Total, r.Succeeded+r.Failed+r.Skipped, "total must equal succeeded+failed+skipped")
}

func TestEngine_MissingRequiredValue(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	r, err := runImport(t, store, "employees", "code,name\nE1,Alice\nE2,")
	require.NoError(t, err)

	require.Equal(t, 2, r.Total)
	require.Equal(t, 1, r.Succeeded)
	require.Equal(t, 1, r.Failed)
	require.Equal(t, []record.RowMessage{{Row: 3, Message: "name is required"}}, r.ErrorDetails)
	require.Equal(t, []string{"Row 3: name is required"}, r.ErrorLines())
	require.Equal(t, record.StageReported, r.Stage)
	requireCounts(t, r)

	rows := store.Rows(schema.EntityEmployees)
	require.Len(t, rows, 1)
	require.Equal(t, "Alice", rows[0].Values["first_name"])
}

func TestEngine_EmptyCellRowGetsAnOutcome(t *testing.T) {
	t.Parallel()

	r, err := runImport(t, memory.NewStore(), "employees", "code,name\nE1,Alice\n,\nE3,Bob\n")
	require.NoError(t, err)

	require.Equal(t, 3, r.Total)
	require.Equal(t, 2, r.Succeeded)
	require.Equal(t, 1, r.Failed)
	require.Len(t, r.ErrorDetails, 1)
	require.Equal(t, 3, r.ErrorDetails[0].Row)
	require.Contains(t, r.ErrorDetails[0].Message, "code is required")
	requireCounts(t, r)
}

func TestEngine_NAIsAValue(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	r, err := runImport(t, store, "employees", "code,name,department\nE1,Na,Engineering\nE2,Bob,NA\n")
	require.NoError(t, err)

	require.Equal(t, 2, r.Succeeded)
	require.Zero(t, r.Failed)
	require.Equal(t, 2, r.MasterDataCreated["departments"])
	require.Len(t, store.References(schema.Departments), 2)
	requireCounts(t, r)
}

func TestEngine_SharedNewReferenceIsCreatedOnce(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("code,name,department\n")
	variants := []string{"Engineering", "engineering", " ENGINEERING ", "Engineering  "}
	for i := 1; i <= 500; i++ {
		fmt.Fprintf(&b, "E%d,Person %d,%s\n", i, i, variants[i%len(variants)])
	}

	store := memory.NewStore()
	r, err := runImport(t, store, "employees", b.String())
	require.NoError(t, err)

	require.Equal(t, 500, r.Succeeded)
	require.Equal(t, 1, store.CreateCalls(schema.Departments))
	require.Equal(t, 1, r.MasterDataCreated["departments"])

	depts := store.References(schema.Departments)
	require.Len(t, depts, 1)
	for _, row := range store.Rows(schema.EntityEmployees) {
		require.Equal(t, depts[0].ID, row.Values["department"])
	}
}

func TestEngine_ThreeRowsShareOneNewDepartment(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	r, err := runImport(t, store, "employees", "code,name,department\nE1,A,Engineering\nE2,B,Engineering\nE3,C,Engineering\n")
	require.NoError(t, err)

	require.Equal(t, 1, r.MasterDataCreated["departments"])
	depts := store.References(schema.Departments)
	require.Len(t, depts, 1)
	require.Equal(t, "Engineering", depts[0].Name)

	rows := store.Rows(schema.EntityEmployees)
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.Equal(t, depts[0].ID, row.Values["department"])
	}
}

func TestEngine_CaseAndWhitespaceVariantsCreateNothing(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	hr := store.SeedReference(schema.Departments, "Human Resources", uuid.Nil)

	r, err := runImport(t, store, "employees", "code,name,department\nE1,A,human resources\nE2,B,  HUMAN   RESOURCES  \nE3,C,Human Resources\n")
	require.NoError(t, err)

	require.Equal(t, 3, r.Succeeded)
	require.Zero(t, store.CreateCalls(schema.Departments))
	require.Zero(t, r.MasterDataCreated["departments"])
	for _, row := range store.Rows(schema.EntityEmployees) {
		require.Equal(t, hr, row.Values["department"])
	}
}

func TestEngine_MalformedRowIsIsolated(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("code,name\n")
	for i := 1; i <= 10; i++ {
		if i == 5 {
			fmt.Fprintf(&b, "E%d,\n", i)
			continue
		}
		fmt.Fprintf(&b, "E%d,Person %d\n", i, i)
	}

	store := memory.NewStore()
	r, err := runImport(t, store, "employees", b.String())
	require.NoError(t, err)

	require.Equal(t, 10, r.Total)
	require.Equal(t, 9, r.Succeeded)
	require.Equal(t, []record.RowMessage{{Row: 6, Message: "name is required"}}, r.ErrorDetails)
	requireCounts(t, r)
}

func TestEngine_BatchFallbackCountsIndividualOutcomes(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	store.BatchHook = func(_ string, _ record.Operation, rows []backend.WriteRow) error {
		if len(rows) > 1 {
			return errors.New("connection reset")
		}
		return nil
	}
	store.RowHook = func(_ string, _ record.Operation, row backend.WriteRow) error {
		if row.Values["code"] == "E7" {
			return errors.New("check constraint violated")
		}
		return nil
	}

	var b strings.Builder
	b.WriteString("code,name\n")
	for i := 1; i <= 20; i++ {
		fmt.Fprintf(&b, "E%d,Person %d\n", i, i)
	}

	r, err := runImport(t, store, "employees", b.String(), func(o *Options) { o.BatchSize = 5 })
	require.NoError(t, err)

	require.Equal(t, 19, r.Succeeded)
	require.Equal(t, 19, r.Inserted)
	require.Equal(t, []record.RowMessage{{Row: 8, Message: "write failed: check constraint violated"}}, r.ErrorDetails)
	require.Len(t, store.Rows(schema.EntityEmployees), 19)
	requireCounts(t, r)
}

func TestEngine_ReimportIsIdempotent(t *testing.T) {
	t.Parallel()

	data := "code,name,department,position\nE1,A,Sales,Rep\nE2,B,Sales,Lead\nE3,C,Ops,Rep\n"
	store := memory.NewStore()

	first, err := runImport(t, store, "employees", data)
	require.NoError(t, err)
	require.Equal(t, 3, first.Inserted)
	require.Equal(t, 2, first.MasterDataCreated["departments"])
	require.Equal(t, 2, first.MasterDataCreated["positions"])

	second, err := runImport(t, store, "employees", data)
	require.NoError(t, err)
	require.Zero(t, second.Inserted)
	require.Equal(t, 3, second.Updated)
	require.Zero(t, second.MasterDataCreated["departments"])
	require.Zero(t, second.MasterDataCreated["positions"])
	require.Len(t, store.Rows(schema.EntityEmployees), 3)
	require.Len(t, store.References(schema.Departments), 2)
}

func TestEngine_DecodeErrorProducesFileError(t *testing.T) {
	t.Parallel()

	r, err := runImport(t, memory.NewStore(), "employees", "code\nE1\n")
	require.ErrorIs(t, err, ErrDecode)
	require.Zero(t, r.Total)
	require.Contains(t, r.FileError, "missing required columns: name")
	require.Equal(t, record.StageDecoding, r.Stage)
	require.Equal(t, []string{r.FileError}, r.ErrorLines())
}

func TestEngine_CancelledRunKeepsPartialReport(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	d, err := schema.DefaultRegistry().Get("employees")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := testOptions()
	opts.OnProgress = func(p Progress) {
		if p.Stage == record.StageExecuting {
			cancel()
		}
	}

	r, err := NewEngine(store).Run(ctx, d, []byte("code,name\nE1,A\nE2,\nE3,C\nE4,D\n"), opts)
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, r.Cancelled)
	require.Equal(t, 4, r.Total)
	require.Equal(t, 1, r.Failed)
	require.Equal(t, 3, r.Skipped)
	require.Equal(t, record.StageExecuting, r.Stage)
	require.Zero(t, store.WriteCalls())
	requireCounts(t, r)
}

func TestEngine_CancelledRunKeepsRowWarnings(t *testing.T) {
	t.Parallel()

	d, err := schema.DefaultRegistry().Get("employees")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := testOptions()
	opts.OnProgress = func(p Progress) {
		if p.Stage == record.StageResolving {
			cancel()
		}
	}

	r, err := NewEngine(memory.NewStore()).Run(ctx, d, []byte("code,name,joining_date\nE1,A,someday\nE2,B,3-Jan-24\n"), opts)
	require.ErrorIs(t, err, ErrCancelled)
	require.True(t, r.Cancelled)
	require.Equal(t, record.StageResolving, r.Stage)
	require.Equal(t, []record.RowMessage{{Row: 2, Message: `joining_date: unrecognized date "someday", left empty`}}, r.Warnings)
	require.Equal(t, 2, r.Skipped)
	requireCounts(t, r)
}

func TestEngine_DryRunWritesNothing(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	r, err := runImport(t, store, "employees", "code,name,department\nE1,A,Legal\nE2,B,legal\n", func(o *Options) { o.DryRun = true })
	require.NoError(t, err)

	require.True(t, r.DryRun)
	require.Equal(t, 2, r.Inserted)
	require.Equal(t, 1, r.MasterDataCreated["departments"])
	require.Zero(t, store.CreateCalls(schema.Departments))
	require.Empty(t, store.Rows(schema.EntityEmployees))
}

func TestEngine_ReferenceCreateFailureLeavesFieldEmpty(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	store.CreateHook = func(_ schema.Kind, name string) error {
		if name == "Broken" {
			return errors.New("permission denied")
		}
		return nil
	}

	r, err := runImport(t, store, "employees", "code,name,department\nE1,A,Broken\nE2,B,Working\n")
	require.NoError(t, err)

	require.Equal(t, 2, r.Succeeded)
	require.Equal(t, []record.ReferenceError{{Kind: "departments", Name: "Broken", Rows: []int{2}, Message: "permission denied"}}, r.ReferenceErrors)
	require.Equal(t, 1, r.MasterDataCreated["departments"])
	require.Contains(t, r.Warnings, record.RowMessage{Row: 2, Message: `department "Broken" could not be created, left empty`})

	rows := store.Rows(schema.EntityEmployees)
	require.Nil(t, rows[0].Values["department"])
	require.NotNil(t, rows[1].Values["department"])
}

func TestEngine_AssetsResolveScopedReferencesAndRejectUnknownAssignee(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	e1 := store.SeedRow(schema.EntityEmployees, map[string]any{"code": "E1", "name": "Alice"})

	data := "Tag,Asset Name,Category,Item,Assigned To,Cost,Purchase Date\n" +
		"A1,Laptop,IT Equipment,Laptop,E1,\"1,200.50\",3-Jan-24\n" +
		"A2,Phone,IT Equipment,Phone,E9,,\n"
	r, err := runImport(t, store, "assets", data)
	require.NoError(t, err)

	require.Equal(t, 1, r.Succeeded)
	require.Equal(t, []record.RowMessage{{Row: 3, Message: `assigned_to "E9" not found in employees`}}, r.ErrorDetails)
	require.Equal(t, 1, r.MasterDataCreated["categories"])

	cats := store.References(schema.Categories)
	require.Len(t, cats, 1)
	for _, item := range store.References(schema.Items) {
		require.Equal(t, cats[0].ID, item.ParentID)
	}

	rows := store.Rows(schema.EntityAssets)
	require.Len(t, rows, 1)
	require.Equal(t, e1, rows[0].Values["assigned_to"])
	require.True(t, decimal.RequireFromString("1200.50").Equal(rows[0].Values["cost"].(decimal.Decimal)))
	require.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), rows[0].Values["purchase_date"])
}

func TestEngine_SimCardsCompositeKeyAndNumberRepair(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	data := "Account Number,MSISDN,Operator,Tariff\n8.31E+11,03001234567,Jazz,Gold\n8.31E+11,03001234568,jazz,gold\n"
	r, err := runImport(t, store, "sim_cards", data)
	require.NoError(t, err)

	require.Equal(t, 2, r.Inserted)
	require.Equal(t, 1, r.MasterDataCreated["providers"])
	require.Equal(t, 1, r.MasterDataCreated["plans"])

	providers := store.References(schema.Providers)
	plans := store.References(schema.Plans)
	require.Len(t, plans, 1)
	require.Equal(t, providers[0].ID, plans[0].ParentID)

	rows := store.Rows(schema.EntitySimCards)
	require.Equal(t, "831000000000", rows[0].Values["account_number"])
	require.Equal(t, "03001234567", rows[0].Values["service_number"])

	again, err := runImport(t, store, "sim_cards", data)
	require.NoError(t, err)
	require.Equal(t, 2, again.Updated)
}

type failingLookup struct {
	*memory.Store
}

func (failingLookup) LookupReference(context.Context, schema.Kind) ([]reference.Entry, error) {
	return nil, errors.New("connection refused")
}

func TestEngine_LookupFailureFailsRemainingRows(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	r, err := runImport(t, failingLookup{Store: store}, "employees", "code,name\nE1,A\nE2,B\nE3,\n")
	require.NoError(t, err)

	require.Equal(t, 3, r.Total)
	require.Equal(t, 3, r.Failed)
	require.Equal(t, "name is required", r.ErrorDetails[2].Message)
	require.Contains(t, r.ErrorDetails[0].Message, "lookup failed: connection refused")
	require.Zero(t, store.WriteCalls())
	requireCounts(t, r)
}

func TestEngine_MixedProblemsKeepCountInvariant(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	store.SeedRow(schema.EntityEmployees, map[string]any{"code": "E1", "name": "Existing"})
	data := "code,name,email,manager,joining_date\n" +
		"E1,Alice,alice@example.com,,3-Jan-24\n" +
		"E2,\"Bob,bob@example.com,,\n" +
		"E3,Carol,not-an-email,,\n" +
		"E1,Alice Again,,,\n" +
		"E4,Dan,,E1,someday\n" +
		"E5,Eve,,E404,\n" +
		"E6,Extra,,,,\n"

	r, err := runImport(t, store, "employees", data)
	require.NoError(t, err)

	require.Equal(t, 7, r.Total)
	require.Equal(t, 3, r.Succeeded)
	require.Equal(t, 1, r.Updated)
	require.Equal(t, 2, r.Inserted)
	require.Equal(t, 4, r.Failed)
	requireCounts(t, r)

	rows := map[int]string{}
	for _, d := range r.ErrorDetails {
		rows[d.Row] = d.Message
	}
	require.Contains(t, rows[3], "malformed row")
	require.Equal(t, `email: invalid email "not-an-email"`, rows[4])
	require.Equal(t, `duplicate code "E1" (first seen on row 2)`, rows[5])
	require.Equal(t, "expected 5 fields, got 6", rows[8])

	require.Contains(t, r.Warnings, record.RowMessage{Row: 6, Message: `joining_date: unrecognized date "someday", left empty`})
	require.Contains(t, r.Warnings, record.RowMessage{Row: 7, Message: `manager "E404" not found in employees, left empty`})
}

func TestEngine_ProgressIsMonotonic(t *testing.T) {
	t.Parallel()

	var percents []int
	_, err := runImport(t, memory.NewStore(), "employees", "code,name\nE1,A\nE2,B\nE3,C\n", func(o *Options) {
		o.BatchSize = 1
		o.OnProgress = func(p Progress) { percents = append(percents, p.Percent) }
	})
	require.NoError(t, err)

	require.NotEmpty(t, percents)
	require.Equal(t, 5, percents[0])
	require.Equal(t, 100, percents[len(percents)-1])
	for i := 1; i < len(percents); i++ {
		require.GreaterOrEqual(t, percents[i], percents[i-1])
	}
}
