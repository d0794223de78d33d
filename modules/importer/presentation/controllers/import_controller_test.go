package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
	"github.com/iota-uz/assetdesk/modules/importer/infrastructure/memory"
	"github.com/iota-uz/assetdesk/modules/importer/infrastructure/progress"
	"github.com/iota-uz/assetdesk/modules/importer/services"
	"github.com/iota-uz/assetdesk/pkg/eventbus"
	"github.com/iota-uz/assetdesk/pkg/httpapi"
	"github.com/iota-uz/assetdesk/pkg/logging"
)

type fixture struct {
	router *mux.Router
	store  *memory.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore()
	bus := eventbus.NewEventPublisher(logrus.New())
	statuses := progress.NewMemoryStore(time.Hour)
	progress.Subscribe(bus, statuses, logging.Nop())

	defaults := services.Options{BatchSize: 10, Concurrency: 2, MaxErrorDetails: 100}
	svc := services.NewImportService(services.NewEngine(store), schema.DefaultRegistry(), bus, defaults, logging.Nop())
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	c := NewImportController(svc, statuses, ImportControllerOptions{MaxFileSize: 1 << 20})
	r := mux.NewRouter()
	c.Register(r)
	return fixture{router: r, store: store}
}

func (f fixture) do(t *testing.T, method, target string, tenant uuid.UUID, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if tenant != uuid.Nil {
		req.Header.Set("X-Tenant-ID", tenant.String())
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f fixture) waitFinished(t *testing.T, tenant uuid.UUID, runID string) statusResponse {
	t.Helper()
	var resp statusResponse
	require.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/imports/"+runID, tenant, nil, "")
		if rec.Code != http.StatusOK {
			return false
		}
		resp = statusResponse{}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			return false
		}
		return resp.State != progress.StateRunning
	}, 5*time.Second, 10*time.Millisecond)
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpapi.ErrorEnvelope {
	t.Helper()
	var env httpapi.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestImportController_StartAndPoll(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tenant := uuid.New()
	csv := []byte("Employee Code,Full Name,Department\nE1,Ann Lee,Engineering\nE2,Bob Ray,Engineering\n,Nameless,Sales\n")

	rec := f.do(t, http.MethodPost, "/imports/employees?apply=true", tenant, csv, "text/csv")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var started startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.False(t, started.DryRun)
	require.Equal(t, "/imports/"+started.RunID, started.StatusURL)

	status := f.waitFinished(t, tenant, started.RunID)
	require.Equal(t, progress.StateCompleted, status.State)
	require.NotNil(t, status.Report)
	require.Equal(t, 3, status.Report.Total)
	require.Equal(t, 2, status.Report.Inserted)
	require.Equal(t, 1, status.Report.Failed)
	require.Equal(t, 1, status.Report.MasterDataCreated["departments"])
	require.Equal(t, []string{"Row 4: code is required"}, status.Errors)
	require.Len(t, f.store.Rows(schema.EntityEmployees), 2)

	rec = f.do(t, http.MethodGet, "/imports/"+started.RunID+"/errors.xlsx", tenant, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Body.Bytes())

	rec = f.do(t, http.MethodGet, "/imports/"+started.RunID, uuid.New(), nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code, "runs are scoped to their tenant")
}

func TestImportController_DryRunByDefaultWithMultipart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tenant := uuid.New()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "sims.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte("Account No,MSISDN,Operator\n831000000000,03001234567,Jazz\n"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := f.do(t, http.MethodPost, "/imports/sims", tenant, body.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var started startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.True(t, started.DryRun)
	require.Equal(t, schema.EntitySimCards, started.Entity)

	status := f.waitFinished(t, tenant, started.RunID)
	require.Equal(t, progress.StateCompleted, status.State)
	require.Equal(t, 1, status.Report.Inserted)
	require.Empty(t, f.store.Rows(schema.EntitySimCards))
}

func TestImportController_Errors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tenant := uuid.New()

	rec := f.do(t, http.MethodPost, "/imports/employees", uuid.Nil, []byte("code,name\nE1,A\n"), "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "TENANT_REQUIRED", decodeError(t, rec).Code)

	rec = f.do(t, http.MethodPost, "/imports/vehicles", tenant, []byte("vin\n1\n"), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "IMPORT_UNKNOWN_ENTITY", decodeError(t, rec).Code)

	rec = f.do(t, http.MethodPost, "/imports/employees", tenant, nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "IMPORT_INVALID_BODY", decodeError(t, rec).Code)

	rec = f.do(t, http.MethodPost, "/imports/employees?batch_size=0", tenant, []byte("code,name\nE1,A\n"), "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/imports/employees", tenant, bytes.Repeat([]byte("x"), 2<<20), "")
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = f.do(t, http.MethodGet, "/imports/"+uuid.NewString(), tenant, nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "IMPORT_STATUS_NOT_FOUND", decodeError(t, rec).Code)

	rec = f.do(t, http.MethodGet, "/imports/not-a-uuid", tenant, nil, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/imports/"+uuid.NewString(), tenant, nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "IMPORT_RUN_NOT_FOUND", decodeError(t, rec).Code)
}

func TestImportController_RejectsOutOfRangeOverrides(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tenant := uuid.New()

	cases := map[string]string{
		"batch_size=1001":   "batch_size must be an integer between 1 and 1000",
		"batch_size=-5":     "batch_size must be an integer between 1 and 1000",
		"concurrency=17":    "concurrency must be an integer between 1 and 16",
		"concurrency=10000": "concurrency must be an integer between 1 and 16",
		"concurrency=many":  "concurrency must be an integer between 1 and 16",
	}
	for query, want := range cases {
		rec := f.do(t, http.MethodPost, "/imports/employees?apply=true&"+query, tenant, []byte("code,name\nE1,A\n"), "")
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
		env := decodeError(t, rec)
		require.Equal(t, "IMPORT_INVALID_QUERY", env.Code, query)
		require.Equal(t, want, env.Message, query)
	}

	rec := f.do(t, http.MethodPost, "/imports/employees?apply=true&batch_size=1000&concurrency=16", tenant, []byte("code,name\nE1,A\n"), "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var start startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &start))
	resp := f.waitFinished(t, tenant, start.RunID)
	require.Equal(t, progress.StateCompleted, resp.State)
	require.Equal(t, 1, f.store.WriteCalls())
}

func TestImportController_FileErrorIsReported(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tenant := uuid.New()

	rec := f.do(t, http.MethodPost, "/imports/assets?apply=1", tenant, []byte("tag,name\nA-1,Laptop\n"), "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started startResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	status := f.waitFinished(t, tenant, started.RunID)
	require.Equal(t, progress.StateFailed, status.State)
	require.NotEmpty(t, status.Report.FileError)
	require.Contains(t, status.Errors[0], "category")
}

func TestImportController_ListSchemas(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/schemas", uuid.Nil, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []struct {
		Entity string `json:"entity"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 3)
	require.Equal(t, "assets", out[0].Entity)

	rec = f.do(t, http.MethodGet, "/schemas?entity=staff", uuid.Nil, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	require.Equal(t, "employees", out[0].Entity)
}
