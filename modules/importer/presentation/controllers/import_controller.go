package controllers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
	"github.com/iota-uz/assetdesk/modules/importer/infrastructure/progress"
	"github.com/iota-uz/assetdesk/modules/importer/services"
	"github.com/iota-uz/assetdesk/pkg/application"
	"github.com/iota-uz/assetdesk/pkg/composables"
	"github.com/iota-uz/assetdesk/pkg/configuration"
	"github.com/iota-uz/assetdesk/pkg/httpapi"
	"github.com/iota-uz/assetdesk/pkg/middleware"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ImportControllerOptions struct {
	BasePath     string
	TenantHeader string
	MaxFileSize  int64
}

type ImportController struct {
	imports  *services.ImportService
	statuses progress.Store
	opts     ImportControllerOptions
}

func NewImportController(imports *services.ImportService, statuses progress.Store, opts ImportControllerOptions) application.Controller {
	if opts.BasePath == "" {
		opts.BasePath = "/imports"
	}
	if opts.TenantHeader == "" {
		opts.TenantHeader = "X-Tenant-ID"
	}
	return &ImportController{imports: imports, statuses: statuses, opts: opts}
}

func (c *ImportController) Key() string {
	return c.opts.BasePath
}

func (c *ImportController) Register(r *mux.Router) {
	r.HandleFunc("/schemas", c.ListSchemas).Methods(http.MethodGet)

	api := r.PathPrefix(c.opts.BasePath).Subrouter()
	api.Use(middleware.RequireTenant(c.opts.TenantHeader))

	api.HandleFunc("/{entity}", c.Start).Methods(http.MethodPost)
	api.HandleFunc("/{id}", c.Get).Methods(http.MethodGet)
	api.HandleFunc("/{id}/errors.xlsx", c.ErrorWorkbook).Methods(http.MethodGet)
	api.HandleFunc("/{id}", c.Cancel).Methods(http.MethodDelete)
}

type startResponse struct {
	RunID     string `json:"run_id"`
	Entity    string `json:"entity"`
	DryRun    bool   `json:"dry_run"`
	StatusURL string `json:"status_url"`
}

func (c *ImportController) Start(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	entity := mux.Vars(r)["entity"]

	d, err := c.imports.Registry().Get(entity)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}

	q := r.URL.Query()
	apply, err := parseBool(q.Get("apply"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_INVALID_QUERY", "apply must be a boolean")
		return
	}
	batchSize, err := parseOptionalInt(q.Get("batch_size"), configuration.MaxImportBatchSize)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_INVALID_QUERY", "batch_size "+err.Error())
		return
	}
	concurrency, err := parseOptionalInt(q.Get("concurrency"), configuration.MaxImportConcurrency)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_INVALID_QUERY", "concurrency "+err.Error())
		return
	}

	data, err := c.readFile(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIError(w, http.StatusRequestEntityTooLarge, requestID, "IMPORT_FILE_TOO_LARGE", fmt.Sprintf("file exceeds %d bytes", c.opts.MaxFileSize))
			return
		}
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_INVALID_BODY", err.Error())
		return
	}

	id, err := c.imports.Start(r.Context(), services.ImportRequest{
		Entity:      d.Entity,
		Data:        data,
		DryRun:      !apply,
		BatchSize:   batchSize,
		Concurrency: concurrency,
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}

	composables.UseLogger(r.Context()).WithField("run_id", id.String()).WithField("entity", d.Entity).Info("import accepted")
	_ = httpapi.WriteJSON(w, http.StatusAccepted, startResponse{
		RunID:     id.String(),
		Entity:    d.Entity,
		DryRun:    !apply,
		StatusURL: c.opts.BasePath + "/" + id.String(),
	})
}

// readFile accepts the file as the raw body or as the "file" part of a multipart form.
func (c *ImportController) readFile(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if c.opts.MaxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, c.opts.MaxFileSize)
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			return nil, errors.New("request body is empty")
		}
		return data, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("multipart form has no file part")
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		_ = part.Close()
		return data, err
	}
}

type statusResponse struct {
	progress.Status
	Errors []string `json:"errors,omitempty"`
}

func (c *ImportController) Get(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	status, ok := c.status(w, r, requestID)
	if !ok {
		return
	}
	resp := statusResponse{Status: status}
	if status.Report != nil {
		resp.Errors = status.Report.ErrorLines()
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (c *ImportController) ErrorWorkbook(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	status, ok := c.status(w, r, requestID)
	if !ok {
		return
	}
	if status.Report == nil {
		writeAPIError(w, http.StatusConflict, requestID, "IMPORT_RUNNING", "import has not finished yet")
		return
	}
	data, err := services.WriteErrorWorkbook(*status.Report)
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", status.Entity+"-import-errors.xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (c *ImportController) Cancel(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_INVALID_ID", "run id must be a uuid")
		return
	}
	if err := c.imports.Cancel(r.Context(), id); err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusAccepted, map[string]string{"run_id": id.String(), "state": "cancelling"})
}

func (c *ImportController) ListSchemas(w http.ResponseWriter, r *http.Request) {
	registry := c.imports.Registry()
	entity := strings.TrimSpace(r.URL.Query().Get("entity"))
	if entity != "" {
		d, err := registry.Get(entity)
		if err != nil {
			writeServiceError(w, composables.UseRequestID(r.Context()), err)
			return
		}
		_ = httpapi.WriteJSON(w, http.StatusOK, []*schema.Descriptor{d})
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, registry.Descriptors())
}

// status loads the run of the request's tenant. Runs that started but have not stored a status
// yet are reported as running.
func (c *ImportController) status(w http.ResponseWriter, r *http.Request, requestID string) (progress.Status, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "IMPORT_INVALID_ID", "run id must be a uuid")
		return progress.Status{}, false
	}
	tenantID, err := composables.UseTenantID(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "TENANT_REQUIRED", "tenant is required")
		return progress.Status{}, false
	}
	status, err := c.statuses.Get(r.Context(), tenantID, id)
	if errors.Is(err, progress.ErrNotFound) && c.imports.Running(r.Context(), id) {
		return progress.Status{TenantID: tenantID, RunID: id, State: progress.StateRunning}, true
	}
	if err != nil {
		writeServiceError(w, requestID, err)
		return progress.Status{}, false
	}
	return status, true
}

func parseBool(raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

// parseOptionalInt returns 0 for an empty value.
func parseOptionalInt(raw string, limit int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > limit {
		return 0, fmt.Errorf("must be an integer between 1 and %d", limit)
	}
	return n, nil
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	var meta map[string]string
	if requestID != "" {
		meta = map[string]string{"request_id": requestID}
	}
	_ = httpapi.WriteError(w, status, code, message, meta)
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, schema.ErrUnknownEntity),
		errors.Is(err, services.ErrRunNotFound),
		errors.Is(err, progress.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrRunsDraining):
		status = http.StatusServiceUnavailable
	}
	_ = httpapi.WriteServiceError(w, status, "IMPORT_INTERNAL", err, requestID)
}
