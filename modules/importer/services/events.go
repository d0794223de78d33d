package services

import (
	"github.com/google/uuid"

	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
)

// Progress is a snapshot of a running import.
type Progress struct {
	RunID        uuid.UUID    `json:"run_id"`
	Entity       string       `json:"entity"`
	Stage        record.Stage `json:"stage"`
	Percent      int          `json:"percent"`
	Total        int          `json:"total"`
	BatchesDone  int          `json:"batches_done"`
	BatchesTotal int          `json:"batches_total"`
}

// Events carry the tenant of the run; it is uuid.Nil for runs started without one.
type StartedEvent struct {
	TenantID uuid.UUID
	RunID    uuid.UUID
	Entity   string
	DryRun   bool
}

type ProgressEvent struct {
	TenantID uuid.UUID
	Progress Progress
}

// CompletedEvent carries the final report of a run. Err is set when the run ended with a file
// error or was cancelled; the report is still complete.
type CompletedEvent struct {
	TenantID uuid.UUID
	RunID    uuid.UUID
	Report   record.Report
	Err      error
}
