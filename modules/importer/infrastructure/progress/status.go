// Package progress stores the state of background imports so they can be polled.
package progress

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/services"
	"github.com/iota-uz/assetdesk/pkg/serrors"
)

var ErrNotFound = serrors.NewError("IMPORT_STATUS_NOT_FOUND", "import status not found", "")

type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

type Status struct {
	TenantID  uuid.UUID         `json:"tenant_id"`
	RunID     uuid.UUID         `json:"run_id"`
	Entity    string            `json:"entity"`
	DryRun    bool              `json:"dry_run"`
	State     State             `json:"state"`
	Progress  services.Progress `json:"progress"`
	Report    *record.Report    `json:"report,omitempty"`
	Error     string            `json:"error,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store keeps statuses per tenant. Entries expire after the store's TTL.
type Store interface {
	Save(ctx context.Context, s Status) error
	Get(ctx context.Context, tenantID, runID uuid.UUID) (Status, error)
}
