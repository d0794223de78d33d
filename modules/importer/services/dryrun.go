package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/assetdesk/modules/importer/domain/backend"
	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

// DryRunBackend reads through to the wrapped backend and pretends every write succeeds.
type DryRunBackend struct {
	backend.Backend
}

func NewDryRunBackend(b backend.Backend) *DryRunBackend {
	return &DryRunBackend{Backend: b}
}

func (d *DryRunBackend) CreateReference(_ context.Context, _ schema.Kind, _ string, _ uuid.UUID) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (d *DryRunBackend) BulkWrite(_ context.Context, _ string, _ record.Operation, rows []backend.WriteRow) (backend.WriteResult, error) {
	res := backend.WriteResult{Succeeded: make([]uuid.UUID, 0, len(rows))}
	for _, r := range rows {
		res.Succeeded = append(res.Succeeded, r.ID)
	}
	return res, nil
}
