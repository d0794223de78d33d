// Package backend declares the storage capability the import engine consumes.
package backend

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/reference"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
	"github.com/iota-uz/assetdesk/pkg/serrors"
)

var (
	ErrUnsupportedKind   = serrors.NewError("IMPORT_UNSUPPORTED_KIND", "reference kind is not supported by the backend", "")
	ErrUnsupportedEntity = serrors.NewError("IMPORT_UNSUPPORTED_ENTITY", "entity is not supported by the backend", "")
	ErrRowNotFound       = serrors.NewError("IMPORT_ROW_NOT_FOUND", "target row does not exist", "")
)

// Existing is a stored entity matched by natural key.
type Existing struct {
	Key []string
	ID  uuid.UUID
}

// WriteRow is one entity row ready for storage. Values are keyed by field name.
type WriteRow struct {
	Line   int
	ID     uuid.UUID
	Values map[string]any
}

type RowFailure struct {
	ID  uuid.UUID
	Err error
}

// WriteResult reports per-row outcomes of a BulkWrite. Rows named in neither list have no outcome.
type WriteResult struct {
	Succeeded []uuid.UUID
	Failed    []RowFailure
}

// Backend is the persistence capability behind an import. A returned error from BulkWrite means
// the whole batch failed and nothing was written.
type Backend interface {
	LookupReference(ctx context.Context, kind schema.Kind) ([]reference.Entry, error)
	CreateReference(ctx context.Context, kind schema.Kind, name string, parentID uuid.UUID) (uuid.UUID, error)
	LookupExisting(ctx context.Context, entity string, keys [][]string) ([]Existing, error)
	BulkWrite(ctx context.Context, entity string, op record.Operation, rows []WriteRow) (WriteResult, error)
}

// JoinKey renders a natural key as a single comparable string.
func JoinKey(key []string) string {
	return strings.Join(key, "\x1f")
}
