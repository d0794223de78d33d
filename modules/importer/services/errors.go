package services

import "github.com/iota-uz/assetdesk/pkg/serrors"

var (
	ErrDecode       = serrors.NewError("IMPORT_DECODE", "file could not be decoded", "")
	ErrCancelled    = serrors.NewError("IMPORT_CANCELLED", "import cancelled", "")
	ErrStageOrder   = serrors.NewError("IMPORT_STAGE_ORDER", "invalid import stage transition", "")
	ErrRunNotFound  = serrors.NewError("IMPORT_RUN_NOT_FOUND", "import run not found", "")
	ErrRunsDraining = serrors.NewError("IMPORT_RUNS_DRAINING", "import service is shutting down", "")
)
