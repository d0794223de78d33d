package record

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Stage string

const (
	StageIdle          Stage = "idle"
	StageDecoding      Stage = "decoding"
	StageValidating    Stage = "validating"
	StageResolving     Stage = "resolving"
	StageMaterializing Stage = "materializing"
	StageReconciling   Stage = "reconciling"
	StageExecuting     Stage = "executing"
	StageReported      Stage = "reported"
)

var stageOrder = map[Stage]int{
	StageIdle:          0,
	StageDecoding:      1,
	StageValidating:    2,
	StageResolving:     3,
	StageMaterializing: 4,
	StageReconciling:   5,
	StageExecuting:     6,
	StageReported:      7,
}

// Before reports whether s comes strictly before other in a run.
func (s Stage) Before(other Stage) bool {
	return stageOrder[s] < stageOrder[other]
}

type RowMessage struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

func (m RowMessage) String() string {
	return fmt.Sprintf("Row %d: %s", m.Row, m.Message)
}

// ReferenceError records a reference value that could not be created. Its rows continue with an
// empty reference.
type ReferenceError struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Rows    []int  `json:"rows"`
	Message string `json:"message"`
}

// Report is the outcome of one import run. It is built once and not modified afterwards.
type Report struct {
	RunID             uuid.UUID        `json:"run_id"`
	Entity            string           `json:"entity"`
	DryRun            bool             `json:"dry_run"`
	Stage             Stage            `json:"stage"`
	Total             int              `json:"total"`
	Succeeded         int              `json:"succeeded"`
	Failed            int              `json:"failed"`
	Skipped           int              `json:"skipped"`
	Inserted          int              `json:"inserted"`
	Updated           int              `json:"updated"`
	ErrorDetails      []RowMessage     `json:"error_details"`
	TruncatedErrors   int              `json:"truncated_errors,omitempty"`
	Warnings          []RowMessage     `json:"warnings,omitempty"`
	TruncatedWarnings int              `json:"truncated_warnings,omitempty"`
	ReferenceErrors   []ReferenceError `json:"reference_errors,omitempty"`
	MasterDataCreated map[string]int   `json:"master_data_created"`
	IgnoredColumns    []string         `json:"ignored_columns,omitempty"`
	FileError         string           `json:"file_error,omitempty"`
	Cancelled         bool             `json:"cancelled"`
	StartedAt         time.Time        `json:"started_at"`
	FinishedAt        time.Time        `json:"finished_at"`
}

// ErrorLines renders error details as "Row N: message".
func (r Report) ErrorLines() []string {
	out := make([]string, 0, len(r.ErrorDetails)+1)
	if r.FileError != "" {
		out = append(out, r.FileError)
	}
	for _, d := range r.ErrorDetails {
		out = append(out, d.String())
	}
	return out
}

func (r Report) HasErrors() bool {
	return r.FileError != "" || r.Failed > 0
}

func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
