package services

import (
	"sort"
	"strings"
	"sync"

	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

const msgNotProcessed = "row was not processed"

type rowState int

const (
	rowPending rowState = iota
	rowSucceeded
	rowFailed
)

// Aggregator collects per-row outcomes from every stage. It is safe for concurrent use. A row
// ends in exactly one state: the first terminal outcome wins, and further errors for a failed
// row are appended to its message.
type Aggregator struct {
	mu sync.Mutex

	maxDetails int
	rows       map[int]rowState
	errors     map[int][]string
	warnings   []record.RowMessage
	inserted   int
	updated    int
	created    map[string]int
	refErrors  []record.ReferenceError
	ignored    []string
}

// NewAggregator bounds error and warning details to maxDetails entries each; 0 means unbounded.
func NewAggregator(maxDetails int) *Aggregator {
	return &Aggregator{
		maxDetails: maxDetails,
		rows:       make(map[int]rowState),
		errors:     make(map[int][]string),
		created:    make(map[string]int),
	}
}

// Register adds a row to the run. Every data line of the file is registered exactly once.
func (a *Aggregator) Register(line int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.rows[line]; !ok {
		a.rows[line] = rowPending
	}
}

func (a *Aggregator) Fail(line int, messages ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rows[line] == rowSucceeded {
		return
	}
	a.rows[line] = rowFailed
	a.errors[line] = append(a.errors[line], messages...)
}

func (a *Aggregator) Succeed(line int, op record.Operation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rows[line] != rowPending {
		return
	}
	a.rows[line] = rowSucceeded
	if op == record.Update {
		a.updated++
	} else {
		a.inserted++
	}
}

func (a *Aggregator) Warn(line int, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.warnings = append(a.warnings, record.RowMessage{Row: line, Message: message})
}

func (a *Aggregator) Materialized(res MaterializeResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for kind, n := range res.Created {
		a.created[string(kind)] += n
	}
	a.refErrors = append(a.refErrors, res.Errors...)
}

func (a *Aggregator) Ignored(columns []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ignored = append(a.ignored, columns...)
}

// Pending returns the number of rows with no outcome yet.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, s := range a.rows {
		if s == rowPending {
			n++
		}
	}
	return n
}

// Report fills the counters and details of base. Rows still pending count as skipped when the
// run was cancelled and as failed otherwise.
func (a *Aggregator) Report(base record.Report, kinds []schema.Kind, cancelled bool) record.Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := base
	r.Cancelled = cancelled
	r.Total = len(a.rows)
	r.Inserted = a.inserted
	r.Updated = a.updated

	var details []record.RowMessage
	for line, state := range a.rows {
		switch state {
		case rowSucceeded:
			r.Succeeded++
		case rowFailed:
			r.Failed++
			details = append(details, record.RowMessage{Row: line, Message: strings.Join(a.errors[line], "; ")})
		case rowPending:
			if cancelled {
				r.Skipped++
				continue
			}
			r.Failed++
			details = append(details, record.RowMessage{Row: line, Message: msgNotProcessed})
		}
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Row < details[j].Row })
	r.ErrorDetails, r.TruncatedErrors = bound(details, a.maxDetails)

	warnings := make([]record.RowMessage, len(a.warnings))
	copy(warnings, a.warnings)
	sort.SliceStable(warnings, func(i, j int) bool { return warnings[i].Row < warnings[j].Row })
	r.Warnings, r.TruncatedWarnings = bound(warnings, a.maxDetails)

	r.MasterDataCreated = make(map[string]int, len(kinds))
	for _, k := range kinds {
		if k == schema.Employees {
			continue
		}
		r.MasterDataCreated[string(k)] = 0
	}
	for k, n := range a.created {
		r.MasterDataCreated[k] = n
	}
	r.ReferenceErrors = append([]record.ReferenceError(nil), a.refErrors...)
	r.IgnoredColumns = append([]string(nil), a.ignored...)
	if r.ErrorDetails == nil {
		r.ErrorDetails = []record.RowMessage{}
	}
	return r
}

func bound(msgs []record.RowMessage, limit int) ([]record.RowMessage, int) {
	if limit <= 0 || len(msgs) <= limit {
		return msgs, 0
	}
	return msgs[:limit], len(msgs) - limit
}
