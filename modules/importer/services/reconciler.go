package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iota-uz/assetdesk/modules/importer/domain/backend"
	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

type Reconciler struct{}

// Keys lists the distinct natural keys of recs in file order.
func (Reconciler) Keys(recs []*record.Record, d *schema.Descriptor) [][]string {
	seen := make(map[string]bool, len(recs))
	out := make([][]string, 0, len(recs))
	for _, rec := range recs {
		key := rec.Key(d.NaturalKey)
		k := backend.JoinKey(key)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, key)
	}
	return out
}

// Reconcile tags each record as an insert or an update of an existing entity. Keys compare as
// exact trimmed text. A key repeated within the file keeps its first row; later rows are returned
// as conflicts so no two batches ever write the same key.
func (Reconciler) Reconcile(recs []*record.Record, d *schema.Descriptor, existing []backend.Existing) ([]record.ReconciledRow, []record.RowMessage) {
	index := make(map[string]uuid.UUID, len(existing))
	for _, e := range existing {
		k := backend.JoinKey(e.Key)
		if _, taken := index[k]; !taken {
			index[k] = e.ID
		}
	}

	var (
		rows      = make([]record.ReconciledRow, 0, len(recs))
		conflicts []record.RowMessage
		firstSeen = make(map[string]int, len(recs))
		keyName   = strings.Join(d.NaturalKey, "/")
	)
	for _, rec := range recs {
		key := rec.Key(d.NaturalKey)
		k := backend.JoinKey(key)
		if first, dup := firstSeen[k]; dup {
			conflicts = append(conflicts, record.RowMessage{
				Row:     rec.Line,
				Message: fmt.Sprintf("duplicate %s %q (first seen on row %d)", keyName, strings.Join(key, "/"), first),
			})
			continue
		}
		firstSeen[k] = rec.Line
		if id, ok := index[k]; ok {
			rows = append(rows, record.ReconciledRow{Record: rec, Op: record.Update, Key: key, TargetID: id})
		} else {
			rows = append(rows, record.ReconciledRow{Record: rec, Op: record.Insert, Key: key})
		}
	}
	return rows, conflicts
}
