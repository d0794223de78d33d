package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/assetdesk/modules/importer/domain/backend"
	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/reference"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

type MaterializeResult struct {
	Created map[schema.Kind]int
	Errors  []record.ReferenceError
}

// Materializer creates missing reference values, one backend call per distinct value, parents
// before children. New ids are added to the run's sets.
type Materializer struct {
	backend backend.Backend
	log     *logrus.Entry
}

func NewMaterializer(b backend.Backend, log *logrus.Entry) *Materializer {
	return &Materializer{backend: b, log: log}
}

// Materialize stops early only when ctx is done. A failed create is recorded and the remaining
// candidates are still processed.
func (m *Materializer) Materialize(ctx context.Context, cands []record.CreationCandidate, sets reference.Sets) (MaterializeResult, error) {
	res := MaterializeResult{Created: make(map[schema.Kind]int)}
	ordered := make([]record.CreationCandidate, len(cands))
	copy(ordered, cands)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Kind.Level() < ordered[j].Kind.Level()
	})

	for _, c := range ordered {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		parentID := c.ParentID
		if c.ParentName != "" {
			id, ok := sets.Get(c.ParentKind).Lookup(uuid.Nil, c.ParentName)
			if !ok {
				res.Errors = append(res.Errors, record.ReferenceError{
					Kind:    string(c.Kind),
					Name:    c.Name,
					Rows:    c.Lines,
					Message: fmt.Sprintf("parent %s %q is not available", c.ParentKind, c.ParentName),
				})
				continue
			}
			parentID = id
		}

		set := sets.Get(c.Kind)
		if _, exists := set.Lookup(parentID, c.Name); exists {
			continue
		}
		id, err := m.backend.CreateReference(ctx, c.Kind, c.Name, parentID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			m.log.WithError(err).WithFields(logrus.Fields{"kind": c.Kind, "name": c.Name}).Warn("reference create failed")
			res.Errors = append(res.Errors, record.ReferenceError{
				Kind:    string(c.Kind),
				Name:    c.Name,
				Rows:    c.Lines,
				Message: err.Error(),
			})
			continue
		}
		set.Add(reference.Entry{ID: id, Name: c.Name, ParentID: parentID})
		res.Created[c.Kind]++
		getMetrics().referencesCreated.WithLabelValues(string(c.Kind)).Inc()
	}
	return res, nil
}
