package progress

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/assetdesk/modules/importer/services"
	"github.com/iota-uz/assetdesk/pkg/eventbus"
)

const saveTimeout = 2 * time.Second

// Subscribe keeps store in sync with import events published on bus.
func Subscribe(bus eventbus.EventBus, store Store, log *logrus.Entry) {
	save := func(s Status) {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := store.Save(ctx, s); err != nil {
			log.WithError(err).WithField("run_id", s.RunID.String()).Warn("failed to save import status")
		}
	}

	bus.Subscribe(func(e *services.StartedEvent) {
		save(Status{
			TenantID: e.TenantID,
			RunID:    e.RunID,
			Entity:   e.Entity,
			DryRun:   e.DryRun,
			State:    StateRunning,
		})
	})

	bus.Subscribe(func(e *services.ProgressEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		s, err := store.Get(ctx, e.TenantID, e.Progress.RunID)
		cancel()
		if err != nil {
			s = Status{TenantID: e.TenantID, RunID: e.Progress.RunID, Entity: e.Progress.Entity}
		}
		if s.State != StateRunning && s.State != "" {
			return
		}
		s.State = StateRunning
		s.Progress = e.Progress
		s.UpdatedAt = time.Time{}
		save(s)
	})

	bus.Subscribe(func(e *services.CompletedEvent) {
		report := e.Report
		s := Status{
			TenantID: e.TenantID,
			RunID:    e.RunID,
			Entity:   report.Entity,
			DryRun:   report.DryRun,
			State:    StateCompleted,
			Report:   &report,
			Progress: services.Progress{
				RunID:   e.RunID,
				Entity:  report.Entity,
				Stage:   report.Stage,
				Percent: 100,
				Total:   report.Total,
			},
		}
		switch {
		case errors.Is(e.Err, services.ErrCancelled):
			s.State = StateCancelled
			s.Error = e.Err.Error()
		case e.Err != nil:
			s.State = StateFailed
			s.Error = e.Err.Error()
		}
		save(s)
	})
}
