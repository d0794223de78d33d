package progress

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/services"
	"github.com/iota-uz/assetdesk/pkg/eventbus"
)

func newBus(t *testing.T) (eventbus.EventBus, *MemoryStore) {
	t.Helper()
	log := logrus.New()
	bus := eventbus.NewEventPublisher(log)
	store := NewMemoryStore(time.Hour)
	Subscribe(bus, store, logrus.NewEntry(log))
	return bus, store
}

func TestSubscribe_TracksRunLifecycle(t *testing.T) {
	t.Parallel()

	bus, store := newBus(t)
	tenant, run := uuid.New(), uuid.New()

	bus.Publish(&services.StartedEvent{TenantID: tenant, RunID: run, Entity: "assets", DryRun: true})
	got, err := store.Get(context.Background(), tenant, run)
	require.NoError(t, err)
	require.Equal(t, StateRunning, got.State)
	require.True(t, got.DryRun)

	bus.Publish(&services.ProgressEvent{TenantID: tenant, Progress: services.Progress{
		RunID: run, Entity: "assets", Stage: record.StageExecuting, Percent: 70, Total: 10,
	}})
	got, err = store.Get(context.Background(), tenant, run)
	require.NoError(t, err)
	require.Equal(t, 70, got.Progress.Percent)
	require.True(t, got.DryRun)

	bus.Publish(&services.CompletedEvent{TenantID: tenant, RunID: run, Report: record.Report{
		RunID: run, Entity: "assets", DryRun: true, Stage: record.StageReported, Total: 10, Succeeded: 10,
	}})
	got, err = store.Get(context.Background(), tenant, run)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, got.State)
	require.NotNil(t, got.Report)
	require.Equal(t, 10, got.Report.Succeeded)
	require.Equal(t, 100, got.Progress.Percent)

	bus.Publish(&services.ProgressEvent{TenantID: tenant, Progress: services.Progress{RunID: run, Percent: 50}})
	got, err = store.Get(context.Background(), tenant, run)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, got.State, "late progress must not reopen a finished run")
}

func TestSubscribe_FailedAndCancelled(t *testing.T) {
	t.Parallel()

	bus, store := newBus(t)
	tenant := uuid.New()

	failed, cancelled := uuid.New(), uuid.New()
	bus.Publish(&services.CompletedEvent{TenantID: tenant, RunID: failed, Err: services.ErrDecode})
	bus.Publish(&services.CompletedEvent{TenantID: tenant, RunID: cancelled, Err: services.ErrCancelled})

	got, err := store.Get(context.Background(), tenant, failed)
	require.NoError(t, err)
	require.Equal(t, StateFailed, got.State)
	require.NotEmpty(t, got.Error)

	got, err = store.Get(context.Background(), tenant, cancelled)
	require.NoError(t, err)
	require.Equal(t, StateCancelled, got.State)
}
