package services

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
	"github.com/iota-uz/assetdesk/pkg/composables"
	"github.com/iota-uz/assetdesk/pkg/configuration"
	"github.com/iota-uz/assetdesk/pkg/eventbus"
)

type ImportRequest struct {
	Entity string
	Data   []byte
	DryRun bool
	// BatchSize and Concurrency override the service defaults when positive.
	BatchSize   int
	Concurrency int
}

// ImportService runs imports for the application. Synchronous runs block the caller; started runs
// continue in the background and can be cancelled by id.
type ImportService struct {
	engine    *Engine
	registry  *schema.Registry
	publisher eventbus.EventBus
	defaults  Options
	log       *logrus.Entry

	mu       sync.Mutex
	runs     map[uuid.UUID]activeRun
	wg       sync.WaitGroup
	draining bool
}

func NewImportService(engine *Engine, registry *schema.Registry, publisher eventbus.EventBus, defaults Options, log *logrus.Entry) *ImportService {
	return &ImportService{
		engine:    engine,
		registry:  registry,
		publisher: publisher,
		defaults:  defaults,
		log:       log,
		runs:      make(map[uuid.UUID]activeRun),
	}
}

type activeRun struct {
	tenantID uuid.UUID
	cancel   context.CancelFunc
}

func (s *ImportService) Registry() *schema.Registry {
	return s.registry
}

func (s *ImportService) Import(ctx context.Context, req ImportRequest) (record.Report, error) {
	d, err := s.registry.Get(req.Entity)
	if err != nil {
		return record.Report{}, err
	}
	return s.run(ctx, d, uuid.New(), req)
}

// Start validates the request and runs it in the background. The run keeps ctx's values (tenant,
// pool, logger) but not its cancellation; use Cancel to stop it.
func (s *ImportService) Start(ctx context.Context, req ImportRequest) (uuid.UUID, error) {
	d, err := s.registry.Get(req.Entity)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		cancel()
		return uuid.Nil, ErrRunsDraining
	}
	tenantID, _ := composables.UseTenantID(ctx)
	s.runs[id] = activeRun{tenantID: tenantID, cancel: cancel}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.runs, id)
			s.mu.Unlock()
			cancel()
		}()
		if _, err := s.run(runCtx, d, id, req); err != nil {
			composables.UseLogger(runCtx).WithError(err).WithField("run_id", id.String()).Warn("background import ended with error")
		}
	}()
	return id, nil
}

// Cancel stops the background run id. Runs of other tenants are reported as not found.
func (s *ImportService) Cancel(ctx context.Context, id uuid.UUID) error {
	run, ok := s.lookup(ctx, id)
	if !ok {
		return errors.Wrapf(ErrRunNotFound, "run %s", id)
	}
	run.cancel()
	return nil
}

// Running reports whether the background run id of ctx's tenant is still executing.
func (s *ImportService) Running(ctx context.Context, id uuid.UUID) bool {
	_, ok := s.lookup(ctx, id)
	return ok
}

func (s *ImportService) lookup(ctx context.Context, id uuid.UUID) (activeRun, bool) {
	tenantID, _ := composables.UseTenantID(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.tenantID != tenantID {
		return activeRun{}, false
	}
	return run, true
}

// Shutdown stops accepting runs and waits for running ones. When ctx ends first, the remaining
// runs are cancelled and still awaited so their partial reports get published.
func (s *ImportService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	for _, run := range s.runs {
		run.cancel()
	}
	s.mu.Unlock()
	<-done
	return ctx.Err()
}

func (s *ImportService) run(ctx context.Context, d *schema.Descriptor, id uuid.UUID, req ImportRequest) (record.Report, error) {
	opts := s.defaults
	opts.RunID = id
	opts.DryRun = req.DryRun
	if req.BatchSize > 0 {
		opts.BatchSize = min(req.BatchSize, configuration.MaxImportBatchSize)
	}
	if req.Concurrency > 0 {
		opts.Concurrency = min(req.Concurrency, configuration.MaxImportConcurrency)
	}
	tenantID, _ := composables.UseTenantID(ctx)
	opts.OnProgress = func(p Progress) {
		s.publish(&ProgressEvent{TenantID: tenantID, Progress: p})
	}

	s.publish(&StartedEvent{TenantID: tenantID, RunID: id, Entity: d.Entity, DryRun: req.DryRun})
	report, err := s.engine.Run(ctx, d, req.Data, opts)
	s.publish(&CompletedEvent{TenantID: tenantID, RunID: id, Report: report, Err: err})
	return report, err
}

func (s *ImportService) publish(event any) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}
