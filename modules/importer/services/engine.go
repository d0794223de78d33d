package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/assetdesk/modules/importer/domain/backend"
	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/reference"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
	"github.com/iota-uz/assetdesk/pkg/configuration"
	"github.com/iota-uz/assetdesk/pkg/logging"
)

const tracerName = "github.com/iota-uz/assetdesk/modules/importer"

var stagePercent = map[record.Stage]int{
	record.StageDecoding:      5,
	record.StageValidating:    15,
	record.StageResolving:     25,
	record.StageMaterializing: 35,
	record.StageReconciling:   45,
	record.StageExecuting:     50,
	record.StageReported:      100,
}

type Options struct {
	RunID           uuid.UUID
	DryRun          bool
	BatchSize       int
	Concurrency     int
	Retry           RetryPolicy
	MaxErrorDetails int
	// OnProgress may be called from several goroutines, but never concurrently.
	OnProgress func(Progress)
}

func OptionsFromConfig(c configuration.ImportOptions) Options {
	return Options{
		BatchSize:       c.BatchSize,
		Concurrency:     c.Concurrency,
		Retry:           RetryPolicy{MaxRetries: c.MaxRetries, Interval: c.RetryInterval},
		MaxErrorDetails: c.MaxErrorDetails,
	}
}

type EngineOption func(*Engine)

func WithLogger(log *logrus.Entry) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

func WithDecoder(d *Decoder) EngineOption {
	return func(e *Engine) {
		e.decoder = d
	}
}

// Engine runs imports against one backend. It holds no per-run state; every Run builds its own
// reference sets and aggregator, so concurrent runs never share data.
type Engine struct {
	backend   backend.Backend
	decoder   *Decoder
	validator *Validator
	log       *logrus.Entry
	tracer    trace.Tracer
}

func NewEngine(b backend.Backend, opts ...EngineOption) *Engine {
	e := &Engine{
		backend:   b,
		decoder:   NewDecoder(0),
		validator: NewValidator(),
		log:       logging.Nop(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run imports data as entity rows described by d. The report is always complete. A file level
// problem returns an error wrapping ErrDecode; cancellation returns the partial report and an
// error wrapping ErrCancelled.
func (e *Engine) Run(ctx context.Context, d *schema.Descriptor, data []byte, opts Options) (record.Report, error) {
	if opts.RunID == uuid.Nil {
		opts.RunID = uuid.New()
	}
	b := e.backend
	if opts.DryRun {
		b = NewDryRunBackend(b)
	}
	log := e.log.WithFields(logrus.Fields{
		"run_id":  opts.RunID.String(),
		"entity":  d.Entity,
		"dry_run": opts.DryRun,
	})
	r := &run{
		engine:  e,
		desc:    d,
		opts:    opts,
		backend: b,
		agg:     NewAggregator(opts.MaxErrorDetails),
		sets:    make(reference.Sets),
		stage:   record.StageIdle,
		log:     log,
		base: record.Report{
			RunID:     opts.RunID,
			Entity:    d.Entity,
			DryRun:    opts.DryRun,
			StartedAt: time.Now().UTC(),
		},
	}

	m := getMetrics()
	m.inflight.Inc()
	defer m.inflight.Dec()

	ctx, span := e.tracer.Start(ctx, "import.run", trace.WithAttributes(
		attribute.String("import.run_id", opts.RunID.String()),
		attribute.String("import.entity", d.Entity),
		attribute.Bool("import.dry_run", opts.DryRun),
	))
	defer span.End()

	report, err := r.execute(ctx, data)

	result := "ok"
	switch {
	case errors.Is(err, ErrDecode):
		result = "decode_error"
	case report.Cancelled:
		result = "cancelled"
	case report.Failed > 0:
		result = "partial"
	}
	m.runsTotal.WithLabelValues(d.Entity, result).Inc()
	m.rowsTotal.WithLabelValues(d.Entity, "succeeded").Add(float64(report.Succeeded))
	m.rowsTotal.WithLabelValues(d.Entity, "failed").Add(float64(report.Failed))
	m.rowsTotal.WithLabelValues(d.Entity, "skipped").Add(float64(report.Skipped))
	m.runDuration.WithLabelValues(d.Entity).Observe(report.Duration().Seconds())

	span.SetAttributes(
		attribute.Int("import.total", report.Total),
		attribute.Int("import.succeeded", report.Succeeded),
		attribute.Int("import.failed", report.Failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	log.WithFields(logrus.Fields{
		"result":    result,
		"total":     report.Total,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
		"inserted":  report.Inserted,
		"updated":   report.Updated,
		"duration":  report.Duration().String(),
	}).Info("import finished")
	return report, err
}

type run struct {
	engine  *Engine
	desc    *schema.Descriptor
	opts    Options
	backend backend.Backend
	agg     *Aggregator
	sets    reference.Sets
	stage   record.Stage
	base    record.Report
	log     *logrus.Entry
	total   int
	records []*record.Record

	progressMu  sync.Mutex
	batchesDone int
}

func (r *run) execute(ctx context.Context, data []byte) (record.Report, error) {
	var (
		decoded    DecodeResult
		valid      []*record.Record
		cands      []record.CreationCandidate
		reconciled []record.ReconciledRow
		resolver   Resolver
		reconcile  Reconciler
	)

	err := r.step(ctx, record.StageDecoding, func(ctx context.Context) error {
		res, err := r.engine.decoder.Decode(data, r.desc)
		if err != nil {
			return err
		}
		decoded = res
		r.total = res.Lines()
		for _, row := range res.Rows {
			r.agg.Register(row.Line)
		}
		for _, f := range res.Failures {
			r.agg.Register(f.Row)
			r.agg.Fail(f.Row, f.Message)
		}
		for _, w := range res.Warnings {
			r.agg.Warn(w.Row, w.Message)
		}
		r.agg.Ignored(res.IgnoredColumns)
		r.log.WithFields(logrus.Fields{
			"format":   res.Format,
			"rows":     len(res.Rows),
			"failures": len(res.Failures),
		}).Debug("file decoded")
		return nil
	})
	if err != nil {
		return r.finish(err)
	}

	err = r.step(ctx, record.StageValidating, func(context.Context) error {
		var normalizer Normalizer
		for _, raw := range decoded.Rows {
			rec := normalizer.Normalize(raw, r.desc)
			r.records = append(r.records, rec)
			if out := r.engine.validator.Validate(rec, r.desc); !out.Valid() {
				r.agg.Fail(out.Line, out.Errors...)
				continue
			}
			valid = append(valid, rec)
		}
		return nil
	})
	if err != nil {
		return r.finish(err)
	}

	err = r.step(ctx, record.StageResolving, func(ctx context.Context) error {
		for _, kind := range r.desc.Kinds() {
			var entries []reference.Entry
			err := r.opts.Retry.Do(ctx, func() error {
				var err error
				entries, err = r.backend.LookupReference(ctx, kind)
				return err
			})
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				r.failAll(valid, fmt.Sprintf("%s lookup failed: %v", kind, err))
				valid = nil
				return nil
			}
			r.sets[kind] = reference.NewSet(kind, entries)
		}
		cands = resolver.Resolve(valid, r.desc, r.sets)
		return nil
	})
	if err != nil {
		return r.finish(err)
	}

	err = r.step(ctx, record.StageMaterializing, func(ctx context.Context) error {
		res, err := NewMaterializer(r.backend, r.log).Materialize(ctx, cands, r.sets)
		r.agg.Materialized(res)
		if err != nil {
			return err
		}
		rejected := resolver.Finalize(valid, r.desc, r.sets)
		if len(rejected) == 0 {
			return nil
		}
		drop := make(map[int]bool, len(rejected))
		for _, msg := range rejected {
			r.agg.Fail(msg.Row, msg.Message)
			drop[msg.Row] = true
		}
		kept := valid[:0]
		for _, rec := range valid {
			if !drop[rec.Line] {
				kept = append(kept, rec)
			}
		}
		valid = kept
		return nil
	})
	if err != nil {
		return r.finish(err)
	}

	err = r.step(ctx, record.StageReconciling, func(ctx context.Context) error {
		keys := reconcile.Keys(valid, r.desc)
		var existing []backend.Existing
		if len(keys) > 0 {
			err := r.opts.Retry.Do(ctx, func() error {
				var err error
				existing, err = r.backend.LookupExisting(ctx, r.desc.Entity, keys)
				return err
			})
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				r.failAll(valid, fmt.Sprintf("existing %s lookup failed: %v", r.desc.Entity, err))
				valid = nil
				return nil
			}
		}
		rows, conflicts := reconcile.Reconcile(valid, r.desc, existing)
		for _, c := range conflicts {
			r.agg.Fail(c.Row, c.Message)
		}
		reconciled = rows
		return nil
	})
	if err != nil {
		return r.finish(err)
	}

	err = r.step(ctx, record.StageExecuting, func(ctx context.Context) error {
		exec := NewExecutor(r.backend, r.desc, ExecuteOptions{
			BatchSize:   r.opts.BatchSize,
			Concurrency: r.opts.Concurrency,
			Retry:       r.opts.Retry,
		}, r.agg, r.log)
		return exec.Execute(ctx, reconciled, r.batchProgress)
	})
	if err != nil {
		return r.finish(err)
	}

	return r.finish(nil)
}

// step moves the run into stage s and runs fn under its own span. A stage never starts once ctx
// is done.
func (r *run) step(ctx context.Context, s record.Stage, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: before %s: %w", ErrCancelled, s, err)
	}
	if !r.stage.Before(s) {
		return fmt.Errorf("%w: %s after %s", ErrStageOrder, s, r.stage)
	}
	r.stage = s
	r.emit(Progress{Stage: s, Percent: stagePercent[s]})

	ctx, span := r.engine.tracer.Start(ctx, "import."+string(s))
	defer span.End()
	started := time.Now()
	err := fn(ctx)
	getMetrics().stageDuration.WithLabelValues(r.desc.Entity, string(s)).Observe(time.Since(started).Seconds())
	r.log.WithField("stage", s).WithField("elapsed", time.Since(started).String()).Debug("stage finished")

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrCancelled) {
			return fmt.Errorf("%w: during %s: %w", ErrCancelled, s, ctxErr)
		}
	}
	return err
}

func (r *run) finish(err error) (record.Report, error) {
	cancelled := errors.Is(err, ErrCancelled)
	base := r.base
	base.Stage = r.stage
	if err != nil && !cancelled {
		base.FileError = err.Error()
	}
	if err == nil {
		r.stage = record.StageReported
		base.Stage = record.StageReported
	}
	base.FinishedAt = time.Now().UTC()
	r.flushWarnings(r.records)
	report := r.agg.Report(base, r.desc.Kinds(), cancelled)
	r.emit(Progress{Stage: record.StageReported, Percent: stagePercent[record.StageReported]})
	if cancelled {
		r.log.WithField("stage", base.Stage).Warn("import cancelled")
	}
	return report, err
}

func (r *run) failAll(recs []*record.Record, message string) {
	r.log.Error(message)
	for _, rec := range recs {
		r.agg.Fail(rec.Line, message)
	}
}

func (r *run) flushWarnings(recs []*record.Record) {
	for _, rec := range recs {
		for _, w := range rec.TakeWarnings() {
			r.agg.Warn(rec.Line, w)
		}
	}
}

// batchProgress counts finished batches itself so percentages never go backwards when batches
// finish out of order.
func (r *run) batchProgress(_, total int) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.batchesDone++
	pct := stagePercent[record.StageExecuting]
	if total > 0 {
		pct += (stagePercent[record.StageReported] - 5 - pct) * r.batchesDone / total
	}
	r.emitLocked(Progress{Stage: record.StageExecuting, Percent: pct, BatchesDone: r.batchesDone, BatchesTotal: total})
}

func (r *run) emit(p Progress) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.emitLocked(p)
}

func (r *run) emitLocked(p Progress) {
	if r.opts.OnProgress == nil {
		return
	}
	p.RunID = r.opts.RunID
	p.Entity = r.desc.Entity
	p.Total = r.total
	r.opts.OnProgress(p)
}
