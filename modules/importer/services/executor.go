package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/assetdesk/modules/importer/domain/backend"
	"github.com/iota-uz/assetdesk/modules/importer/domain/record"
	"github.com/iota-uz/assetdesk/modules/importer/domain/schema"
)

const msgNoOutcome = "no outcome reported by backend"

type ExecuteOptions struct {
	BatchSize   int
	Concurrency int
	Retry       RetryPolicy
}

type batch struct {
	op   record.Operation
	rows []backend.WriteRow
}

// Executor writes reconciled rows in bounded batches. Inserts and updates never share a batch
// and all insert batches finish before the first update batch starts.
type Executor struct {
	backend backend.Backend
	desc    *schema.Descriptor
	opts    ExecuteOptions
	agg     *Aggregator
	log     *logrus.Entry
}

func NewExecutor(b backend.Backend, desc *schema.Descriptor, opts ExecuteOptions, agg *Aggregator, log *logrus.Entry) *Executor {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Executor{backend: b, desc: desc, opts: opts, agg: agg, log: log}
}

// Batches splits rows into insert and update batches. Insert rows get fresh ids here.
func (e *Executor) Batches(rows []record.ReconciledRow) (inserts, updates []batch) {
	var ins, upd []backend.WriteRow
	for _, r := range rows {
		w := backend.WriteRow{Line: r.Record.Line, Values: r.Record.Payload(e.desc)}
		if r.Op == record.Update {
			w.ID = r.TargetID
			upd = append(upd, w)
		} else {
			w.ID = uuid.New()
			ins = append(ins, w)
		}
	}
	return chunk(record.Insert, ins, e.opts.BatchSize), chunk(record.Update, upd, e.opts.BatchSize)
}

func chunk(op record.Operation, rows []backend.WriteRow, size int) []batch {
	var out []batch
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		out = append(out, batch{op: op, rows: rows[start:end]})
	}
	return out
}

// Execute returns ctx's error when the run is cancelled; rows of batches that never started get
// no outcome and are reported as skipped. progress is called after every finished batch and
// may be called concurrently.
func (e *Executor) Execute(ctx context.Context, rows []record.ReconciledRow, progress func(done, total int)) error {
	inserts, updates := e.Batches(rows)
	total := len(inserts) + len(updates)
	var done atomic.Int64

	for _, phase := range [][]batch{inserts, updates} {
		g := new(errgroup.Group)
		g.SetLimit(e.opts.Concurrency)
		for _, b := range phase {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				e.write(ctx, b)
				if progress != nil {
					progress(int(done.Add(1)), total)
				}
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) write(ctx context.Context, b batch) {
	started := time.Now()
	m := getMetrics()
	defer func() {
		m.batchDuration.WithLabelValues(e.desc.Entity, b.op.String()).Observe(time.Since(started).Seconds())
	}()

	var (
		res      backend.WriteResult
		attempts int
	)
	err := e.opts.Retry.Do(ctx, func() error {
		attempts++
		if attempts > 1 {
			m.batchRetries.WithLabelValues(e.desc.Entity, b.op.String()).Inc()
		}
		r, err := e.backend.BulkWrite(ctx, e.desc.Entity, b.op, b.rows)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err == nil {
		e.apply(b, b.rows, res)
		return
	}
	if ctx.Err() != nil {
		return
	}

	e.log.WithError(err).WithFields(logrus.Fields{
		"op":       b.op.String(),
		"rows":     len(b.rows),
		"attempts": attempts,
	}).Warn("batch write failed, retrying rows one by one")
	m.batchFallbacks.WithLabelValues(e.desc.Entity, b.op.String()).Inc()

	for _, row := range b.rows {
		if ctx.Err() != nil {
			return
		}
		one := []backend.WriteRow{row}
		r, err := e.backend.BulkWrite(ctx, e.desc.Entity, b.op, one)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.agg.Fail(row.Line, fmt.Sprintf("write failed: %v", err))
			continue
		}
		e.apply(b, one, r)
	}
}

// apply records one outcome per row: listed as failed, listed as succeeded, or neither.
func (e *Executor) apply(b batch, rows []backend.WriteRow, res backend.WriteResult) {
	succeeded := make(map[uuid.UUID]bool, len(res.Succeeded))
	for _, id := range res.Succeeded {
		succeeded[id] = true
	}
	failed := make(map[uuid.UUID]error, len(res.Failed))
	for _, f := range res.Failed {
		failed[f.ID] = f.Err
	}
	for _, row := range rows {
		switch err, isFailed := failed[row.ID]; {
		case isFailed:
			e.agg.Fail(row.Line, fmt.Sprintf("write failed: %v", err))
		case succeeded[row.ID]:
			e.agg.Succeed(row.Line, b.op)
		default:
			e.agg.Fail(row.Line, msgNoOutcome)
		}
	}
}
