// Package host drives a pool of depth estimation kernels, one per device,
// the way an embedding pipeline runtime would: batches are split across
// the kernels, processed concurrently and reassembled in input order.
package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xsongx/scanner/kernel"
	"github.com/xsongx/scanner/log"
)

var (
	ErrNoInstances     = errors.New("host: no kernel instances attached")
	ErrInvalidInstance = errors.New("host: kernel instance failed validation")
)

// Instance is a kernel bound to a device together with a relative speed
// estimate used for the first batch split.
type Instance struct {
	Name  string
	Op    kernel.Op
	Speed float32
}

type worker struct {
	Instance
	stats Stats
}

func (w *worker) SpeedEstimate() float32 {
	return w.Speed
}

func (w *worker) Stats() *Stats {
	return &w.stats
}

// Per instance statistics for a batch.
type InstanceStat struct {
	Name string

	// Assigned frames and their percentage of the batch.
	Frames       uint32
	BatchPercent float32

	Elapsed time.Duration
}

type BatchStats struct {
	Instances []InstanceStat

	// Wall time for the entire batch.
	Elapsed time.Duration
}

// Runner splits batches across a set of kernel instances.
type Runner struct {
	logger    log.Logger
	scheduler BatchScheduler
	workers   []*worker

	stats BatchStats
}

// NewRunner creates a runner for the given instances. Every instance must
// pass validation.
func NewRunner(scheduler BatchScheduler, instances ...Instance) (*Runner, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	r := &Runner{
		logger:    log.New("host"),
		scheduler: scheduler,
		workers:   make([]*worker, len(instances)),
	}
	for idx, inst := range instances {
		if res := inst.Op.Validate(); !res.Success {
			return nil, fmt.Errorf("%w: %s: %s", ErrInvalidInstance, inst.Name, res.Msg)
		}
		r.workers[idx] = &worker{Instance: inst}
	}

	return r, nil
}

// Stats returns the statistics of the last processed batch.
func (r *Runner) Stats() BatchStats {
	return r.stats
}

// Close all attached instances.
func (r *Runner) Close() {
	for _, w := range r.workers {
		w.Op.Close()
	}
	r.workers = nil
}

// Run processes a single batch. The frames are split into contiguous runs,
// one per instance, which are executed concurrently. The returned output
// columns hold one row per input frame in input order.
func (r *Runner) Run(ctx context.Context, in kernel.BatchedColumns) (kernel.BatchedColumns, error) {
	if len(r.workers) == 0 {
		return nil, ErrNoInstances
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	numFrames := in.NumRows()
	schedWorkers := make([]Worker, len(r.workers))
	for idx, w := range r.workers {
		schedWorkers[idx] = w
	}
	assignment := r.scheduler.Schedule(schedWorkers, uint32(numFrames))

	start := time.Now()
	outputs := make([]kernel.BatchedColumns, len(r.workers))
	var group errgroup.Group

	first := 0
	for idx, w := range r.workers {
		count := int(assignment[idx])
		part := sliceRows(in, first, first+count)
		first += count

		outputs[idx] = kernel.NewBatchedColumns(1)
		if count == 0 {
			w.stats = Stats{}
			continue
		}

		group.Go(func() error {
			tick := time.Now()
			if err := w.Op.Execute(part, outputs[idx]); err != nil {
				return fmt.Errorf("host: instance %s: %w", w.Name, err)
			}
			w.stats = Stats{
				BatchSize: uint32(count),
				BatchTime: time.Since(tick).Nanoseconds(),
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	out := kernel.NewBatchedColumns(1)
	r.stats = BatchStats{Elapsed: time.Since(start)}
	for idx, w := range r.workers {
		out[0].Rows = append(out[0].Rows, outputs[idx][0].Rows...)

		var percent float32
		if numFrames > 0 {
			percent = 100 * float32(assignment[idx]) / float32(numFrames)
		}
		r.stats.Instances = append(r.stats.Instances, InstanceStat{
			Name:         w.Name,
			Frames:       assignment[idx],
			BatchPercent: percent,
			Elapsed:      time.Duration(w.stats.BatchTime),
		})
	}

	r.logger.Debugf("processed %d frames on %d instances in %d ms", numFrames, len(r.workers), r.stats.Elapsed.Nanoseconds()/1e6)
	return out, nil
}

// RunAll processes a sequence of batches, checking for cancellation between
// batches. The outputs of all processed batches are returned even if a
// later batch fails.
func (r *Runner) RunAll(ctx context.Context, batches []kernel.BatchedColumns) ([]kernel.BatchedColumns, error) {
	outputs := make([]kernel.BatchedColumns, 0, len(batches))
	for batchIdx, batch := range batches {
		if err := ctx.Err(); err != nil {
			return outputs, err
		}

		out, err := r.Run(ctx, batch)
		if err != nil {
			return outputs, fmt.Errorf("batch %d: %w", batchIdx, err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// Return a view of rows [from, to) of every column.
func sliceRows(in kernel.BatchedColumns, from, to int) kernel.BatchedColumns {
	out := make(kernel.BatchedColumns, len(in))
	for colIdx, col := range in {
		out[colIdx] = &kernel.Column{Rows: col.Rows[from:to:to]}
	}
	return out
}
