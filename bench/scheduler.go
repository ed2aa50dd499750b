package bench

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Scheduler enumerates the full {benchmark file} × {mode} × {backend} ×
// {revision} matrix and drives the Builder and Executor for each cell. Cells
// are independent: any per-cell failure is recorded in the matrix, never
// raised. Cell execution runs on a bounded worker pool; the report stays
// deterministic regardless of worker count because ordering is derived from
// the logical keys, not from completion order.
type Scheduler struct {
	builder  *Builder
	executor *Executor
	workers  int
	timeout  time.Duration
}

func NewScheduler(builder *Builder, executor *Executor, workers int, timeout time.Duration) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{builder: builder, executor: executor, workers: workers, timeout: timeout}
}

// Execute visits every cell in scope and returns a matrix holding exactly one
// entry per cell: a result, a recorded build failure, or a skip when the run
// was cancelled midway.
func (s *Scheduler) Execute(ctx context.Context, revs []Revision, kinds []RuntimeKind, files []BenchmarkFile) *ResultMatrix {
	matrix := NewResultMatrix()

	g := new(errgroup.Group)
	g.SetLimit(s.workers)

	for _, mode := range Modes {
		for _, file := range files {
			for _, kind := range kinds {
				if kind.Mode != mode {
					continue
				}
				for _, rev := range revs {
					rev, kind, file := rev, kind, file
					key := CellKey{File: file.Name, Mode: mode, Backend: kind.Backend, RevisionID: rev.ID}
					g.Go(func() error {
						matrix.Put(key, s.cell(ctx, rev, kind, file))
						return nil
					})
				}
			}
		}
	}

	_ = g.Wait()
	return matrix
}

func (s *Scheduler) cell(ctx context.Context, rev Revision, kind RuntimeKind, file BenchmarkFile) ExecutionResult {
	if ctx.Err() != nil {
		return ExecutionResult{Outcome: OutcomeSkipped, Reason: "cancelled"}
	}

	art := s.builder.Build(ctx, rev, kind)
	if ctx.Err() != nil {
		return ExecutionResult{Outcome: OutcomeSkipped, Reason: "cancelled"}
	}
	if art.Failed() {
		klog.Warningf("build of revision '%s' for %s failed: %s", rev.Name, kind, art.Err)
		return ExecutionResult{Outcome: OutcomeBuildFailed, Reason: art.Err}
	}

	return s.executor.Run(ctx, art, file, s.timeout)
}
