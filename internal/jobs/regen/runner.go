package regen

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	"github.com/yungbote/neurobridge-hydration/internal/observability"
	"github.com/yungbote/neurobridge-hydration/internal/platform/advisory"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

type BatchResult struct {
	Selected  int `json:"selected"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (r *BatchResult) add(o Outcome) {
	switch o {
	case OutcomeCompleted:
		r.Completed++
	case OutcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
}

// Runner executes one batch of pending regeneration jobs under the global
// regen_runner advisory lock. It backs the one-off CLI command.
type Runner struct {
	log         *logger.Logger
	jobs        repos.RegenerationJobRepo
	exec        *Executor
	locker      advisory.Locker
	metrics     *observability.Metrics
	batchSize   int
	concurrency int
}

func NewRunner(baseLog *logger.Logger, jobsRepo repos.RegenerationJobRepo, exec *Executor, locker advisory.Locker, metrics *observability.Metrics, batchSize, concurrency int) *Runner {
	if batchSize <= 0 {
		batchSize = 10
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Runner{
		log:         baseLog.With("component", "RegenRunner"),
		jobs:        jobsRepo,
		exec:        exec,
		locker:      locker,
		metrics:     metrics,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// RunBatch returns ran=false when another runner holds the lock.
func (r *Runner) RunBatch(ctx context.Context) (res BatchResult, ran bool, err error) {
	ran, err = advisory.WithLock(ctx, r.locker, advisory.Key(advisory.RegenRunner), func(ctx context.Context) error {
		var batchErr error
		res, batchErr = r.runBatch(ctx)
		return batchErr
	})
	if err == nil && !ran {
		r.metrics.IncLockSkipped(advisory.RegenRunner)
		r.log.Info("Regeneration runner lock held elsewhere; skipping")
	}
	return res, ran, err
}

func (r *Runner) runBatch(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	pending, err := r.jobs.ListPending(dbctx.Context{Ctx: ctx}, r.batchSize)
	if err != nil {
		return res, fmt.Errorf("list pending regeneration jobs: %w", err)
	}
	res.Selected = len(pending)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, job := range pending {
		g.Go(func() error {
			// Run failures are recorded on the job; they do not abort the batch.
			out, _ := r.exec.Execute(gctx, job, "system:regen_runner")
			mu.Lock()
			res.add(out)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	r.log.Info("Regeneration batch finished", "selected", res.Selected, "completed", res.Completed, "failed", res.Failed, "skipped", res.Skipped)
	return res, ctx.Err()
}
