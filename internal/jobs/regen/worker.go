package regen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

// Worker polls for pending regeneration jobs. Several workers may run at once;
// the conditional claim decides which one executes a given job.
type Worker struct {
	log       *logger.Logger
	jobs      repos.RegenerationJobRepo
	exec      *Executor
	interval  time.Duration
	batchSize int
	owner     string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWorker(baseLog *logger.Logger, jobsRepo repos.RegenerationJobRepo, exec *Executor, interval time.Duration, batchSize int, owner string) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Worker{
		log:       baseLog.With("component", "RegenWorker", "owner", owner),
		jobs:      jobsRepo,
		exec:      exec,
		interval:  interval,
		batchSize: batchSize,
		owner:     owner,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("regeneration worker already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(loopCtx, w.done)
	w.log.Info("Regeneration worker started", "interval", w.interval.String())
	return nil
}

func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	w.log.Info("Regeneration worker stopped")
}

func (w *Worker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.log.Warn("Regeneration poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll executes pending jobs one at a time.
func (w *Worker) Poll(ctx context.Context) (BatchResult, error) {
	var res BatchResult
	pending, err := w.jobs.ListPending(dbctx.Context{Ctx: ctx}, w.batchSize)
	if err != nil {
		return res, err
	}
	res.Selected = len(pending)
	for _, job := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		out, _ := w.exec.Execute(ctx, job, "worker:"+w.owner)
		res.add(out)
	}
	return res, nil
}
