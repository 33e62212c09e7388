package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/outbox"
	"github.com/yungbote/neurobridge-hydration/internal/observability"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/advisory"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

type Config struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
	Queue      string
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.Queue == "" {
		c.Queue = jobs.DefaultQueue
	}
	return c
}

type Result struct {
	MarkedFailed int `json:"marked_failed"`
	Requeued     int `json:"requeued"`
	Redelivered  int `json:"redelivered"`
	// RegenReleased counts regeneration jobs returned from a stale RUNNING to PENDING.
	RegenReleased int `json:"regen_released"`
}

/*
Reconciler owns the status policy after a failed run.

The worker only records failures. Each pass:
  - running jobs whose latest log entry is FAILED are requeued when the failure
    kind is retryable and attempts remain, otherwise marked failed;
  - running jobs with a stale heartbeat get an infra FAILED entry and the same treatment;
  - pending jobs with no undispatched outbox row whose last send is older than
    the stale window get a fresh outbox row;
  - regeneration jobs RUNNING since before the stale window go back to PENDING.

Every transition is conditional on the status the pass observed.
*/
type Reconciler struct {
	db      *gorm.DB
	log     *logger.Logger
	repos   repos.Set
	locker  advisory.Locker
	metrics *observability.Metrics
	cfg     Config
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewReconciler(db *gorm.DB, baseLog *logger.Logger, set repos.Set, locker advisory.Locker, metrics *observability.Metrics, cfg Config) *Reconciler {
	return &Reconciler{
		db:      db,
		log:     baseLog.With("component", "JobReconciler"),
		repos:   set,
		locker:  locker,
		metrics: metrics,
		cfg:     cfg.withDefaults(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return fmt.Errorf("reconciler already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(loopCtx, r.done)
	r.log.Info("Reconciler started", "interval", r.cfg.Interval.String(), "stale_after", r.cfg.StaleAfter.String())
	return nil
}

func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.log.Info("Reconciler stopped")
}

func (r *Reconciler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, _, err := r.RunCycle(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("Reconcile cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunCycle runs one pass under the reconciler advisory lock.
func (r *Reconciler) RunCycle(ctx context.Context) (res Result, ran bool, err error) {
	ran, err = advisory.WithLock(ctx, r.locker, advisory.Key(advisory.Reconciler), func(ctx context.Context) error {
		var passErr error
		res, passErr = r.ReconcileOnce(ctx)
		return passErr
	})
	if err == nil && !ran {
		r.metrics.IncLockSkipped(advisory.Reconciler)
	}
	return res, ran, err
}

func (r *Reconciler) ReconcileOnce(ctx context.Context) (res Result, err error) {
	ctx, span := observability.StartSpan(ctx, "reconciler.pass")
	defer func() {
		span.SetAttributes(
			attribute.Int("reconciler.marked_failed", res.MarkedFailed),
			attribute.Int("reconciler.requeued", res.Requeued),
			attribute.Int("reconciler.redelivered", res.Redelivered),
			attribute.Int("reconciler.regen_released", res.RegenReleased),
		)
		observability.EndSpan(span, err)
	}()

	dbc := dbctx.Context{Ctx: ctx}
	now := r.now()
	staleBefore := now.Add(-r.cfg.StaleAfter)

	running, err := r.repos.HydrationJob.ListByStatus(dbc, jobs.StatusRunning, r.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list running: %w", err)
	}
	for _, job := range running {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		action, err := r.reconcileRunning(ctx, job, staleBefore)
		if err != nil {
			r.log.Warn("Reconcile running job failed", "job_id", job.ID, "error", err)
			continue
		}
		switch action {
		case actionFailed:
			res.MarkedFailed++
		case actionRequeued:
			res.Requeued++
		}
		if action != actionNone {
			r.metrics.IncReconciled(string(action))
		}
	}

	pending, err := r.repos.HydrationJob.ListByStatus(dbc, jobs.StatusPending, r.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list pending: %w", err)
	}
	for _, job := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		ok, err := r.redeliver(ctx, job, staleBefore)
		if err != nil {
			r.log.Warn("Redeliver pending job failed", "job_id", job.ID, "error", err)
			continue
		}
		if ok {
			res.Redelivered++
			r.metrics.IncReconciled(string(actionRedelivered))
		}
	}

	released, err := r.repos.RegenerationJob.ReleaseStale(dbc, staleBefore, r.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("release stale regeneration jobs: %w", err)
	}
	res.RegenReleased = int(released)
	for i := 0; i < res.RegenReleased; i++ {
		r.metrics.IncReconciled(string(actionRegenReleased))
	}

	if res != (Result{}) {
		r.log.Info("Reconcile pass", "marked_failed", res.MarkedFailed, "requeued", res.Requeued, "redelivered", res.Redelivered, "regen_released", res.RegenReleased)
	}
	return res, nil
}

type action string

const (
	actionNone          action = ""
	actionFailed        action = "marked_failed"
	actionRequeued      action = "requeued"
	actionRedelivered   action = "redelivered"
	actionRegenReleased action = "regen_released"
)

func (r *Reconciler) reconcileRunning(ctx context.Context, job *types.HydrationJob, staleBefore time.Time) (action, error) {
	var out action
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		latest, err := r.repos.ExecutionLog.Latest(dbc, job.ID)
		if err != nil {
			return err
		}
		var kind perrors.Kind
		switch {
		case latest != nil && latest.Event == jobs.EventFailed:
			kind = perrors.Kind(latest.ErrorKind)
		case job.HeartbeatAt == nil || job.HeartbeatAt.Before(staleBefore):
			kind = perrors.KindInfra
			entry := jobs.NewLogEntry(job.ID, jobs.EventFailed, jobs.StatusRunning, jobs.StatusRunning, string(kind), map[string]any{
				"error":     "heartbeat stale",
				"kind":      kind,
				"retryable": true,
			})
			if err := r.repos.ExecutionLog.Append(dbc, entry); err != nil {
				return err
			}
		default:
			return nil
		}

		req, err := r.repos.ExecutionRequest.GetByID(dbc, job.ExecutionRequestID)
		if err != nil {
			return err
		}
		if req == nil {
			return fmt.Errorf("execution request %s missing", job.ExecutionRequestID)
		}
		if perrors.Retryable(kind) && req.Attempts < req.MaxAttempts {
			ok, err := r.requeue(dbc, job, req, kind)
			if ok {
				out = actionRequeued
			}
			return err
		}
		ok, err := r.markFailed(dbc, job, req, kind)
		if ok {
			out = actionFailed
		}
		return err
	})
	if err != nil {
		return actionNone, err
	}
	return out, nil
}

func (r *Reconciler) requeue(dbc dbctx.Context, job *types.HydrationJob, req *types.ExecutionRequest, kind perrors.Kind) (bool, error) {
	ok, err := r.repos.HydrationJob.TransitionStatus(dbc, job.ID, []types.JobStatus{jobs.StatusRunning}, map[string]interface{}{
		"status":       jobs.StatusPending,
		"locked_at":    nil,
		"heartbeat_at": nil,
	})
	if err != nil || !ok {
		return false, err
	}
	if _, err := r.repos.ExecutionRequest.UpdateFieldsIfStatus(dbc, req.ID, []types.JobStatus{jobs.StatusRunning}, map[string]interface{}{
		"status":     jobs.StatusPending,
		"lock_owner": "",
	}); err != nil {
		return false, err
	}
	msg, err := outbox.NewMessage(r.cfg.Queue, job.JobKind, job.ID)
	if err != nil {
		return false, err
	}
	if err := r.repos.Outbox.Create(dbc, msg); err != nil {
		return false, err
	}
	entry := jobs.NewLogEntry(job.ID, jobs.EventRequeued, jobs.StatusRunning, jobs.StatusPending, string(kind), map[string]any{
		"attempts":     req.Attempts,
		"max_attempts": req.MaxAttempts,
	})
	return true, r.repos.ExecutionLog.Append(dbc, entry)
}

func (r *Reconciler) markFailed(dbc dbctx.Context, job *types.HydrationJob, req *types.ExecutionRequest, kind perrors.Kind) (bool, error) {
	now := r.now()
	ok, err := r.repos.HydrationJob.TransitionStatus(dbc, job.ID, []types.JobStatus{jobs.StatusRunning}, map[string]interface{}{
		"status":       jobs.StatusFailed,
		"completed_at": now,
	})
	if err != nil || !ok {
		return false, err
	}
	if _, err := r.repos.ExecutionRequest.UpdateFieldsIfStatus(dbc, req.ID, []types.JobStatus{jobs.StatusRunning}, map[string]interface{}{
		"status":      jobs.StatusFailed,
		"finished_at": now,
	}); err != nil {
		return false, err
	}
	reason := "non_retryable"
	if perrors.Retryable(kind) {
		reason = "attempts_exhausted"
	}
	entry := jobs.NewLogEntry(job.ID, jobs.EventMarkedFailed, jobs.StatusRunning, jobs.StatusFailed, string(kind), map[string]any{
		"reason":       reason,
		"attempts":     req.Attempts,
		"max_attempts": req.MaxAttempts,
	})
	return true, r.repos.ExecutionLog.Append(dbc, entry)
}

func (r *Reconciler) redeliver(ctx context.Context, job *types.HydrationJob, staleBefore time.Time) (bool, error) {
	if job.CreatedAt.After(staleBefore) {
		return false, nil
	}
	redelivered := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		has, err := r.repos.Outbox.HasUndispatchedForJob(dbc, job.ID)
		if err != nil || has {
			return err
		}
		sentAt, err := r.repos.Outbox.LatestSentAtForJob(dbc, job.ID)
		if err != nil {
			return err
		}
		if sentAt != nil && sentAt.After(staleBefore) {
			return nil
		}
		msg, err := outbox.NewMessage(r.cfg.Queue, job.JobKind, job.ID)
		if err != nil {
			return err
		}
		if err := r.repos.Outbox.Create(dbc, msg); err != nil {
			return err
		}
		meta := map[string]any{"reason": "delivery_lost"}
		if sentAt != nil {
			meta["last_sent_at"] = sentAt.Format(time.RFC3339)
		}
		redelivered = true
		return r.repos.ExecutionLog.Append(dbc, jobs.NewLogEntry(job.ID, jobs.EventRequeued, jobs.StatusPending, jobs.StatusPending, "", meta))
	})
	return redelivered, err
}
