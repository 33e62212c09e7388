package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/audit"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/queue"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-hydration/internal/learning/validation"
	"github.com/yungbote/neurobridge-hydration/internal/observability"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
	"github.com/yungbote/neurobridge-hydration/internal/services"
)

type Config struct {
	Queue             string
	Concurrency       int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
	// Rethrow returns retryable failures to the queue so it can redeliver.
	Rethrow bool
	Owner   string
}

func (c Config) withDefaults() Config {
	if c.Queue == "" {
		c.Queue = jobs.DefaultQueue
	}
	if c.Concurrency < 1 {
		c.Concurrency = 4
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.Owner == "" {
		host, _ := os.Hostname()
		c.Owner = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return c
}

/*
Worker consumes hydration messages.

The job row is the source of truth, not the delivery. A delivery for a missing
or terminal job is acknowledged and dropped. Claiming is a conditional
pending -> running update; losing the claim is not an error.

Generators only produce content. The worker owns every write: the STARTED and
COMPLETED timeline entries, the stored content and the running -> completed
transition. On failure it records exactly one FAILED entry and one JOB_RUN audit
event and leaves the status to the reconciler.
*/
type Worker struct {
	db        *gorm.DB
	log       *logger.Logger
	repos     repos.Set
	registry  *runtime.Registry
	validator *validation.Validator
	audit     services.AuditService
	consumer  queue.Consumer
	metrics   *observability.Metrics
	cfg       Config
	now       func() time.Time
}

func NewWorker(
	db *gorm.DB,
	baseLog *logger.Logger,
	set repos.Set,
	registry *runtime.Registry,
	validator *validation.Validator,
	auditSvc services.AuditService,
	consumer queue.Consumer,
	metrics *observability.Metrics,
	cfg Config,
) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		db:        db,
		log:       baseLog.With("component", "ContentWorker", "owner", cfg.Owner),
		repos:     set,
		registry:  registry,
		validator: validator,
		audit:     auditSvc,
		consumer:  consumer,
		metrics:   metrics,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run consumes until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting content worker pool", "queue", w.cfg.Queue, "concurrency", w.cfg.Concurrency, "kinds", w.registry.Kinds())
	err := w.consumer.Consume(ctx, w.cfg.Queue, w.cfg.Concurrency, w.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle processes one delivery. It returns an error only when Rethrow is set
// and the failure is retryable.
func (w *Worker) Handle(ctx context.Context, d queue.Delivery) error {
	jobID := d.Data.Payload.JobID
	ctx, span := observability.StartSpan(ctx, "worker.handle",
		attribute.String("job.id", jobID.String()),
		attribute.String("delivery.id", d.ID),
		attribute.Int("delivery.attempt", d.Attempt),
	)
	var spanErr error
	defer func() { observability.EndSpan(span, spanErr) }()

	dbc := dbctx.Context{Ctx: ctx}
	job, err := w.repos.HydrationJob.GetByID(dbc, jobID)
	if err != nil {
		spanErr = err
		w.log.Warn("Load job failed", "job_id", jobID, "error", err)
		if w.cfg.Rethrow {
			return perrors.Infra("worker.load", err)
		}
		return nil
	}
	if job == nil {
		w.log.Info("Dropping delivery for unknown job", "job_id", jobID, "delivery_id", d.ID)
		return nil
	}
	if job.Status.Terminal() {
		w.log.Debug("Dropping delivery for terminal job", "job_id", jobID, "status", job.Status)
		return nil
	}
	span.SetAttributes(attribute.String("job.kind", string(job.JobKind)))

	req, claimed, err := w.claim(ctx, job, d)
	if err != nil {
		spanErr = err
		w.log.Warn("Claim failed", "job_id", jobID, "error", err)
		if w.cfg.Rethrow {
			return perrors.Infra("worker.claim", err)
		}
		return nil
	}
	if !claimed {
		w.log.Debug("Job already claimed elsewhere", "job_id", jobID, "status", job.Status)
		return nil
	}

	start := time.Now()
	content, runErr := w.run(ctx, job, req)
	if runErr == nil {
		runErr = w.complete(ctx, job, req, content)
		if errors.Is(runErr, errCompletionLost) {
			w.log.Info("Completion write lost; job changed state while running", "job_id", job.ID)
			w.metrics.ObserveJob(string(job.JobKind), "lost", time.Since(start))
			return nil
		}
	}
	if runErr == nil {
		w.metrics.ObserveJob(string(job.JobKind), "completed", time.Since(start))
		w.log.Info("Job completed", "job_id", job.ID, "job_kind", job.JobKind, "duration", time.Since(start).String())
		return nil
	}

	kind := classify(ctx, runErr)
	spanErr = runErr
	w.metrics.ObserveJob(string(job.JobKind), string(kind), time.Since(start))
	if recErr := w.recordFailure(ctx, job, req, runErr, kind, d); recErr != nil {
		w.log.Error("Recording failure failed", "job_id", job.ID, "error", recErr)
	}
	w.log.Warn("Job failed", "job_id", job.ID, "job_kind", job.JobKind, "error_kind", kind, "error", runErr)
	if w.cfg.Rethrow && perrors.Retryable(kind) {
		return runErr
	}
	return nil
}

func (w *Worker) claim(ctx context.Context, job *types.HydrationJob, d queue.Delivery) (*types.ExecutionRequest, bool, error) {
	var req *types.ExecutionRequest
	claimed := false
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		now := w.now()
		ok, err := w.repos.HydrationJob.TransitionStatus(dbc, job.ID, []types.JobStatus{jobs.StatusPending}, map[string]interface{}{
			"status":       jobs.StatusRunning,
			"locked_at":    now,
			"heartbeat_at": now,
		})
		if err != nil || !ok {
			return err
		}
		if _, err := w.repos.ExecutionRequest.UpdateFieldsIfStatus(dbc, job.ExecutionRequestID, []types.JobStatus{jobs.StatusPending}, map[string]interface{}{
			"status":     jobs.StatusRunning,
			"attempts":   gorm.Expr("attempts + 1"),
			"lock_owner": w.cfg.Owner,
			"started_at": now,
		}); err != nil {
			return err
		}
		r, err := w.repos.ExecutionRequest.GetByID(dbc, job.ExecutionRequestID)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("execution request %s missing", job.ExecutionRequestID)
		}
		if err := w.repos.ExecutionLog.Append(dbc, jobs.NewLogEntry(job.ID, jobs.EventStarted, jobs.StatusPending, jobs.StatusRunning, "", map[string]any{
			"attempt":     r.Attempts,
			"owner":       w.cfg.Owner,
			"delivery_id": d.ID,
		})); err != nil {
			return err
		}
		req, claimed = r, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if claimed {
		job.Status = jobs.StatusRunning
	}
	return req, claimed, nil
}

// run generates and validates content under the job timeout, heartbeating meanwhile.
func (w *Worker) run(ctx context.Context, job *types.HydrationJob, req *types.ExecutionRequest) (json.RawMessage, error) {
	payload, err := jobs.DecodePayload(job.JobKind, json.RawMessage(req.Payload))
	if err != nil {
		return nil, perrors.E(perrors.KindValidation, "worker.payload", err)
	}
	gen, ok := w.registry.Get(job.JobKind)
	if !ok {
		return nil, &missingGeneratorError{Kind: job.JobKind}
	}

	runCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()
	stopHeartbeat := w.startHeartbeat(runCtx, job.ID)
	defer stopHeartbeat()

	out, err := runtime.Call(runCtx, gen, runtime.NewHydrationRequest(job, payload))
	if err == nil && runCtx.Err() != nil {
		err = runCtx.Err()
	}
	if err != nil {
		var pe *runtime.PanicError
		if errors.As(err, &pe) {
			w.log.Error("Generator panic", "job_id", job.ID, "job_kind", job.JobKind, "panic", pe.Value, "stack", pe.Stack)
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, perrors.Timeout("worker.generate", fmt.Errorf("job exceeded %s: %w", w.cfg.JobTimeout, err))
		}
		return nil, err
	}
	if err := w.validator.Validate(out, validation.Context{
		Kind:       job.JobKind,
		Language:   job.Language,
		Difficulty: job.Difficulty,
	}); err != nil {
		return nil, err
	}
	return out, nil
}

func (w *Worker) startHeartbeat(ctx context.Context, jobID uuid.UUID) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(w.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				if err := w.repos.HydrationJob.Heartbeat(dbctx.Context{Ctx: hbCtx}, jobID); err != nil && hbCtx.Err() == nil {
					w.log.Warn("Heartbeat failed", "job_id", jobID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

var errCompletionLost = errors.New("completion write lost")

func (w *Worker) complete(ctx context.Context, job *types.HydrationJob, req *types.ExecutionRequest, content json.RawMessage) error {
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		now := w.now()
		owned, err := w.repos.ExecutionRequest.UpdateFieldsIfOwner(dbc, req.ID, []types.JobStatus{jobs.StatusRunning}, w.cfg.Owner, map[string]interface{}{
			"status":      jobs.StatusCompleted,
			"finished_at": now,
			"last_error":  "",
		})
		if err != nil {
			return err
		}
		if !owned {
			return errCompletionLost
		}
		ok, err := w.repos.HydrationJob.TransitionStatus(dbc, job.ID, []types.JobStatus{jobs.StatusRunning}, map[string]interface{}{
			"status":       jobs.StatusCompleted,
			"completed_at": now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errCompletionLost
		}
		if err := w.repos.GeneratedContent.Create(dbc, &types.GeneratedContent{
			HydrationJobID: job.ID,
			JobKind:        job.JobKind,
			TargetType:     job.TargetType,
			TargetID:       job.TargetID,
			Language:       job.Language,
			Difficulty:     job.Difficulty,
			Body:           datatypes.JSON(content),
		}); err != nil {
			return err
		}
		if err := w.repos.ExecutionLog.Append(dbc, jobs.NewLogEntry(job.ID, jobs.EventCompleted, jobs.StatusRunning, jobs.StatusCompleted, "", map[string]any{
			"attempt": req.Attempts,
			"bytes":   len(content),
		})); err != nil {
			return err
		}
		return w.audit.Record(dbc, services.AuditEntry{
			Action:     audit.ActionJobRun,
			ActorID:    "worker:" + w.cfg.Owner,
			EntityType: "hydration_job",
			EntityID:   job.ID.String(),
			Meta:       map[string]any{"outcome": "completed", "job_kind": job.JobKind, "attempt": req.Attempts},
		})
	})
}

func (w *Worker) recordFailure(ctx context.Context, job *types.HydrationJob, req *types.ExecutionRequest, runErr error, kind perrors.Kind, d queue.Delivery) error {
	// Failures are recorded even when the consumer is shutting down.
	ctx = context.WithoutCancel(ctx)
	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		meta := map[string]any{
			"error":       runErr.Error(),
			"kind":        kind,
			"retryable":   perrors.Retryable(kind),
			"attempt":     req.Attempts,
			"delivery_id": d.ID,
		}
		if err := w.repos.ExecutionLog.Append(dbc, jobs.NewLogEntry(job.ID, jobs.EventFailed, jobs.StatusRunning, jobs.StatusRunning, string(kind), meta)); err != nil {
			return err
		}
		if _, err := w.repos.ExecutionRequest.UpdateFieldsIfStatus(dbc, req.ID, []types.JobStatus{jobs.StatusRunning}, map[string]interface{}{
			"last_error": truncate(runErr.Error(), 2000),
		}); err != nil {
			return err
		}
		return w.audit.Record(dbc, services.AuditEntry{
			Action:     audit.ActionJobRun,
			ActorID:    "worker:" + w.cfg.Owner,
			EntityType: "hydration_job",
			EntityID:   job.ID.String(),
			Meta: map[string]any{
				"outcome":  "failed",
				"job_kind": job.JobKind,
				"error":    runErr.Error(),
				"kind":     kind,
			},
		})
	})
}

func classify(ctx context.Context, err error) perrors.Kind {
	if ctx.Err() != nil {
		return perrors.KindInfra
	}
	kind := perrors.KindOf(err)
	if kind == perrors.KindUnknown {
		return perrors.KindInfra
	}
	return kind
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

type missingGeneratorError struct{ Kind jobs.JobKind }

func (e *missingGeneratorError) Error() string {
	return "no generator registered for job_kind=" + string(e.Kind)
}

func (e *missingGeneratorError) ErrorKind() perrors.Kind { return perrors.KindValidation }
