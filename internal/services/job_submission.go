package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/audit"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/outbox"
	"github.com/yungbote/neurobridge-hydration/internal/observability"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

const (
	DefaultMaxAttempts = 3
	maxAllowedAttempts = 10
)

var (
	ErrAttemptsExhausted = perrors.New("job attempts exhausted")
	ErrJobNotCancellable = perrors.New("job is not pending or running")
)

type SubmitInput struct {
	Kind        types.JobKind
	Target      types.TargetEntity
	Payload     json.RawMessage
	MaxAttempts int
}

type SubmitResult struct {
	JobID     uuid.UUID       `json:"jobId"`
	RequestID uuid.UUID       `json:"requestId"`
	Status    types.JobStatus `json:"status"`
	Existing  bool            `json:"existing"`
	Requeued  bool            `json:"requeued"`
}

type JobService interface {
	Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error)
	Cancel(ctx context.Context, jobID uuid.UUID, actorID string) (*types.HydrationJob, error)
	Get(ctx context.Context, jobID uuid.UUID) (*types.HydrationJob, error)
	Timeline(ctx context.Context, jobID uuid.UUID) ([]*types.JobExecutionLog, error)
}

type jobService struct {
	db    *gorm.DB
	log   *logger.Logger
	repos repos.Set
	audit AuditService
	queue string
	now   func() time.Time
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, set repos.Set, auditSvc AuditService, queueName string) JobService {
	if strings.TrimSpace(queueName) == "" {
		queueName = jobs.DefaultQueue
	}
	return &jobService{
		db:    db,
		log:   baseLog.With("service", "JobService"),
		repos: set,
		audit: auditSvc,
		queue: queueName,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

/*
Submit is idempotent on (kind, target, language, difficulty).

  - pending, running or completed job for the key: returned as existing, no writes.
  - failed or cancelled job with attempts left: re-armed to pending with a new
    outbox row in one transaction.
  - failed or cancelled job with no attempts left: ErrAttemptsExhausted.
  - otherwise: ExecutionRequest, HydrationJob, OutboxMessage and the SUBMITTED
    log entry are created in one transaction.
*/
func (s *jobService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	const op = "job.submit"
	ctx, span := observability.StartSpan(ctx, op, attribute.String("job.kind", string(in.Kind)))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	kind, err := jobs.ParseJobKind(string(in.Kind))
	if err != nil {
		return nil, perrors.Validation(op, "%v", err)
	}
	in.Target.Type = strings.ToLower(strings.TrimSpace(in.Target.Type))
	in.Target.ID = strings.TrimSpace(in.Target.ID)
	if err = jobs.ValidateTarget(in.Target); err != nil {
		return nil, perrors.Validation(op, "%v", err)
	}
	payload, err := jobs.DecodePayload(kind, in.Payload)
	if err != nil {
		return nil, perrors.Validation(op, "%v", err)
	}
	maxAttempts := in.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if maxAttempts < 1 || maxAttempts > maxAllowedAttempts {
		return nil, perrors.Validation(op, "max_attempts must be between 1 and %d", maxAllowedAttempts)
	}
	if td := ctxutil.GetTraceData(ctx); td != nil {
		jobs.StampTrace(payload, td.TraceID, td.RequestID)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, perrors.Validation(op, "encode payload: %v", err)
	}

	lang, diff := jobs.LanguageOf(payload), jobs.DifficultyOf(payload)
	key := jobs.DedupeKey(kind, in.Target.ID, lang, diff)
	hier := jobs.HierarchyOf(payload)

	var out *SubmitResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		existing, gerr := s.repos.HydrationJob.GetByDedupeKey(dbc, key)
		if gerr != nil {
			return gerr
		}
		if existing != nil {
			res, rerr := s.resolveExisting(dbc, existing, maxAttempts)
			out = res
			return rerr
		}

		req := &types.ExecutionRequest{
			JobKind:     kind,
			TargetType:  in.Target.Type,
			TargetID:    in.Target.ID,
			Payload:     datatypes.JSON(payloadJSON),
			Status:      jobs.StatusPending,
			MaxAttempts: maxAttempts,
		}
		if cerr := s.repos.ExecutionRequest.Create(dbc, req); cerr != nil {
			return cerr
		}
		job := &types.HydrationJob{
			ExecutionRequestID: req.ID,
			JobKind:            kind,
			DedupeKey:          key,
			TargetType:         in.Target.Type,
			TargetID:           in.Target.ID,
			Language:           lang,
			Difficulty:         diff,
			BoardID:            hier.BoardID,
			GradeID:            hier.GradeID,
			SubjectID:          hier.SubjectID,
			ChapterID:          hier.ChapterID,
			TopicID:            hier.TopicID,
			Status:             jobs.StatusPending,
		}
		if cerr := s.repos.HydrationJob.Create(dbc, job); cerr != nil {
			return cerr
		}
		msg, merr := outbox.NewMessage(s.queue, kind, job.ID)
		if merr != nil {
			return merr
		}
		if cerr := s.repos.Outbox.Create(dbc, msg); cerr != nil {
			return cerr
		}
		entry := jobs.NewLogEntry(job.ID, jobs.EventSubmitted, "", jobs.StatusPending, "", map[string]any{
			"request_id":   req.ID.String(),
			"dedupe_key":   key,
			"max_attempts": maxAttempts,
		})
		if cerr := s.repos.ExecutionLog.Append(dbc, entry); cerr != nil {
			return cerr
		}
		out = &SubmitResult{JobID: job.ID, RequestID: req.ID, Status: job.Status}
		return nil
	})
	if err != nil {
		err = classifyWriteError(op, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("job.id", out.JobID.String()), attribute.Bool("job.existing", out.Existing))
	s.log.Info("Job submitted",
		"job_id", out.JobID,
		"job_kind", kind,
		"target_id", in.Target.ID,
		"existing", out.Existing,
		"requeued", out.Requeued,
	)
	return out, nil
}

func (s *jobService) resolveExisting(dbc dbctx.Context, job *types.HydrationJob, maxAttempts int) (*SubmitResult, error) {
	res := &SubmitResult{JobID: job.ID, RequestID: job.ExecutionRequestID, Status: job.Status, Existing: true}
	if !job.Status.Rearmable() {
		return res, nil
	}
	req, err := s.repos.ExecutionRequest.GetByID(dbc, job.ExecutionRequestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, perrors.NotFound("job.submit", "execution request")
	}
	limit := req.MaxAttempts
	if maxAttempts > limit {
		limit = maxAttempts
	}
	if req.Attempts >= limit {
		return nil, perrors.Conflict("job.submit", fmt.Errorf("%w: %d of %d used", ErrAttemptsExhausted, req.Attempts, limit))
	}

	prev := job.Status
	ok, err := s.repos.HydrationJob.TransitionStatus(dbc, job.ID, []types.JobStatus{jobs.StatusFailed, jobs.StatusCancelled}, map[string]interface{}{
		"status":       jobs.StatusPending,
		"locked_at":    nil,
		"heartbeat_at": nil,
		"completed_at": nil,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, perrors.Conflict("job.submit", fmt.Errorf("job %s changed state during resubmission", job.ID))
	}
	if _, err := s.repos.ExecutionRequest.UpdateFieldsIfStatus(dbc, req.ID, []types.JobStatus{jobs.StatusFailed, jobs.StatusCancelled}, map[string]interface{}{
		"status":       jobs.StatusPending,
		"max_attempts": limit,
		"finished_at":  nil,
		"lock_owner":   "",
	}); err != nil {
		return nil, err
	}
	msg, err := outbox.NewMessage(s.queue, job.JobKind, job.ID)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Outbox.Create(dbc, msg); err != nil {
		return nil, err
	}
	entry := jobs.NewLogEntry(job.ID, jobs.EventRetryCreated, prev, jobs.StatusPending, "", map[string]any{
		"attempts":     req.Attempts,
		"max_attempts": limit,
		"source":       "resubmission",
	})
	if err := s.repos.ExecutionLog.Append(dbc, entry); err != nil {
		return nil, err
	}
	res.Status = jobs.StatusPending
	res.Requeued = true
	return res, nil
}

func (s *jobService) Cancel(ctx context.Context, jobID uuid.UUID, actorID string) (*types.HydrationJob, error) {
	const op = "job.cancel"
	var out *types.HydrationJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		job, err := s.repos.HydrationJob.GetByID(dbc, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return perrors.NotFound(op, "job")
		}
		if job.Status != jobs.StatusPending && job.Status != jobs.StatusRunning {
			return perrors.Conflict(op, fmt.Errorf("%w (status=%s)", ErrJobNotCancellable, job.Status))
		}
		now := s.now()
		ok, err := s.repos.HydrationJob.TransitionStatus(dbc, job.ID, []types.JobStatus{job.Status}, map[string]interface{}{
			"status": jobs.StatusCancelled,
		})
		if err != nil {
			return err
		}
		if !ok {
			return perrors.Conflict(op, fmt.Errorf("job %s changed state during cancel", job.ID))
		}
		if _, err := s.repos.ExecutionRequest.UpdateFieldsIfStatus(dbc, job.ExecutionRequestID, []types.JobStatus{jobs.StatusPending, jobs.StatusRunning}, map[string]interface{}{
			"status":      jobs.StatusCancelled,
			"finished_at": now,
		}); err != nil {
			return err
		}
		if err := s.repos.ExecutionLog.Append(dbc, jobs.NewLogEntry(job.ID, jobs.EventCancelled, job.Status, jobs.StatusCancelled, "", map[string]any{
			"actor_id": actorID,
		})); err != nil {
			return err
		}
		if err := s.audit.Record(dbc, AuditEntry{
			Action:     audit.ActionJobCancelled,
			ActorID:    actorID,
			EntityType: "hydration_job",
			EntityID:   job.ID.String(),
			Meta:       map[string]any{"prev_status": job.Status},
		}); err != nil {
			return err
		}
		job.Status = jobs.StatusCancelled
		out = job
		return nil
	})
	if err != nil {
		return nil, classifyWriteError(op, err)
	}
	s.log.Info("Job cancelled", "job_id", jobID, "actor_id", actorID)
	return out, nil
}

func (s *jobService) Get(ctx context.Context, jobID uuid.UUID) (*types.HydrationJob, error) {
	job, err := s.repos.HydrationJob.GetByID(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return nil, perrors.Infra("job.get", err)
	}
	if job == nil {
		return nil, perrors.NotFound("job.get", "job")
	}
	return job, nil
}

func (s *jobService) Timeline(ctx context.Context, jobID uuid.UUID) ([]*types.JobExecutionLog, error) {
	if _, err := s.Get(ctx, jobID); err != nil {
		return nil, err
	}
	entries, err := s.repos.ExecutionLog.ListByJob(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return nil, perrors.Infra("job.timeline", err)
	}
	return entries, nil
}

// classifyWriteError keeps already-classified errors and maps store races to conflict.
func classifyWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var k perrors.Kinded
	if perrors.As(err, &k) {
		return err
	}
	if perrors.IsUniqueViolation(err) || perrors.IsSerializationFailure(err) {
		return perrors.Conflict(op, err)
	}
	return perrors.Infra(op, err)
}
