package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/audit"
	"github.com/yungbote/neurobridge-hydration/internal/domain/regen"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

var (
	ErrIntentNotFound        = perrors.New("retry intent not found")
	ErrIntentAlreadyExecuted = perrors.New("retry intent already executed")
	ErrSourceJobNotFailed    = perrors.New("source regeneration job is not failed")
)

type CreateIntentInput struct {
	SourceJobID uuid.UUID
	ReasonCode  types.ReasonCode
	Reason      string
	RequestedBy string
}

type RetryIntentService interface {
	CreateIntent(ctx context.Context, in CreateIntentInput) (*types.RetryIntent, error)
	// CreateRetryJobFromIntent consumes the intent exactly once and creates one new job.
	CreateRetryJobFromIntent(ctx context.Context, intentID uuid.UUID, actorID string) (*types.RegenerationJob, error)
}

type retryIntentService struct {
	db    *gorm.DB
	log   *logger.Logger
	repos repos.Set
	audit AuditService
	now   func() time.Time
}

func NewRetryIntentService(db *gorm.DB, baseLog *logger.Logger, set repos.Set, auditSvc AuditService) RetryIntentService {
	return &retryIntentService{
		db:    db,
		log:   baseLog.With("service", "RetryIntentService"),
		repos: set,
		audit: auditSvc,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *retryIntentService) CreateIntent(ctx context.Context, in CreateIntentInput) (*types.RetryIntent, error) {
	const op = "retry_intent.create"
	in.ReasonCode = types.ReasonCode(strings.ToUpper(strings.TrimSpace(string(in.ReasonCode))))
	if !in.ReasonCode.Valid() {
		return nil, perrors.Validation(op, "invalid reason_code %q", in.ReasonCode)
	}
	if strings.TrimSpace(in.RequestedBy) == "" {
		return nil, perrors.Validation(op, "missing requested_by")
	}
	var out *types.RetryIntent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		src, err := s.repos.RegenerationJob.GetByID(dbc, in.SourceJobID)
		if err != nil {
			return err
		}
		if src == nil {
			return perrors.NotFound(op, "regeneration job")
		}
		if src.Status != regen.JobFailed {
			return perrors.Conflict(op, fmt.Errorf("%w (status=%s)", ErrSourceJobNotFailed, src.Status))
		}
		intent := &types.RetryIntent{
			SourceJobID: src.ID,
			ReasonCode:  in.ReasonCode,
			Reason:      strings.TrimSpace(in.Reason),
			RequestedBy: in.RequestedBy,
			Status:      regen.IntentPending,
		}
		if err := s.repos.RetryIntent.Create(dbc, intent); err != nil {
			return err
		}
		if err := s.audit.Record(dbc, AuditEntry{
			Action:     audit.ActionRetryIntentLogged,
			ActorID:    in.RequestedBy,
			EntityType: "retry_intent",
			EntityID:   intent.ID.String(),
			Meta: map[string]any{
				"source_job_id": src.ID.String(),
				"reason_code":   in.ReasonCode,
			},
		}); err != nil {
			return err
		}
		out = intent
		return nil
	})
	if err != nil {
		return nil, classifyWriteError(op, err)
	}
	return out, nil
}

func (s *retryIntentService) CreateRetryJobFromIntent(ctx context.Context, intentID uuid.UUID, actorID string) (*types.RegenerationJob, error) {
	const op = "retry_intent.execute"
	var out *types.RegenerationJob
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		intent, err := s.repos.RetryIntent.GetByID(dbc, intentID)
		if err != nil {
			return err
		}
		if intent == nil {
			return perrors.E(perrors.KindNotFound, op, ErrIntentNotFound)
		}
		consumed, err := s.repos.RetryIntent.Consume(dbc, intentID, s.now())
		if err != nil {
			return err
		}
		if !consumed {
			return perrors.AlreadyExecuted(op, ErrIntentAlreadyExecuted)
		}
		src, err := s.repos.RegenerationJob.GetByID(dbc, intent.SourceJobID)
		if err != nil {
			return err
		}
		if src == nil {
			return perrors.NotFound(op, "source regeneration job")
		}
		createdBy := actorID
		if createdBy == "" {
			createdBy = intent.RequestedBy
		}
		iid := intent.ID
		job := &types.RegenerationJob{
			SuggestionID:  src.SuggestionID,
			TargetType:    src.TargetType,
			TargetID:      src.TargetID,
			Instruction:   append(datatypes.JSON(nil), src.Instruction...),
			Status:        regen.JobPending,
			RetryIntentID: &iid,
			CreatedBy:     createdBy,
		}
		if err := s.repos.RegenerationJob.Create(dbc, job); err != nil {
			return err
		}
		if err := s.audit.Record(dbc, AuditEntry{
			Action:     audit.ActionRetryCreated,
			ActorID:    createdBy,
			EntityType: "regeneration_job",
			EntityID:   job.ID.String(),
			Meta: map[string]any{
				"retry_intent_id": intent.ID.String(),
				"source_job_id":   src.ID.String(),
				"reason_code":     intent.ReasonCode,
			},
		}); err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		if perrors.IsUniqueViolation(err) {
			return nil, perrors.AlreadyExecuted(op, fmt.Errorf("%w: %v", ErrIntentAlreadyExecuted, err))
		}
		return nil, classifyWriteError(op, err)
	}
	s.log.Info("Retry job created", "retry_intent_id", intentID, "job_id", out.ID, "actor_id", actorID)
	return out, nil
}
