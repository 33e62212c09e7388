package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
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

// SuggestionInput is an editor's request to regenerate published content.
type SuggestionInput struct {
	SuggestionID string            `json:"suggestionId"`
	Scope        types.Scope       `json:"scope" validate:"required"`
	TargetID     string            `json:"targetId" validate:"required"`
	Instruction  types.Instruction `json:"instruction"`
}

type RegenerationService interface {
	RequestFromSuggestion(ctx context.Context, in SuggestionInput, actorID string) (*types.RegenerationJob, error)
	GetJob(ctx context.Context, id uuid.UUID) (*types.RegenerationJob, error)
}

type regenerationService struct {
	db       *gorm.DB
	log      *logger.Logger
	repos    repos.Set
	audit    AuditService
	validate *validator.Validate
}

func NewRegenerationService(db *gorm.DB, baseLog *logger.Logger, set repos.Set, auditSvc AuditService) RegenerationService {
	return &regenerationService{
		db:       db,
		log:      baseLog.With("service", "RegenerationService"),
		repos:    set,
		audit:    auditSvc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *regenerationService) RequestFromSuggestion(ctx context.Context, in SuggestionInput, actorID string) (*types.RegenerationJob, error) {
	const op = "regeneration.request"
	in.Scope = types.Scope(strings.ToUpper(strings.TrimSpace(string(in.Scope))))
	in.TargetID = strings.TrimSpace(in.TargetID)
	in.Instruction.Kind = strings.ToLower(strings.TrimSpace(in.Instruction.Kind))
	in.Instruction.Language = strings.ToLower(strings.TrimSpace(in.Instruction.Language))
	in.Instruction.Difficulty = strings.ToLower(strings.TrimSpace(in.Instruction.Difficulty))
	if !in.Scope.Valid() {
		return nil, perrors.Validation(op, "invalid scope %q", in.Scope)
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, perrors.Validation(op, "%v", err)
	}
	raw, err := json.Marshal(in.Instruction)
	if err != nil {
		return nil, perrors.Validation(op, "encode instruction: %v", err)
	}
	job := &types.RegenerationJob{
		SuggestionID: strings.TrimSpace(in.SuggestionID),
		TargetType:   in.Scope,
		TargetID:     in.TargetID,
		Instruction:  datatypes.JSON(raw),
		Status:       regen.JobPending,
		CreatedBy:    actorID,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.repos.RegenerationJob.Create(dbc, job); err != nil {
			return err
		}
		return s.audit.Record(dbc, AuditEntry{
			Action:     audit.ActionSuggestionCreated,
			ActorID:    actorID,
			EntityType: "regeneration_job",
			EntityID:   job.ID.String(),
			Meta: map[string]any{
				"suggestion_id": job.SuggestionID,
				"scope":         job.TargetType,
				"target_id":     job.TargetID,
				"kind":          in.Instruction.Kind,
			},
		})
	})
	if err != nil {
		return nil, classifyWriteError(op, err)
	}
	s.log.Info("Regeneration requested", "job_id", job.ID, "scope", job.TargetType, "target_id", job.TargetID, "actor_id", actorID)
	return job, nil
}

func (s *regenerationService) GetJob(ctx context.Context, id uuid.UUID) (*types.RegenerationJob, error) {
	job, err := s.repos.RegenerationJob.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, perrors.Infra("regeneration.get", err)
	}
	if job == nil {
		return nil, perrors.NotFound("regeneration.get", "regeneration job")
	}
	return job, nil
}
