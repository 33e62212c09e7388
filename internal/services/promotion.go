package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/audit"
	"github.com/yungbote/neurobridge-hydration/internal/domain/regen"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/advisory"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

var (
	ErrCandidateNotFound        = perrors.New("promotion candidate not found")
	ErrCandidateAlreadyApproved = perrors.New("promotion candidate already approved")
	ErrCandidateAlreadyRejected = perrors.New("promotion candidate already rejected")
	ErrNothingToRevert          = perrors.New("no previous output to restore")
	ErrNotPublished             = perrors.New("nothing published for scope")
)

// PromotionService is the only path that changes what is live for a scope.
type PromotionService interface {
	ApproveCandidate(ctx context.Context, candidateID uuid.UUID, actorID, notes string) (*types.PublishedOutput, error)
	RejectCandidate(ctx context.Context, candidateID uuid.UUID, actorID, notes string) (*types.PromotionCandidate, error)
	ListCandidates(ctx context.Context, status types.CandidateStatus, limit int) ([]*types.PromotionCandidate, error)
	GetPublished(ctx context.Context, scope types.Scope, refID string) (*types.PublishedOutput, error)
	RevertPublished(ctx context.Context, scope types.Scope, refID, actorID, notes string) (*types.PublishedOutput, error)
}

type promotionService struct {
	db    *gorm.DB
	log   *logger.Logger
	repos repos.Set
	audit AuditService
	now   func() time.Time
}

func NewPromotionService(db *gorm.DB, baseLog *logger.Logger, set repos.Set, auditSvc AuditService) PromotionService {
	return &promotionService{
		db:    db,
		log:   baseLog.With("service", "PromotionService"),
		repos: set,
		audit: auditSvc,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *promotionService) ApproveCandidate(ctx context.Context, candidateID uuid.UUID, actorID, notes string) (*types.PublishedOutput, error) {
	const op = "promotion.approve"
	if strings.TrimSpace(actorID) == "" {
		return nil, perrors.Validation(op, "missing actor")
	}
	var published *types.PublishedOutput
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		now := s.now()
		ok, err := s.repos.PromotionCandidate.Review(dbc, candidateID, regen.CandidateApproved, actorID, notes, now)
		if err != nil {
			return err
		}
		if !ok {
			return s.reviewRejection(dbc, op, candidateID)
		}
		c, err := s.repos.PromotionCandidate.GetByID(dbc, candidateID)
		if err != nil {
			return err
		}
		if err := advisory.XactLock(tx, publishLockKey(c.Scope, c.ScopeRefID)); err != nil {
			return err
		}

		current, err := s.repos.PublishedOutput.GetByScope(dbc, c.Scope, c.ScopeRefID)
		if err != nil {
			return err
		}
		if _, err := s.repos.PublishedOutput.DeleteByScope(dbc, c.Scope, c.ScopeRefID); err != nil {
			return err
		}
		candID := c.ID
		p := &types.PublishedOutput{
			Scope:       c.Scope,
			ScopeRefID:  c.ScopeRefID,
			OutputID:    c.OutputID,
			CandidateID: &candID,
			PublishedBy: actorID,
			PublishedAt: now,
		}
		if current != nil {
			prev := current.OutputID
			p.PreviousOutputID = &prev
		}
		if err := s.repos.PublishedOutput.Create(dbc, p); err != nil {
			return err
		}
		meta := map[string]any{
			"scope":        c.Scope,
			"scope_ref_id": c.ScopeRefID,
			"output_id":    c.OutputID.String(),
		}
		if p.PreviousOutputID != nil {
			meta["previous_output_id"] = p.PreviousOutputID.String()
		}
		if notes != "" {
			meta["notes"] = notes
		}
		if err := s.audit.Record(dbc, AuditEntry{
			Action:     audit.ActionPromotionApproved,
			ActorID:    actorID,
			EntityType: "promotion_candidate",
			EntityID:   c.ID.String(),
			Meta:       meta,
		}); err != nil {
			return err
		}
		published = p
		return nil
	})
	if err != nil {
		return nil, classifyWriteError(op, err)
	}
	s.log.Info("Candidate approved", "candidate_id", candidateID, "actor_id", actorID, "output_id", published.OutputID)
	return published, nil
}

func (s *promotionService) RejectCandidate(ctx context.Context, candidateID uuid.UUID, actorID, notes string) (*types.PromotionCandidate, error) {
	const op = "promotion.reject"
	if strings.TrimSpace(actorID) == "" {
		return nil, perrors.Validation(op, "missing actor")
	}
	var out *types.PromotionCandidate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		ok, err := s.repos.PromotionCandidate.Review(dbc, candidateID, regen.CandidateRejected, actorID, notes, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return s.reviewRejection(dbc, op, candidateID)
		}
		c, err := s.repos.PromotionCandidate.GetByID(dbc, candidateID)
		if err != nil {
			return err
		}
		meta := map[string]any{"scope": c.Scope, "scope_ref_id": c.ScopeRefID, "output_id": c.OutputID.String()}
		if notes != "" {
			meta["notes"] = notes
		}
		if err := s.audit.Record(dbc, AuditEntry{
			Action:     audit.ActionPromotionRejected,
			ActorID:    actorID,
			EntityType: "promotion_candidate",
			EntityID:   c.ID.String(),
			Meta:       meta,
		}); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, classifyWriteError(op, err)
	}
	s.log.Info("Candidate rejected", "candidate_id", candidateID, "actor_id", actorID)
	return out, nil
}

// reviewRejection explains a conditional review that matched no row.
func (s *promotionService) reviewRejection(dbc dbctx.Context, op string, candidateID uuid.UUID) error {
	c, err := s.repos.PromotionCandidate.GetByID(dbc, candidateID)
	if err != nil {
		return err
	}
	switch {
	case c == nil:
		return perrors.E(perrors.KindNotFound, op, ErrCandidateNotFound)
	case c.Status == regen.CandidateApproved:
		return perrors.Conflict(op, ErrCandidateAlreadyApproved)
	case c.Status == regen.CandidateRejected:
		return perrors.Conflict(op, ErrCandidateAlreadyRejected)
	}
	return perrors.Conflict(op, fmt.Errorf("candidate %s in unexpected status %s", candidateID, c.Status))
}

func (s *promotionService) ListCandidates(ctx context.Context, status types.CandidateStatus, limit int) ([]*types.PromotionCandidate, error) {
	out, err := s.repos.PromotionCandidate.List(dbctx.Context{Ctx: ctx}, status, limit)
	if err != nil {
		return nil, perrors.Infra("promotion.list", err)
	}
	return out, nil
}

func (s *promotionService) GetPublished(ctx context.Context, scope types.Scope, refID string) (*types.PublishedOutput, error) {
	if !scope.Valid() {
		return nil, perrors.Validation("promotion.get_published", "invalid scope %q", scope)
	}
	p, err := s.repos.PublishedOutput.GetByScope(dbctx.Context{Ctx: ctx}, scope, refID)
	if err != nil {
		return nil, perrors.Infra("promotion.get_published", err)
	}
	if p == nil {
		return nil, perrors.E(perrors.KindNotFound, "promotion.get_published", ErrNotPublished)
	}
	return p, nil
}

// RevertPublished restores the output that was live before the last approval.
// The replaced output becomes the new previous, so a revert can itself be reverted.
func (s *promotionService) RevertPublished(ctx context.Context, scope types.Scope, refID, actorID, notes string) (*types.PublishedOutput, error) {
	const op = "promotion.revert"
	if !scope.Valid() {
		return nil, perrors.Validation(op, "invalid scope %q", scope)
	}
	if strings.TrimSpace(actorID) == "" {
		return nil, perrors.Validation(op, "missing actor")
	}
	var restored *types.PublishedOutput
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := advisory.XactLock(tx, publishLockKey(scope, refID)); err != nil {
			return err
		}
		current, err := s.repos.PublishedOutput.GetByScope(dbc, scope, refID)
		if err != nil {
			return err
		}
		if current == nil {
			return perrors.E(perrors.KindNotFound, op, ErrNotPublished)
		}
		if current.PreviousOutputID == nil {
			return perrors.Conflict(op, ErrNothingToRevert)
		}
		n, err := s.repos.PublishedOutput.DeleteByScope(dbc, scope, refID)
		if err != nil {
			return err
		}
		if n == 0 {
			return perrors.Conflict(op, fmt.Errorf("published output for %s/%s changed during revert", scope, refID))
		}
		replaced := current.OutputID
		p := &types.PublishedOutput{
			Scope:            scope,
			ScopeRefID:       refID,
			OutputID:         *current.PreviousOutputID,
			PreviousOutputID: &replaced,
			PublishedBy:      actorID,
			PublishedAt:      s.now(),
		}
		if err := s.repos.PublishedOutput.Create(dbc, p); err != nil {
			return err
		}
		meta := map[string]any{
			"scope":              scope,
			"scope_ref_id":       refID,
			"restored_output_id": p.OutputID.String(),
			"replaced_output_id": replaced.String(),
		}
		if notes != "" {
			meta["notes"] = notes
		}
		if err := s.audit.Record(dbc, AuditEntry{
			Action:     audit.ActionPromotionReverted,
			ActorID:    actorID,
			EntityType: "published_output",
			EntityID:   string(scope) + ":" + refID,
			Meta:       meta,
		}); err != nil {
			return err
		}
		restored = p
		return nil
	})
	if err != nil {
		return nil, classifyWriteError(op, err)
	}
	s.log.Info("Published output reverted", "scope", scope, "scope_ref_id", refID, "actor_id", actorID)
	return restored, nil
}

// publishLockKey serializes publishes and reverts for one scope.
func publishLockKey(scope types.Scope, refID string) int64 {
	return advisory.Key("published_output", string(scope), refID)
}
