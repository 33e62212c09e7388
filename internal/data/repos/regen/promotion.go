package regen

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/regen"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

type PromotionCandidateRepo interface {
	Create(dbc dbctx.Context, c *types.PromotionCandidate) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PromotionCandidate, error)
	List(dbc dbctx.Context, status types.CandidateStatus, limit int) ([]*types.PromotionCandidate, error)
	// Review moves a PENDING candidate to status. False means it was not PENDING.
	Review(dbc dbctx.Context, id uuid.UUID, status types.CandidateStatus, reviewerID, notes string, at time.Time) (bool, error)
}

type promotionCandidateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPromotionCandidateRepo(db *gorm.DB, baseLog *logger.Logger) PromotionCandidateRepo {
	return &promotionCandidateRepo{db: db, log: baseLog.With("repo", "PromotionCandidateRepo")}
}

func (r *promotionCandidateRepo) Create(dbc dbctx.Context, c *types.PromotionCandidate) error {
	return dbc.Handle(r.db).Create(c).Error
}

func (r *promotionCandidateRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.PromotionCandidate, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.PromotionCandidate
	if err := dbc.Handle(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *promotionCandidateRepo) List(dbc dbctx.Context, status types.CandidateStatus, limit int) ([]*types.PromotionCandidate, error) {
	var out []*types.PromotionCandidate
	q := dbc.Handle(r.db).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *promotionCandidateRepo) Review(dbc dbctx.Context, id uuid.UUID, status types.CandidateStatus, reviewerID, notes string, at time.Time) (bool, error) {
	res := dbc.Handle(r.db).
		Model(&types.PromotionCandidate{}).
		Where("id = ? AND status = ?", id, regen.CandidatePending).
		Updates(map[string]interface{}{
			"status":         status,
			"reviewer_id":    reviewerID,
			"reviewer_notes": notes,
			"reviewed_at":    at,
			"updated_at":     at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type PublishedOutputRepo interface {
	GetByScope(dbc dbctx.Context, scope types.Scope, refID string) (*types.PublishedOutput, error)
	DeleteByScope(dbc dbctx.Context, scope types.Scope, refID string) (int64, error)
	Create(dbc dbctx.Context, p *types.PublishedOutput) error
	CountByScope(dbc dbctx.Context, scope types.Scope, refID string) (int64, error)
}

type publishedOutputRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPublishedOutputRepo(db *gorm.DB, baseLog *logger.Logger) PublishedOutputRepo {
	return &publishedOutputRepo{db: db, log: baseLog.With("repo", "PublishedOutputRepo")}
}

func (r *publishedOutputRepo) GetByScope(dbc dbctx.Context, scope types.Scope, refID string) (*types.PublishedOutput, error) {
	var out types.PublishedOutput
	err := dbc.Handle(r.db).
		Where("scope = ? AND scope_ref_id = ?", scope, refID).
		Limit(1).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *publishedOutputRepo) DeleteByScope(dbc dbctx.Context, scope types.Scope, refID string) (int64, error) {
	res := dbc.Handle(r.db).
		Where("scope = ? AND scope_ref_id = ?", scope, refID).
		Delete(&types.PublishedOutput{})
	return res.RowsAffected, res.Error
}

func (r *publishedOutputRepo) Create(dbc dbctx.Context, p *types.PublishedOutput) error {
	return dbc.Handle(r.db).Create(p).Error
}

func (r *publishedOutputRepo) CountByScope(dbc dbctx.Context, scope types.Scope, refID string) (int64, error) {
	var n int64
	err := dbc.Handle(r.db).Model(&types.PublishedOutput{}).
		Where("scope = ? AND scope_ref_id = ?", scope, refID).
		Count(&n).Error
	return n, err
}

type RetryIntentRepo interface {
	Create(dbc dbctx.Context, intent *types.RetryIntent) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RetryIntent, error)
	// Consume flips PENDING to EXECUTED. False means it was already consumed.
	Consume(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error)
}

type retryIntentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRetryIntentRepo(db *gorm.DB, baseLog *logger.Logger) RetryIntentRepo {
	return &retryIntentRepo{db: db, log: baseLog.With("repo", "RetryIntentRepo")}
}

func (r *retryIntentRepo) Create(dbc dbctx.Context, intent *types.RetryIntent) error {
	return dbc.Handle(r.db).Create(intent).Error
}

func (r *retryIntentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RetryIntent, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.RetryIntent
	if err := dbc.Handle(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *retryIntentRepo) Consume(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := dbc.Handle(r.db).
		Model(&types.RetryIntent{}).
		Where("id = ? AND status = ?", id, regen.IntentPending).
		Updates(map[string]interface{}{
			"status":      regen.IntentExecuted,
			"executed_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
