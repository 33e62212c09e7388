package audit

import (
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

type Filter struct {
	Action     types.AuditAction
	EntityType string
	EntityID   string
	Limit      int
}

// AuditRepo is append-only.
type AuditRepo interface {
	Create(dbc dbctx.Context, e *types.AuditEvent) error
	List(dbc dbctx.Context, f Filter) ([]*types.AuditEvent, error)
	Count(dbc dbctx.Context, f Filter) (int64, error)
}

type auditRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditRepo(db *gorm.DB, baseLog *logger.Logger) AuditRepo {
	return &auditRepo{db: db, log: baseLog.With("repo", "AuditRepo")}
}

func (r *auditRepo) Create(dbc dbctx.Context, e *types.AuditEvent) error {
	return dbc.Handle(r.db).Create(e).Error
}

func (r *auditRepo) List(dbc dbctx.Context, f Filter) ([]*types.AuditEvent, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []*types.AuditEvent
	if err := r.filtered(dbc, f).Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *auditRepo) Count(dbc dbctx.Context, f Filter) (int64, error) {
	var n int64
	err := r.filtered(dbc, f).Model(&types.AuditEvent{}).Count(&n).Error
	return n, err
}

func (r *auditRepo) filtered(dbc dbctx.Context, f Filter) *gorm.DB {
	q := dbc.Handle(r.db)
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	return q
}
