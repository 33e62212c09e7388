package telemetry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

type SampleRepo interface {
	Create(dbc dbctx.Context, s *types.TelemetrySample) error
	// Upsert writes s, replacing the value already stored for its key, dimension and bucket.
	Upsert(dbc dbctx.Context, s *types.TelemetrySample) error
	// ListRange returns samples for key with from <= ts < to, oldest first.
	ListRange(dbc dbctx.Context, key, dimensionHash string, from, to time.Time) ([]*types.TelemetrySample, error)
	// ListLatest returns up to n most recent samples for key, newest first.
	ListLatest(dbc dbctx.Context, key, dimensionHash string, n int) ([]*types.TelemetrySample, error)
	DeleteBefore(dbc dbctx.Context, before time.Time) (int64, error)
}

type sampleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSampleRepo(db *gorm.DB, baseLog *logger.Logger) SampleRepo {
	return &sampleRepo{db: db, log: baseLog.With("repo", "SampleRepo")}
}

func (r *sampleRepo) Create(dbc dbctx.Context, s *types.TelemetrySample) error {
	return dbc.Handle(r.db).Create(s).Error
}

func (r *sampleRepo) Upsert(dbc dbctx.Context, s *types.TelemetrySample) error {
	return dbc.Handle(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "metric_key"}, {Name: "dimension_hash"}, {Name: "ts"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "dimensions"}),
	}).Create(s).Error
}

func (r *sampleRepo) ListRange(dbc dbctx.Context, key, dimensionHash string, from, to time.Time) ([]*types.TelemetrySample, error) {
	var out []*types.TelemetrySample
	err := dbc.Handle(r.db).
		Where("metric_key = ? AND dimension_hash = ? AND ts >= ? AND ts < ?", key, dimensionHash, from, to).
		Order("ts ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sampleRepo) ListLatest(dbc dbctx.Context, key, dimensionHash string, n int) ([]*types.TelemetrySample, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []*types.TelemetrySample
	err := dbc.Handle(r.db).
		Where("metric_key = ? AND dimension_hash = ?", key, dimensionHash).
		Order("ts DESC").
		Limit(n).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sampleRepo) DeleteBefore(dbc dbctx.Context, before time.Time) (int64, error) {
	res := dbc.Handle(r.db).Where("ts < ?", before).Delete(&types.TelemetrySample{})
	return res.RowsAffected, res.Error
}

type AlertRepo interface {
	GetActive(dbc dbctx.Context, alertType types.AlertType) (*types.SystemAlert, error)
	Create(dbc dbctx.Context, a *types.SystemAlert) error
	Refresh(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// Resolve deactivates the row. False means it was already inactive.
	Resolve(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error)
	List(dbc dbctx.Context, activeOnly bool, limit int) ([]*types.SystemAlert, error)
	CountActive(dbc dbctx.Context, alertType types.AlertType) (int64, error)
}

type alertRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertRepo(db *gorm.DB, baseLog *logger.Logger) AlertRepo {
	return &alertRepo{db: db, log: baseLog.With("repo", "AlertRepo")}
}

func (r *alertRepo) GetActive(dbc dbctx.Context, alertType types.AlertType) (*types.SystemAlert, error) {
	var out types.SystemAlert
	err := dbc.Handle(r.db).
		Where("alert_type = ? AND active = ?", alertType, true).
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

func (r *alertRepo) Create(dbc dbctx.Context, a *types.SystemAlert) error {
	return dbc.Handle(r.db).Create(a).Error
}

func (r *alertRepo) Refresh(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return dbc.Handle(r.db).
		Model(&types.SystemAlert{}).
		Where("id = ? AND active = ?", id, true).
		Updates(updates).Error
}

func (r *alertRepo) Resolve(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := dbc.Handle(r.db).
		Model(&types.SystemAlert{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]interface{}{
			"active":      false,
			"resolved_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *alertRepo) List(dbc dbctx.Context, activeOnly bool, limit int) ([]*types.SystemAlert, error) {
	var out []*types.SystemAlert
	q := dbc.Handle(r.db).Order("last_seen DESC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *alertRepo) CountActive(dbc dbctx.Context, alertType types.AlertType) (int64, error) {
	var n int64
	err := dbc.Handle(r.db).Model(&types.SystemAlert{}).
		Where("alert_type = ? AND active = ?", alertType, true).
		Count(&n).Error
	return n, err
}
