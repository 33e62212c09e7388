package regen

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/regen"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

type RegenerationJobRepo interface {
	Create(dbc dbctx.Context, job *types.RegenerationJob) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RegenerationJob, error)
	ListPending(dbc dbctx.Context, limit int) ([]*types.RegenerationJob, error)
	// Claim flips PENDING to RUNNING. False means another runner owns the job.
	Claim(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error)
	// Complete and Fail only apply while the job is still RUNNING.
	Complete(dbc dbctx.Context, id uuid.UUID, outputID uuid.UUID, at time.Time) (bool, error)
	Fail(dbc dbctx.Context, id uuid.UUID, errorJSON datatypes.JSON, at time.Time) (bool, error)
	CountByStatus(dbc dbctx.Context, status types.RegenStatus) (int64, error)
	// ReleaseStale returns RUNNING jobs started before startedBefore to PENDING.
	ReleaseStale(dbc dbctx.Context, startedBefore time.Time, limit int) (int64, error)
}

type regenerationJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRegenerationJobRepo(db *gorm.DB, baseLog *logger.Logger) RegenerationJobRepo {
	return &regenerationJobRepo{db: db, log: baseLog.With("repo", "RegenerationJobRepo")}
}

func (r *regenerationJobRepo) Create(dbc dbctx.Context, job *types.RegenerationJob) error {
	return dbc.Handle(r.db).Create(job).Error
}

func (r *regenerationJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RegenerationJob, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.RegenerationJob
	if err := dbc.Handle(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *regenerationJobRepo) ListPending(dbc dbctx.Context, limit int) ([]*types.RegenerationJob, error) {
	var out []*types.RegenerationJob
	q := dbc.Handle(r.db).Where("status = ?", regen.JobPending).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *regenerationJobRepo) Claim(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.transition(dbc, id, regen.JobPending, map[string]interface{}{
		"status":     regen.JobRunning,
		"started_at": at,
	})
}

func (r *regenerationJobRepo) Complete(dbc dbctx.Context, id uuid.UUID, outputID uuid.UUID, at time.Time) (bool, error) {
	return r.transition(dbc, id, regen.JobRunning, map[string]interface{}{
		"status":      regen.JobCompleted,
		"output_ref":  outputID,
		"finished_at": at,
	})
}

func (r *regenerationJobRepo) Fail(dbc dbctx.Context, id uuid.UUID, errorJSON datatypes.JSON, at time.Time) (bool, error) {
	return r.transition(dbc, id, regen.JobRunning, map[string]interface{}{
		"status":      regen.JobFailed,
		"error_json":  errorJSON,
		"finished_at": at,
	})
}

func (r *regenerationJobRepo) transition(dbc dbctx.Context, id uuid.UUID, from types.RegenStatus, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := dbc.Handle(r.db).
		Model(&types.RegenerationJob{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *regenerationJobRepo) CountByStatus(dbc dbctx.Context, status types.RegenStatus) (int64, error) {
	var n int64
	err := dbc.Handle(r.db).Model(&types.RegenerationJob{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

func (r *regenerationJobRepo) ReleaseStale(dbc dbctx.Context, startedBefore time.Time, limit int) (int64, error) {
	var ids []uuid.UUID
	q := dbc.Handle(r.db).Model(&types.RegenerationJob{}).
		Where("status = ? AND (started_at IS NULL OR started_at < ?)", regen.JobRunning, startedBefore).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.Handle(r.db).
		Model(&types.RegenerationJob{}).
		Where("id IN ? AND status = ?", ids, regen.JobRunning).
		Updates(map[string]interface{}{
			"status":     regen.JobPending,
			"started_at": nil,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

type RegenerationOutputRepo interface {
	Create(dbc dbctx.Context, out *types.RegenerationOutput) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RegenerationOutput, error)
}

type regenerationOutputRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRegenerationOutputRepo(db *gorm.DB, baseLog *logger.Logger) RegenerationOutputRepo {
	return &regenerationOutputRepo{db: db, log: baseLog.With("repo", "RegenerationOutputRepo")}
}

func (r *regenerationOutputRepo) Create(dbc dbctx.Context, out *types.RegenerationOutput) error {
	return dbc.Handle(r.db).Create(out).Error
}

func (r *regenerationOutputRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RegenerationOutput, error) {
	var out types.RegenerationOutput
	if err := dbc.Handle(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}
