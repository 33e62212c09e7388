package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

type ExecutionRequestRepo interface {
	Create(dbc dbctx.Context, req *types.ExecutionRequest) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ExecutionRequest, error)
	UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.JobStatus, updates map[string]interface{}) (bool, error)
	// UpdateFieldsIfOwner is UpdateFieldsIfStatus that also requires lock_owner = owner.
	UpdateFieldsIfOwner(dbc dbctx.Context, id uuid.UUID, allowed []types.JobStatus, owner string, updates map[string]interface{}) (bool, error)
}

type executionRequestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExecutionRequestRepo(db *gorm.DB, baseLog *logger.Logger) ExecutionRequestRepo {
	return &executionRequestRepo{db: db, log: baseLog.With("repo", "ExecutionRequestRepo")}
}

func (r *executionRequestRepo) Create(dbc dbctx.Context, req *types.ExecutionRequest) error {
	return dbc.Handle(r.db).Create(req).Error
}

func (r *executionRequestRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ExecutionRequest, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.ExecutionRequest
	if err := dbc.Handle(r.db).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *executionRequestRepo) UpdateFieldsIfStatus(dbc dbctx.Context, id uuid.UUID, allowed []types.JobStatus, updates map[string]interface{}) (bool, error) {
	return conditionalUpdate(dbc.Handle(r.db).Model(&types.ExecutionRequest{}), id, allowed, updates)
}

func (r *executionRequestRepo) UpdateFieldsIfOwner(dbc dbctx.Context, id uuid.UUID, allowed []types.JobStatus, owner string, updates map[string]interface{}) (bool, error) {
	if owner == "" {
		return false, nil
	}
	q := dbc.Handle(r.db).Model(&types.ExecutionRequest{}).Where("lock_owner = ?", owner)
	return conditionalUpdate(q, id, allowed, updates)
}

type HydrationJobRepo interface {
	Create(dbc dbctx.Context, job *types.HydrationJob) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.HydrationJob, error)
	GetByDedupeKey(dbc dbctx.Context, key string) (*types.HydrationJob, error)
	// TransitionStatus applies updates only while the job is in one of from.
	// It reports whether a row changed; false means another actor moved the job first.
	TransitionStatus(dbc dbctx.Context, id uuid.UUID, from []types.JobStatus, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
	ListByStatus(dbc dbctx.Context, status types.JobStatus, limit int) ([]*types.HydrationJob, error)
	ListStaleRunning(dbc dbctx.Context, heartbeatBefore time.Time, limit int) ([]*types.HydrationJob, error)
	CountByStatus(dbc dbctx.Context, statuses []types.JobStatus) (int64, error)
}

type hydrationJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewHydrationJobRepo(db *gorm.DB, baseLog *logger.Logger) HydrationJobRepo {
	return &hydrationJobRepo{db: db, log: baseLog.With("repo", "HydrationJobRepo")}
}

func (r *hydrationJobRepo) Create(dbc dbctx.Context, job *types.HydrationJob) error {
	return dbc.Handle(r.db).Create(job).Error
}

func (r *hydrationJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.HydrationJob, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.first(dbc, "id = ?", id)
}

func (r *hydrationJobRepo) GetByDedupeKey(dbc dbctx.Context, key string) (*types.HydrationJob, error) {
	if key == "" {
		return nil, nil
	}
	return r.first(dbc, "dedupe_key = ?", key)
}

func (r *hydrationJobRepo) first(dbc dbctx.Context, query string, args ...interface{}) (*types.HydrationJob, error) {
	var out types.HydrationJob
	if err := dbc.Handle(r.db).Where(query, args...).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *hydrationJobRepo) TransitionStatus(dbc dbctx.Context, id uuid.UUID, from []types.JobStatus, updates map[string]interface{}) (bool, error) {
	return conditionalUpdate(dbc.Handle(r.db).Model(&types.HydrationJob{}), id, from, updates)
}

func (r *hydrationJobRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return dbc.Handle(r.db).
		Model(&types.HydrationJob{}).
		Where("id = ? AND status = ?", id, jobs.StatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *hydrationJobRepo) ListByStatus(dbc dbctx.Context, status types.JobStatus, limit int) ([]*types.HydrationJob, error) {
	var out []*types.HydrationJob
	q := dbc.Handle(r.db).Where("status = ?", status).Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *hydrationJobRepo) ListStaleRunning(dbc dbctx.Context, heartbeatBefore time.Time, limit int) ([]*types.HydrationJob, error) {
	var out []*types.HydrationJob
	q := dbc.Handle(r.db).
		Where("status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)", jobs.StatusRunning, heartbeatBefore).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *hydrationJobRepo) CountByStatus(dbc dbctx.Context, statuses []types.JobStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	var n int64
	err := dbc.Handle(r.db).Model(&types.HydrationJob{}).Where("status IN ?", statuses).Count(&n).Error
	return n, err
}

func conditionalUpdate(q *gorm.DB, id uuid.UUID, allowed []types.JobStatus, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q = q.Where("id = ?", id)
	if len(allowed) == 1 {
		q = q.Where("status = ?", allowed[0])
	} else if len(allowed) > 1 {
		q = q.Where("status IN ?", allowed)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
