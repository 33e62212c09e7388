package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

// ExecutionLogRepo is append-only: there is no update or delete.
type ExecutionLogRepo interface {
	Append(dbc dbctx.Context, entry *types.JobExecutionLog) error
	ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobExecutionLog, error)
	Latest(dbc dbctx.Context, jobID uuid.UUID) (*types.JobExecutionLog, error)
	// CountSince counts entries of event created at or after since. An empty
	// errorKind matches any kind.
	CountSince(dbc dbctx.Context, event types.LogEvent, errorKind string, since time.Time) (int64, error)
}

type executionLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExecutionLogRepo(db *gorm.DB, baseLog *logger.Logger) ExecutionLogRepo {
	return &executionLogRepo{db: db, log: baseLog.With("repo", "ExecutionLogRepo")}
}

func (r *executionLogRepo) Append(dbc dbctx.Context, entry *types.JobExecutionLog) error {
	return dbc.Handle(r.db).Create(entry).Error
}

func (r *executionLogRepo) ListByJob(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobExecutionLog, error) {
	var out []*types.JobExecutionLog
	err := dbc.Handle(r.db).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *executionLogRepo) Latest(dbc dbctx.Context, jobID uuid.UUID) (*types.JobExecutionLog, error) {
	var out types.JobExecutionLog
	err := dbc.Handle(r.db).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
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

func (r *executionLogRepo) CountSince(dbc dbctx.Context, event types.LogEvent, errorKind string, since time.Time) (int64, error) {
	q := dbc.Handle(r.db).Model(&types.JobExecutionLog{}).Where("event = ? AND created_at >= ?", event, since)
	if errorKind != "" {
		q = q.Where("error_kind = ?", errorKind)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

type GeneratedContentRepo interface {
	Create(dbc dbctx.Context, content *types.GeneratedContent) error
	GetByJobID(dbc dbctx.Context, jobID uuid.UUID) (*types.GeneratedContent, error)
}

type generatedContentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGeneratedContentRepo(db *gorm.DB, baseLog *logger.Logger) GeneratedContentRepo {
	return &generatedContentRepo{db: db, log: baseLog.With("repo", "GeneratedContentRepo")}
}

func (r *generatedContentRepo) Create(dbc dbctx.Context, content *types.GeneratedContent) error {
	return dbc.Handle(r.db).Create(content).Error
}

func (r *generatedContentRepo) GetByJobID(dbc dbctx.Context, jobID uuid.UUID) (*types.GeneratedContent, error) {
	var out types.GeneratedContent
	if err := dbc.Handle(r.db).Where("hydration_job_id = ?", jobID).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}
