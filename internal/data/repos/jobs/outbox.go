package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

type OutboxRepo interface {
	Create(dbc dbctx.Context, msg *types.OutboxMessage) error
	// ListUndispatched returns messages with sent_at unset, fewest attempts
	// first and then oldest, so rows that keep failing yield to fresh ones.
	ListUndispatched(dbc dbctx.Context, limit int) ([]*types.OutboxMessage, error)
	MarkSent(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error)
	RecordFailure(dbc dbctx.Context, id uuid.UUID, errMsg string) error
	CountUndispatched(dbc dbctx.Context) (int64, error)
	HasUndispatchedForJob(dbc dbctx.Context, jobID uuid.UUID) (bool, error)
	LatestSentAtForJob(dbc dbctx.Context, jobID uuid.UUID) (*time.Time, error)
}

type outboxRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOutboxRepo(db *gorm.DB, baseLog *logger.Logger) OutboxRepo {
	return &outboxRepo{db: db, log: baseLog.With("repo", "OutboxRepo")}
}

func (r *outboxRepo) Create(dbc dbctx.Context, msg *types.OutboxMessage) error {
	return dbc.Handle(r.db).Create(msg).Error
}

func (r *outboxRepo) ListUndispatched(dbc dbctx.Context, limit int) ([]*types.OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*types.OutboxMessage
	err := dbc.Handle(r.db).
		Where("sent_at IS NULL").
		Order("attempts ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *outboxRepo) MarkSent(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := dbc.Handle(r.db).
		Model(&types.OutboxMessage{}).
		Where("id = ? AND sent_at IS NULL", id).
		Updates(map[string]interface{}{
			"sent_at":    at,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *outboxRepo) RecordFailure(dbc dbctx.Context, id uuid.UUID, errMsg string) error {
	return dbc.Handle(r.db).
		Model(&types.OutboxMessage{}).
		Where("id = ? AND sent_at IS NULL", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": errMsg,
		}).Error
}

func (r *outboxRepo) CountUndispatched(dbc dbctx.Context) (int64, error) {
	var n int64
	err := dbc.Handle(r.db).Model(&types.OutboxMessage{}).Where("sent_at IS NULL").Count(&n).Error
	return n, err
}

func (r *outboxRepo) HasUndispatchedForJob(dbc dbctx.Context, jobID uuid.UUID) (bool, error) {
	var n int64
	err := dbc.Handle(r.db).Model(&types.OutboxMessage{}).
		Where("job_id = ? AND sent_at IS NULL", jobID).
		Count(&n).Error
	return n > 0, err
}

func (r *outboxRepo) LatestSentAtForJob(dbc dbctx.Context, jobID uuid.UUID) (*time.Time, error) {
	var msg types.OutboxMessage
	err := dbc.Handle(r.db).
		Where("job_id = ? AND sent_at IS NOT NULL", jobID).
		Order("sent_at DESC").
		Limit(1).
		Find(&msg).Error
	if err != nil {
		return nil, err
	}
	if msg.ID == uuid.Nil {
		return nil, nil
	}
	return msg.SentAt, nil
}
