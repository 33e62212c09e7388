package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OutboxMessage is written in the same transaction as the state it announces.
// SentAt stays nil until the queue has accepted the message.
type OutboxMessage struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Queue     string         `gorm:"column:queue;not null;index" json:"queue"`
	JobID     uuid.UUID      `gorm:"type:uuid;column:job_id;not null;index" json:"job_id"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	Attempts  int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	SentAt    *time.Time     `gorm:"column:sent_at;index" json:"sent_at,omitempty"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

func (OutboxMessage) TableName() string { return "outbox_message" }

func (m *OutboxMessage) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// JobExecutionLog is an append-only timeline entry for a hydration job.
// Rows are never updated or deleted.
type JobExecutionLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_job_execution_log_job_created,priority:1" json:"job_id"`
	Event      LogEvent       `gorm:"column:event;not null;index" json:"event"`
	PrevStatus Status         `gorm:"column:prev_status" json:"prev_status,omitempty"`
	NewStatus  Status         `gorm:"column:new_status" json:"new_status,omitempty"`
	ErrorKind  string         `gorm:"column:error_kind;index" json:"error_kind,omitempty"`
	Meta       datatypes.JSON `gorm:"column:meta;type:jsonb" json:"meta,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index:idx_job_execution_log_job_created,priority:2;index" json:"created_at"`
}

func (JobExecutionLog) TableName() string { return "job_execution_log" }

func (l *JobExecutionLog) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	return nil
}

// NewLogEntry builds a timeline entry. meta is marshalled as-is; a nil map stores no meta.
func NewLogEntry(jobID uuid.UUID, event LogEvent, prev, next Status, errorKind string, meta map[string]any) *JobExecutionLog {
	entry := &JobExecutionLog{
		JobID:      jobID,
		Event:      event,
		PrevStatus: prev,
		NewStatus:  next,
		ErrorKind:  errorKind,
	}
	if len(meta) > 0 {
		if b, err := json.Marshal(meta); err == nil {
			entry.Meta = datatypes.JSON(b)
		}
	}
	return entry
}
