package jobs

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExecutionRequest is the top-level ask ("generate notes for topic X").
type ExecutionRequest struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobKind     JobKind        `gorm:"column:job_kind;not null;index" json:"job_kind"`
	TargetType  string         `gorm:"column:target_type;not null;index" json:"target_type"`
	TargetID    string         `gorm:"column:target_id;not null;index" json:"target_id"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Status      Status         `gorm:"column:status;not null;index" json:"status"`
	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxAttempts int            `gorm:"column:max_attempts;not null;default:3" json:"max_attempts"`
	LastError   string         `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	LockOwner   string         `gorm:"column:lock_owner" json:"lock_owner,omitempty"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt  *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (ExecutionRequest) TableName() string { return "execution_request" }

func (r *ExecutionRequest) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// HydrationJob is the single child of an ExecutionRequest. It carries the
// denormalized hierarchy so the worker never re-resolves the request.
type HydrationJob struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ExecutionRequestID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"execution_request_id"`
	JobKind            JobKind    `gorm:"column:job_kind;not null;index" json:"job_kind"`
	DedupeKey          string     `gorm:"column:dedupe_key;not null;uniqueIndex" json:"dedupe_key"`
	TargetType         string     `gorm:"column:target_type;not null" json:"target_type"`
	TargetID           string     `gorm:"column:target_id;not null;index" json:"target_id"`
	Language           string     `gorm:"column:language;not null" json:"language"`
	Difficulty         string     `gorm:"column:difficulty" json:"difficulty,omitempty"`
	BoardID            string     `gorm:"column:board_id" json:"board_id,omitempty"`
	GradeID            string     `gorm:"column:grade_id" json:"grade_id,omitempty"`
	SubjectID          string     `gorm:"column:subject_id" json:"subject_id,omitempty"`
	ChapterID          string     `gorm:"column:chapter_id" json:"chapter_id,omitempty"`
	TopicID            string     `gorm:"column:topic_id" json:"topic_id,omitempty"`
	Status             Status     `gorm:"column:status;not null;index" json:"status"`
	LockedAt           *time.Time `gorm:"column:locked_at" json:"locked_at,omitempty"`
	HeartbeatAt        *time.Time `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	CompletedAt        *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt          time.Time  `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (HydrationJob) TableName() string { return "hydration_job" }

func (j *HydrationJob) BeforeCreate(*gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// DedupeKey is the idempotency key for a hydration: one job per
// (kind, target, language, difficulty). Fields are joined with "|"; a "|" or
// backslash inside a field is escaped so distinct tuples never share a key.
func DedupeKey(kind JobKind, targetID, language, difficulty string) string {
	fields := []string{string(kind), targetID, language, difficulty}
	for i, f := range fields {
		fields[i] = dedupeEscaper.Replace(f)
	}
	return strings.Join(fields, "|")
}

var dedupeEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`)

// GeneratedContent is validated hydration output, one row per hydration job.
type GeneratedContent struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	HydrationJobID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"hydration_job_id"`
	JobKind        JobKind        `gorm:"column:job_kind;not null" json:"job_kind"`
	TargetType     string         `gorm:"column:target_type;not null" json:"target_type"`
	TargetID       string         `gorm:"column:target_id;not null;index" json:"target_id"`
	Language       string         `gorm:"column:language;not null" json:"language"`
	Difficulty     string         `gorm:"column:difficulty" json:"difficulty,omitempty"`
	Body           datatypes.JSON `gorm:"column:body;type:jsonb;not null" json:"body"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (GeneratedContent) TableName() string { return "generated_content" }

func (c *GeneratedContent) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
