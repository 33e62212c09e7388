package regen

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

type Scope string

const (
	ScopeCourse Scope = "COURSE"
	ScopeModule Scope = "MODULE"
	ScopeLesson Scope = "LESSON"
)

func (s Scope) Valid() bool {
	return s == ScopeCourse || s == ScopeModule || s == ScopeLesson
}

// RegenerationJob regenerates already-published content. Terminal states are final.
type RegenerationJob struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SuggestionID  string         `gorm:"column:suggestion_id;index" json:"suggestion_id,omitempty"`
	TargetType    Scope          `gorm:"column:target_type;not null" json:"target_type"`
	TargetID      string         `gorm:"column:target_id;not null;index" json:"target_id"`
	Instruction   datatypes.JSON `gorm:"column:instruction;type:jsonb;not null" json:"instruction"`
	Status        JobStatus      `gorm:"column:status;not null;index" json:"status"`
	OutputRef     *uuid.UUID     `gorm:"type:uuid;column:output_ref" json:"output_ref,omitempty"`
	ErrorJSON     datatypes.JSON `gorm:"column:error_json;type:jsonb" json:"error_json,omitempty"`
	RetryIntentID *uuid.UUID     `gorm:"type:uuid;column:retry_intent_id;uniqueIndex" json:"retry_intent_id,omitempty"`
	CreatedBy     string         `gorm:"column:created_by" json:"created_by,omitempty"`
	StartedAt     *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt    *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (RegenerationJob) TableName() string { return "regeneration_job" }

func (j *RegenerationJob) BeforeCreate(*gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// RegenerationOutput is immutable. A new regeneration always inserts a new row.
type RegenerationOutput struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RegenerationJobID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"regeneration_job_id"`
	TargetType        Scope          `gorm:"column:target_type;not null" json:"target_type"`
	TargetID          string         `gorm:"column:target_id;not null;index" json:"target_id"`
	Content           datatypes.JSON `gorm:"column:content;type:jsonb;not null" json:"content"`
	CreatedAt         time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (RegenerationOutput) TableName() string { return "regeneration_output" }

func (o *RegenerationOutput) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// ErrorPayload is stored in RegenerationJob.ErrorJSON.
type ErrorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Instruction is the regeneration request payload. It is copied verbatim when
// a retry job is created from an intent.
type Instruction struct {
	Kind       string            `json:"kind" validate:"required,oneof=syllabus notes questions tests assemble"`
	Language   string            `json:"language" validate:"required"`
	Difficulty string            `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	Text       string            `json:"instruction" validate:"required,min=3"`
	Hierarchy  map[string]string `json:"hierarchy,omitempty"`
}
