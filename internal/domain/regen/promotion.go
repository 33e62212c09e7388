package regen

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CandidateStatus string

const (
	CandidatePending  CandidateStatus = "PENDING"
	CandidateApproved CandidateStatus = "APPROVED"
	CandidateRejected CandidateStatus = "REJECTED"
)

type PromotionCandidate struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OutputID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"output_id"`
	Scope         Scope           `gorm:"column:scope;not null;index:idx_promotion_candidate_scope,priority:1" json:"scope"`
	ScopeRefID    string          `gorm:"column:scope_ref_id;not null;index:idx_promotion_candidate_scope,priority:2" json:"scope_ref_id"`
	Status        CandidateStatus `gorm:"column:status;not null;index" json:"status"`
	ReviewerID    string          `gorm:"column:reviewer_id" json:"reviewer_id,omitempty"`
	ReviewedAt    *time.Time      `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	ReviewerNotes string          `gorm:"column:reviewer_notes;type:text" json:"reviewer_notes,omitempty"`
	CreatedAt     time.Time       `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (PromotionCandidate) TableName() string { return "promotion_candidate" }

func (c *PromotionCandidate) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// PublishedOutput is the single live output for a scope.
type PublishedOutput struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Scope            Scope      `gorm:"column:scope;not null;uniqueIndex:idx_published_output_scope,priority:1" json:"scope"`
	ScopeRefID       string     `gorm:"column:scope_ref_id;not null;uniqueIndex:idx_published_output_scope,priority:2" json:"scope_ref_id"`
	OutputID         uuid.UUID  `gorm:"type:uuid;not null" json:"output_id"`
	CandidateID      *uuid.UUID `gorm:"type:uuid" json:"candidate_id,omitempty"`
	PreviousOutputID *uuid.UUID `gorm:"type:uuid" json:"previous_output_id,omitempty"`
	PublishedBy      string     `gorm:"column:published_by" json:"published_by,omitempty"`
	PublishedAt      time.Time  `gorm:"column:published_at;not null" json:"published_at"`
}

func (PublishedOutput) TableName() string { return "published_output" }

func (p *PublishedOutput) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

type ReasonCode string

const (
	ReasonModelOutputInvalid ReasonCode = "MODEL_OUTPUT_INVALID"
	ReasonTimeout            ReasonCode = "TIMEOUT"
	ReasonInfra              ReasonCode = "INFRA"
	ReasonOperatorRequest    ReasonCode = "OPERATOR_REQUEST"
)

func (r ReasonCode) Valid() bool {
	switch r {
	case ReasonModelOutputInvalid, ReasonTimeout, ReasonInfra, ReasonOperatorRequest:
		return true
	}
	return false
}

type IntentStatus string

const (
	IntentPending  IntentStatus = "PENDING"
	IntentExecuted IntentStatus = "EXECUTED"
)

// RetryIntent records who asked for a retry and why. It is consumed exactly once.
type RetryIntent struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	SourceJobID uuid.UUID    `gorm:"type:uuid;not null;index" json:"source_job_id"`
	ReasonCode  ReasonCode   `gorm:"column:reason_code;not null" json:"reason_code"`
	Reason      string       `gorm:"column:reason;type:text" json:"reason,omitempty"`
	RequestedBy string       `gorm:"column:requested_by;not null" json:"requested_by"`
	Status      IntentStatus `gorm:"column:status;not null;index" json:"status"`
	ExecutedAt  *time.Time   `gorm:"column:executed_at" json:"executed_at,omitempty"`
	CreatedAt   time.Time    `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (RetryIntent) TableName() string { return "retry_intent" }

func (i *RetryIntent) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
