package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Action string

const (
	ActionJobRun            Action = "JOB_RUN"
	ActionJobCancelled      Action = "JOB_CANCELLED"
	ActionRetryCreated      Action = "RETRY_CREATED"
	ActionPromotionApproved Action = "PROMOTION_APPROVED"
	ActionPromotionRejected Action = "PROMOTION_REJECTED"
	ActionPromotionReverted Action = "PROMOTION_REVERTED"
	ActionRegenStarted      Action = "REGEN_JOB_STARTED"
	ActionRegenCompleted    Action = "REGEN_JOB_COMPLETED"
	ActionRegenFailed       Action = "REGEN_JOB_FAILED"
	ActionSuggestionCreated Action = "SUGGESTION_CREATED"
	ActionRetryIntentLogged Action = "RETRY_INTENT_CREATED"
)

// AuditEvent is append-only.
type AuditEvent struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Action     Action         `gorm:"column:action;not null;index" json:"action"`
	ActorID    string         `gorm:"column:actor_id;index" json:"actor_id,omitempty"`
	EntityType string         `gorm:"column:entity_type;not null;index:idx_audit_event_entity,priority:1" json:"entity_type"`
	EntityID   string         `gorm:"column:entity_id;not null;index:idx_audit_event_entity,priority:2" json:"entity_id"`
	Meta       datatypes.JSON `gorm:"column:meta;type:jsonb" json:"meta,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}

func (AuditEvent) TableName() string { return "audit_event" }

func (e *AuditEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}
