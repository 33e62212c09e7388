package telemetry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	KeyQueueDepth  = "queue.depth"
	KeyJobsFailed  = "jobs.failed"
	KeyJobsTimeout = "jobs.timeout"
)

// TelemetrySample is unique per (metric_key, dimension_hash, ts).
type TelemetrySample struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Key           string         `gorm:"column:metric_key;not null;uniqueIndex:idx_telemetry_sample_key_ts,priority:1" json:"key"`
	DimensionHash string         `gorm:"column:dimension_hash;not null;uniqueIndex:idx_telemetry_sample_key_ts,priority:2" json:"dimension_hash"`
	Timestamp     time.Time      `gorm:"column:ts;not null;uniqueIndex:idx_telemetry_sample_key_ts,priority:3" json:"timestamp"`
	Value         float64        `gorm:"column:value;not null" json:"value"`
	Dimensions    datatypes.JSON `gorm:"column:dimensions;type:jsonb" json:"dimensions,omitempty"`
}

func (TelemetrySample) TableName() string { return "telemetry_sample" }

func (s *TelemetrySample) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type AlertType string

const (
	AlertQueueBacklog    AlertType = "QUEUE_BACKLOG"
	AlertJobFailureSpike AlertType = "JOB_FAILURE_SPIKE"
	AlertJobTimeouts     AlertType = "JOB_TIMEOUTS"
)

type Severity string

const (
	SeverityOK       Severity = "OK"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// SystemAlert holds at most one active row per type.
type SystemAlert struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Type       AlertType      `gorm:"column:alert_type;not null;index" json:"type"`
	Severity   Severity       `gorm:"column:severity;not null" json:"severity"`
	Active     bool           `gorm:"column:active;not null;index" json:"active"`
	Message    string         `gorm:"column:message;type:text" json:"message"`
	Payload    datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`
	FirstSeen  time.Time      `gorm:"column:first_seen;not null" json:"first_seen"`
	LastSeen   time.Time      `gorm:"column:last_seen;not null" json:"last_seen"`
	ResolvedAt *time.Time     `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}

func (SystemAlert) TableName() string { return "system_alert" }

func (a *SystemAlert) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
