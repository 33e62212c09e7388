package domain

import (
	"github.com/yungbote/neurobridge-hydration/internal/domain/audit"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/domain/regen"
	"github.com/yungbote/neurobridge-hydration/internal/domain/telemetry"
)

type (
	JobKind          = jobs.JobKind
	JobStatus        = jobs.Status
	LogEvent         = jobs.LogEvent
	ExecutionRequest = jobs.ExecutionRequest
	HydrationJob     = jobs.HydrationJob
	GeneratedContent = jobs.GeneratedContent
	OutboxMessage    = jobs.OutboxMessage
	JobExecutionLog  = jobs.JobExecutionLog
	TargetEntity     = jobs.TargetEntity
	Hierarchy        = jobs.Hierarchy
	JobPayload       = jobs.Payload

	RegenerationJob    = regen.RegenerationJob
	RegenerationOutput = regen.RegenerationOutput
	RegenStatus        = regen.JobStatus
	Scope              = regen.Scope
	Instruction        = regen.Instruction
	PromotionCandidate = regen.PromotionCandidate
	CandidateStatus    = regen.CandidateStatus
	PublishedOutput    = regen.PublishedOutput
	RetryIntent        = regen.RetryIntent
	ReasonCode         = regen.ReasonCode
	IntentStatus       = regen.IntentStatus

	TelemetrySample = telemetry.TelemetrySample
	SystemAlert     = telemetry.SystemAlert
	AlertType       = telemetry.AlertType
	Severity        = telemetry.Severity

	AuditEvent  = audit.AuditEvent
	AuditAction = audit.Action
)

const (
	JobPending   = jobs.StatusPending
	JobRunning   = jobs.StatusRunning
	JobCompleted = jobs.StatusCompleted
	JobFailed    = jobs.StatusFailed
	JobCancelled = jobs.StatusCancelled

	RegenPending   = regen.JobPending
	RegenRunning   = regen.JobRunning
	RegenCompleted = regen.JobCompleted
	RegenFailed    = regen.JobFailed
)

// Models lists every table owned by the pipeline, in migration order.
func Models() []any {
	return []any{
		&audit.AuditEvent{},
		&jobs.ExecutionRequest{},
		&jobs.HydrationJob{},
		&jobs.OutboxMessage{},
		&jobs.JobExecutionLog{},
		&jobs.GeneratedContent{},
		&regen.RegenerationJob{},
		&regen.RegenerationOutput{},
		&regen.PromotionCandidate{},
		&regen.PublishedOutput{},
		&regen.RetryIntent{},
		&telemetry.TelemetrySample{},
		&telemetry.SystemAlert{},
	}
}
