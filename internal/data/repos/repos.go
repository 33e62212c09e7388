package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos/audit"
	"github.com/yungbote/neurobridge-hydration/internal/data/repos/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/data/repos/regen"
	"github.com/yungbote/neurobridge-hydration/internal/data/repos/telemetry"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

type ExecutionRequestRepo = jobs.ExecutionRequestRepo
type HydrationJobRepo = jobs.HydrationJobRepo
type OutboxRepo = jobs.OutboxRepo
type ExecutionLogRepo = jobs.ExecutionLogRepo
type GeneratedContentRepo = jobs.GeneratedContentRepo

type RegenerationJobRepo = regen.RegenerationJobRepo
type RegenerationOutputRepo = regen.RegenerationOutputRepo
type PromotionCandidateRepo = regen.PromotionCandidateRepo
type PublishedOutputRepo = regen.PublishedOutputRepo
type RetryIntentRepo = regen.RetryIntentRepo

type SampleRepo = telemetry.SampleRepo
type AlertRepo = telemetry.AlertRepo

type AuditRepo = audit.AuditRepo
type AuditFilter = audit.Filter

// Set bundles every repository over one database handle.
type Set struct {
	ExecutionRequest ExecutionRequestRepo
	HydrationJob     HydrationJobRepo
	Outbox           OutboxRepo
	ExecutionLog     ExecutionLogRepo
	GeneratedContent GeneratedContentRepo

	RegenerationJob    RegenerationJobRepo
	RegenerationOutput RegenerationOutputRepo
	PromotionCandidate PromotionCandidateRepo
	PublishedOutput    PublishedOutputRepo
	RetryIntent        RetryIntentRepo

	Sample SampleRepo
	Alert  AlertRepo

	Audit AuditRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		ExecutionRequest: jobs.NewExecutionRequestRepo(db, log),
		HydrationJob:     jobs.NewHydrationJobRepo(db, log),
		Outbox:           jobs.NewOutboxRepo(db, log),
		ExecutionLog:     jobs.NewExecutionLogRepo(db, log),
		GeneratedContent: jobs.NewGeneratedContentRepo(db, log),

		RegenerationJob:    regen.NewRegenerationJobRepo(db, log),
		RegenerationOutput: regen.NewRegenerationOutputRepo(db, log),
		PromotionCandidate: regen.NewPromotionCandidateRepo(db, log),
		PublishedOutput:    regen.NewPublishedOutputRepo(db, log),
		RetryIntent:        regen.NewRetryIntentRepo(db, log),

		Sample: telemetry.NewSampleRepo(db, log),
		Alert:  telemetry.NewAlertRepo(db, log),

		Audit: audit.NewAuditRepo(db, log),
	}
}
