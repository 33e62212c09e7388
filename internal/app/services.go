package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
	"github.com/yungbote/neurobridge-hydration/internal/services"
)

type Services struct {
	Audit        services.AuditService
	Jobs         services.JobService
	Regeneration services.RegenerationService
	RetryIntent  services.RetryIntentService
	Promotion    services.PromotionService
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, set repos.Set) Services {
	log.Info("Wiring services...")
	auditSvc := services.NewAuditService(log, set.Audit)
	return Services{
		Audit:        auditSvc,
		Jobs:         services.NewJobService(db, log, set, auditSvc, cfg.QueueName),
		Regeneration: services.NewRegenerationService(db, log, set, auditSvc),
		RetryIntent:  services.NewRetryIntentService(db, log, set, auditSvc),
		Promotion:    services.NewPromotionService(db, log, set, auditSvc),
	}
}
