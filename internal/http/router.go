package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/neurobridge-hydration/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-hydration/internal/http/middleware"
	"github.com/yungbote/neurobridge-hydration/internal/observability"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AllowedOrigins []string

	AuthMiddleware *httpMW.AuthMiddleware

	JobHandler          *httpH.JobHandler
	RegenerationHandler *httpH.RegenerationHandler
	PromotionHandler    *httpH.PromotionHandler
	OpsHandler          *httpH.OpsHandler
	HealthHandler       *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")

	// Reads are open; every mutation needs an actor for the audit trail.
	protected := api.Group("/")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}

	// Jobs
	if cfg.JobHandler != nil {
		api.GET("/jobs/:id", cfg.JobHandler.GetJob)
		api.GET("/jobs/:id/timeline", cfg.JobHandler.GetTimeline)
		protected.POST("/jobs", cfg.JobHandler.SubmitJob)
		protected.POST("/jobs/:id/cancel", cfg.JobHandler.CancelJob)
	}

	// Regeneration
	if cfg.RegenerationHandler != nil {
		protected.POST("/regeneration/suggestions", cfg.RegenerationHandler.CreateFromSuggestion)
		protected.POST("/regeneration/jobs/:id/retry-intents", cfg.RegenerationHandler.CreateRetryIntent)
		protected.POST("/retry-intents/:id/execute", cfg.RegenerationHandler.ExecuteRetryIntent)
	}

	// Promotion
	if cfg.PromotionHandler != nil {
		api.GET("/candidates", cfg.PromotionHandler.ListCandidates)
		api.GET("/published/:scope/:ref", cfg.PromotionHandler.GetPublished)
		protected.POST("/candidates/:id/approve", cfg.PromotionHandler.Approve)
		protected.POST("/candidates/:id/reject", cfg.PromotionHandler.Reject)
		protected.POST("/published/:scope/:ref/revert", cfg.PromotionHandler.Revert)
	}

	// Ops
	if cfg.OpsHandler != nil {
		api.GET("/alerts", cfg.OpsHandler.ListAlerts)
		api.GET("/audit", cfg.OpsHandler.ListAudit)
	}

	return r
}
