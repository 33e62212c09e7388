package app

import (
	"context"

	httpapi "github.com/yungbote/neurobridge-hydration/internal/http"
	httpH "github.com/yungbote/neurobridge-hydration/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-hydration/internal/http/middleware"
	"github.com/yungbote/neurobridge-hydration/internal/observability"
)

type Handlers struct {
	Health       *httpH.HealthHandler
	Job          *httpH.JobHandler
	Regeneration *httpH.RegenerationHandler
	Promotion    *httpH.PromotionHandler
	Ops          *httpH.OpsHandler
}

func (a *App) wireHandlers() Handlers {
	a.Log.Info("Wiring handlers...")
	ping := func(ctx context.Context) error {
		sqlDB, err := a.DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	return Handlers{
		Health:       httpH.NewHealthHandler(ping),
		Job:          httpH.NewJobHandler(a.Services.Jobs),
		Regeneration: httpH.NewRegenerationHandler(a.Services.Regeneration, a.Services.RetryIntent),
		Promotion:    httpH.NewPromotionHandler(a.Services.Promotion),
		Ops:          httpH.NewOpsHandler(a.AlertEvaluator(), a.Services.Audit),
	}
}

// Server builds the admin API.
func (a *App) Server() *httpapi.Server {
	handlers := a.wireHandlers()
	serviceName := ""
	if oc := observability.OtelConfigFromEnv(a.component); oc.Enabled {
		serviceName = oc.ServiceName
	}
	return httpapi.NewServer(httpapi.RouterConfig{
		Log:                 a.Log,
		Metrics:             a.Metrics,
		ServiceName:         serviceName,
		AllowedOrigins:      a.Cfg.AllowedOrigins,
		AuthMiddleware:      httpMW.NewAuthMiddleware(a.Log, a.Cfg.AdminJWTSecret),
		JobHandler:          handlers.Job,
		RegenerationHandler: handlers.Regeneration,
		PromotionHandler:    handlers.Promotion,
		OpsHandler:          handlers.Ops,
		HealthHandler:       handlers.Health,
	})
}
