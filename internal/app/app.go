package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/db"
	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	"github.com/yungbote/neurobridge-hydration/internal/observability"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

const otelShutdownTimeout = 5 * time.Second

// App holds the shared wiring for every process role. Roles build only the
// components they run from it.
type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    repos.Set
	Clients  Clients
	Services Services
	Metrics  *observability.Metrics

	component    string
	pg           *db.PostgresService
	shutdownOTel func(context.Context) error
}

func New(ctx context.Context, component string) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log = log.With("role", component)

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfigFromEnv(component))

	var metrics *observability.Metrics
	if observability.Enabled() || cfg.MetricsAddr != "" {
		metrics = observability.Init(log)
	}

	pg, err := db.NewPostgresService(log, cfg.PostgresDSN)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := db.AutoMigrateAll(pg.DB()); err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	log.Info("Wiring repos...")
	reposet := repos.NewSet(theDB, log)

	clients, err := wireClients(ctx, log, cfg, theDB)
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}

	serviceset := wireServices(theDB, log, cfg, reposet)

	return &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Metrics:      metrics,
		component:    component,
		pg:           pg,
		shutdownOTel: shutdownOTel,
	}, nil
}

// ServeMetrics exposes /metrics on METRICS_ADDR until ctx is done.
func (a *App) ServeMetrics(ctx context.Context) {
	if a == nil {
		return
	}
	a.Metrics.Serve(ctx, a.Cfg.MetricsAddr, a.Log)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.Log.Warn("Postgres close failed", "error", err)
		}
	}
	if a.shutdownOTel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		if err := a.shutdownOTel(ctx); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
		cancel()
	}
	a.Log.Sync()
}
