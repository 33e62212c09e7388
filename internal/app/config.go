package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-hydration/internal/data/db"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/platform/envutil"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

const (
	QueueBackendRedis = "redis"
	QueueBackendLocal = "local"
)

type Config struct {
	PostgresDSN string

	QueueBackend      string
	QueueName         string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisStreamPrefix string
	RedisGroup        string
	QueueMaxAttempts  int

	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	WorkerConcurrency int
	JobTimeout        time.Duration
	WorkerRethrow     bool
	WorkerOwner       string

	RegenPollInterval time.Duration
	RegenBatchSize    int
	RegenConcurrency  int

	ReconcileInterval time.Duration
	StaleRunningAfter time.Duration

	AlertsSchedule string
	AlertRulesFile string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAIRPS     float64

	AdminJWTSecret string
	AllowedOrigins []string
	MetricsAddr    string
	Port           string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		PostgresDSN: db.DSN(),

		QueueBackend:      strings.ToLower(envutil.String("QUEUE_BACKEND", QueueBackendRedis)),
		QueueName:         envutil.String("QUEUE_NAME", jobs.DefaultQueue),
		RedisAddr:         envutil.String("REDIS_ADDR", ""),
		RedisPassword:     envutil.String("REDIS_PASSWORD", ""),
		RedisDB:           envutil.Int("REDIS_DB", 0),
		RedisStreamPrefix: envutil.String("REDIS_STREAM_PREFIX", "hydration"),
		RedisGroup:        envutil.String("REDIS_CONSUMER_GROUP", "hydration_workers"),
		QueueMaxAttempts:  envutil.Int("QUEUE_MAX_ATTEMPTS", 3),

		OutboxPollInterval: envutil.Duration("OUTBOX_POLL_INTERVAL", time.Second),
		OutboxBatchSize:    envutil.Int("OUTBOX_BATCH_SIZE", 50),

		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 4),
		JobTimeout:        envutil.Duration("JOB_TIMEOUT", 5*time.Minute),
		WorkerRethrow:     envutil.Bool("WORKER_RETHROW", false),
		WorkerOwner:       envutil.String("WORKER_OWNER", defaultOwner()),

		RegenPollInterval: envutil.Duration("REGEN_POLL_INTERVAL", 2*time.Second),
		RegenBatchSize:    envutil.Int("REGEN_BATCH_SIZE", 10),
		RegenConcurrency:  envutil.Int("REGEN_CONCURRENCY", 2),

		ReconcileInterval: envutil.Duration("RECONCILE_INTERVAL", time.Minute),
		StaleRunningAfter: envutil.Duration("STALE_RUNNING_AFTER", 30*time.Minute),

		AlertsSchedule: envutil.String("ALERTS_SCHEDULE", "@every 1m"),
		AlertRulesFile: envutil.String("ALERT_RULES_FILE", ""),

		OpenAIAPIKey:  envutil.String("OPENAI_API_KEY", ""),
		OpenAIBaseURL: envutil.String("OPENAI_BASE_URL", ""),
		OpenAIModel:   envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIRPS:     envutil.Float("OPENAI_RPS", 2),

		AdminJWTSecret: envutil.String("ADMIN_JWT_SECRET", ""),
		AllowedOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		MetricsAddr:    envutil.String("METRICS_ADDR", ""),
		Port:           envutil.String("PORT", "8080"),
	}
	if cfg.QueueBackend == QueueBackendRedis && cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR is empty; falling back to the in-process queue")
		cfg.QueueBackend = QueueBackendLocal
	}
	if cfg.OpenAIAPIKey == "" {
		log.Warn("OPENAI_API_KEY is empty; using static generators")
	}
	log.Info("Config loaded",
		"queue_backend", cfg.QueueBackend,
		"queue", cfg.QueueName,
		"worker_concurrency", cfg.WorkerConcurrency,
		"job_timeout", cfg.JobTimeout.String(),
		"alerts_schedule", cfg.AlertsSchedule,
	)
	return cfg
}

func defaultOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
