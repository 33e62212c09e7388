package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/jobs/queue"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-hydration/internal/learning/generators"
	"github.com/yungbote/neurobridge-hydration/internal/learning/validation"
	"github.com/yungbote/neurobridge-hydration/internal/platform/advisory"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
	"github.com/yungbote/neurobridge-hydration/internal/platform/openai"
)

type Clients struct {
	Queue      queue.Queue
	Locker     advisory.Locker
	Generators *runtime.Registry
	Validator  *validation.Validator
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config, gdb *gorm.DB) (Clients, error) {
	log.Info("Wiring clients...")

	// Queue
	var q queue.Queue
	switch cfg.QueueBackend {
	case QueueBackendRedis:
		sq, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			Prefix:      cfg.RedisStreamPrefix,
			Group:       cfg.RedisGroup,
			Consumer:    cfg.WorkerOwner,
			MaxAttempts: cfg.QueueMaxAttempts,
		}, log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis streams queue: %w", err)
		}
		q = sq
	case QueueBackendLocal:
		log.Warn("Using the in-process queue; dispatcher and worker must share a process")
		q = queue.NewLocalQueue(0, cfg.QueueMaxAttempts, log)
	default:
		return Clients{}, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.QueueBackend)
	}

	// Advisory locks
	sqlDB, err := gdb.DB()
	if err != nil {
		_ = q.Close()
		return Clients{}, fmt.Errorf("get sql.DB: %w", err)
	}
	locker := advisory.NewPostgresLocker(sqlDB, log)

	// Generators
	registry := generators.NewStaticRegistry()
	if cfg.OpenAIAPIKey != "" {
		ai, err := openai.NewClient(openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			RPS:        cfg.OpenAIRPS,
			MaxRetries: 2,
		}, log)
		if err != nil {
			_ = q.Close()
			return Clients{}, fmt.Errorf("init openai client: %w", err)
		}
		registry, err = generators.NewLLMRegistry(ai, log)
		if err != nil {
			_ = q.Close()
			return Clients{}, fmt.Errorf("init llm generators: %w", err)
		}
	}

	return Clients{
		Queue:      q,
		Locker:     locker,
		Generators: registry,
		Validator:  validation.New(validation.DefaultConfig()),
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Queue != nil {
		_ = c.Queue.Close()
	}
}
