package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yungbote/neurobridge-hydration/internal/observability"
	"github.com/yungbote/neurobridge-hydration/internal/platform/advisory"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

// Scheduler runs sample+evaluate on a cron schedule. Each tick runs under the
// alert_evaluator advisory lock, so extra replicas skip instead of double counting.
type Scheduler struct {
	log        *logger.Logger
	sampler    *Sampler
	evaluator  *Evaluator
	locker     advisory.Locker
	metrics    *observability.Metrics
	thresholds Thresholds
	spec       string
	cron       *cron.Cron
	now        func() time.Time
}

func NewScheduler(baseLog *logger.Logger, sampler *Sampler, evaluator *Evaluator, locker advisory.Locker, metrics *observability.Metrics, th Thresholds, spec string) *Scheduler {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Scheduler{
		log:        baseLog.With("component", "AlertScheduler"),
		sampler:    sampler,
		evaluator:  evaluator,
		locker:     locker,
		metrics:    metrics,
		thresholds: th,
		spec:       spec,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the job and starts the cron runner. ctx bounds every tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cron != nil {
		return fmt.Errorf("alert scheduler already started")
	}
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.spec, func() {
		if _, _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("Alert evaluation failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}
	s.cron = c
	c.Start()
	s.log.Info("Alert scheduler started", "schedule", s.spec)
	return nil
}

// Stop waits for a running tick to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.log.Info("Alert scheduler stopped")
}

// Tick samples and evaluates once. ran is false when another process holds the lock.
func (s *Scheduler) Tick(ctx context.Context) (decisions []Decision, ran bool, err error) {
	ran, err = advisory.WithLock(ctx, s.locker, advisory.Key(advisory.AlertEvaluator), func(ctx context.Context) error {
		now := s.now()
		if _, err := s.sampler.Sample(ctx, now); err != nil {
			return err
		}
		var evalErr error
		decisions, evalErr = s.evaluator.EvaluateAlerts(ctx, now, s.thresholds)
		return evalErr
	})
	if err == nil && !ran {
		s.metrics.IncLockSkipped(advisory.AlertEvaluator)
	}
	return decisions, ran, err
}
