package app

import (
	"fmt"

	"github.com/yungbote/neurobridge-hydration/internal/jobs/outbox"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/reconciler"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/regen"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/worker"
	"github.com/yungbote/neurobridge-hydration/internal/telemetry"
)

func (a *App) Dispatcher() *outbox.Dispatcher {
	return outbox.NewDispatcher(a.Log, a.Repos.Outbox, a.Clients.Queue, a.Clients.Locker, a.Metrics, outbox.Config{
		Interval:  a.Cfg.OutboxPollInterval,
		BatchSize: a.Cfg.OutboxBatchSize,
	})
}

func (a *App) Worker() *worker.Worker {
	return worker.NewWorker(a.DB, a.Log, a.Repos, a.Clients.Generators, a.Clients.Validator, a.Services.Audit, a.Clients.Queue, a.Metrics, worker.Config{
		Queue:       a.Cfg.QueueName,
		Concurrency: a.Cfg.WorkerConcurrency,
		JobTimeout:  a.Cfg.JobTimeout,
		Rethrow:     a.Cfg.WorkerRethrow,
		Owner:       a.Cfg.WorkerOwner,
	})
}

func (a *App) Reconciler() *reconciler.Reconciler {
	return reconciler.NewReconciler(a.DB, a.Log, a.Repos, a.Clients.Locker, a.Metrics, reconciler.Config{
		Interval:   a.Cfg.ReconcileInterval,
		StaleAfter: a.Cfg.StaleRunningAfter,
		Queue:      a.Cfg.QueueName,
	})
}

func (a *App) regenExecutor() *regen.Executor {
	return regen.NewExecutor(a.DB, a.Log, a.Repos, a.Clients.Generators, a.Clients.Validator, a.Services.Audit, a.Metrics, a.Cfg.JobTimeout)
}

func (a *App) RegenRunner() *regen.Runner {
	return regen.NewRunner(a.Log, a.Repos.RegenerationJob, a.regenExecutor(), a.Clients.Locker, a.Metrics, a.Cfg.RegenBatchSize, a.Cfg.RegenConcurrency)
}

func (a *App) RegenWorker() *regen.Worker {
	return regen.NewWorker(a.Log, a.Repos.RegenerationJob, a.regenExecutor(), a.Cfg.RegenPollInterval, a.Cfg.RegenBatchSize, a.Cfg.WorkerOwner)
}

func (a *App) AlertEvaluator() *telemetry.Evaluator {
	return telemetry.NewEvaluator(a.DB, a.Log, a.Repos, a.Metrics)
}

func (a *App) AlertScheduler() (*telemetry.Scheduler, error) {
	th, err := telemetry.LoadThresholds(a.Cfg.AlertRulesFile)
	if err != nil {
		return nil, fmt.Errorf("load alert rules: %w", err)
	}
	sampler := telemetry.NewSampler(a.Log, a.Repos, a.Metrics)
	return telemetry.NewScheduler(a.Log, sampler, a.AlertEvaluator(), a.Clients.Locker, a.Metrics, th, a.Cfg.AlertsSchedule), nil
}
