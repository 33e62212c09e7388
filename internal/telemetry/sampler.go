package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	tdomain "github.com/yungbote/neurobridge-hydration/internal/domain/telemetry"
	"github.com/yungbote/neurobridge-hydration/internal/observability"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

// GlobalDimension tags samples that are not broken down by any dimension.
const GlobalDimension = "global"

const sampleRetention = 7 * 24 * time.Hour

type Snapshot struct {
	QueueDepth float64 `json:"queueDepth"`
	Failed     float64 `json:"failed"`
	Timeouts   float64 `json:"timeouts"`
}

// Sampler writes one sample per key for each one-minute bucket. Sampling the
// same minute again replaces the stored value.
type Sampler struct {
	log     *logger.Logger
	repos   repos.Set
	metrics *observability.Metrics
}

func NewSampler(baseLog *logger.Logger, set repos.Set, metrics *observability.Metrics) *Sampler {
	return &Sampler{log: baseLog.With("component", "TelemetrySampler"), repos: set, metrics: metrics}
}

func (s *Sampler) Sample(ctx context.Context, now time.Time) (Snapshot, error) {
	dbc := dbctx.Context{Ctx: ctx}
	bucket := now.UTC().Truncate(time.Minute)
	since := now.UTC().Add(-time.Minute)

	active, err := s.repos.HydrationJob.CountByStatus(dbc, []types.JobStatus{jobs.StatusPending, jobs.StatusRunning})
	if err != nil {
		return Snapshot{}, fmt.Errorf("count active jobs: %w", err)
	}
	undispatched, err := s.repos.Outbox.CountUndispatched(dbc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count undispatched: %w", err)
	}
	failed, err := s.repos.ExecutionLog.CountSince(dbc, jobs.EventFailed, "", since)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count failures: %w", err)
	}
	timeouts, err := s.repos.ExecutionLog.CountSince(dbc, jobs.EventFailed, string(perrors.KindTimeout), since)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count timeouts: %w", err)
	}

	snap := Snapshot{QueueDepth: float64(active + undispatched), Failed: float64(failed), Timeouts: float64(timeouts)}
	for key, v := range map[string]float64{
		tdomain.KeyQueueDepth:  snap.QueueDepth,
		tdomain.KeyJobsFailed:  snap.Failed,
		tdomain.KeyJobsTimeout: snap.Timeouts,
	} {
		if err := s.repos.Sample.Upsert(dbc, &types.TelemetrySample{
			Key:           key,
			DimensionHash: GlobalDimension,
			Timestamp:     bucket,
			Value:         v,
		}); err != nil {
			return snap, fmt.Errorf("write %s sample: %w", key, err)
		}
	}
	s.metrics.SetQueueDepth("hydration", active+undispatched)

	if n, err := s.repos.Sample.DeleteBefore(dbc, now.Add(-sampleRetention)); err != nil {
		s.log.Warn("Pruning telemetry samples failed", "error", err)
	} else if n > 0 {
		s.log.Debug("Pruned telemetry samples", "deleted", n)
	}
	return snap, nil
}
