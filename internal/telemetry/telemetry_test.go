package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	"github.com/yungbote/neurobridge-hydration/internal/data/repos/testutil"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	tdomain "github.com/yungbote/neurobridge-hydration/internal/domain/telemetry"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/advisory"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
)

var base = time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)

type env struct {
	db    *gorm.DB
	repos repos.Set
	eval  *Evaluator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	return &env{db: db, repos: set, eval: NewEvaluator(db, log, set, nil)}
}

func (e *env) sample(t *testing.T, key string, at time.Time, v float64) {
	t.Helper()
	require.NoError(t, e.repos.Sample.Upsert(dbctx.Context{Ctx: context.Background()}, &types.TelemetrySample{
		Key: key, DimensionHash: GlobalDimension, Timestamp: at.Truncate(time.Minute), Value: v,
	}))
}

func decision(t *testing.T, ds []Decision, typ types.AlertType) Decision {
	t.Helper()
	for _, d := range ds {
		if d.Type == typ {
			return d
		}
	}
	t.Fatalf("no decision for %s", typ)
	return Decision{}
}

func TestQueueBacklogNeedsThreeOfFive(t *testing.T) {
	e := newEnv(t)
	th := DefaultThresholds()
	for i, v := range []float64{20, 150, 30, 150, 40} {
		e.sample(t, tdomain.KeyQueueDepth, base.Add(time.Duration(i-4)*time.Minute), v)
	}
	ds, err := e.eval.EvaluateAlerts(context.Background(), base, th)
	require.NoError(t, err)
	require.Equal(t, tdomain.SeverityOK, decision(t, ds, tdomain.AlertQueueBacklog).Severity)

	e.sample(t, tdomain.KeyQueueDepth, base.Add(time.Minute), 150)
	ds, err = e.eval.EvaluateAlerts(context.Background(), base.Add(time.Minute), th)
	require.NoError(t, err)
	d := decision(t, ds, tdomain.AlertQueueBacklog)
	require.Equal(t, tdomain.SeverityWarning, d.Severity)
	require.Equal(t, "raised", d.Transition)
}

func TestAlertUpsertAndResolve(t *testing.T) {
	e := newEnv(t)
	th := DefaultThresholds()
	dbc := dbctx.Context{Ctx: context.Background()}
	for i := 0; i < 5; i++ {
		e.sample(t, tdomain.KeyQueueDepth, base.Add(time.Duration(i-4)*time.Minute), 500)
	}

	ds, err := e.eval.EvaluateAlerts(context.Background(), base, th)
	require.NoError(t, err)
	require.Equal(t, tdomain.SeverityCritical, decision(t, ds, tdomain.AlertQueueBacklog).Severity)

	ds, err = e.eval.EvaluateAlerts(context.Background(), base.Add(time.Second), th)
	require.NoError(t, err)
	require.Equal(t, "refreshed", decision(t, ds, tdomain.AlertQueueBacklog).Transition)

	n, err := e.repos.Alert.CountActive(dbc, tdomain.AlertQueueBacklog)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	for i := 1; i <= 5; i++ {
		e.sample(t, tdomain.KeyQueueDepth, base.Add(time.Duration(i)*time.Minute), 0)
	}
	ds, err = e.eval.EvaluateAlerts(context.Background(), base.Add(5*time.Minute), th)
	require.NoError(t, err)
	require.Equal(t, "resolved", decision(t, ds, tdomain.AlertQueueBacklog).Transition)

	n, err = e.repos.Alert.CountActive(dbc, tdomain.AlertQueueBacklog)
	require.NoError(t, err)
	require.Zero(t, n)

	all, err := e.eval.ListAlerts(context.Background(), false, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].ResolvedAt)
}

func TestFailureSpikeUsesBaseline(t *testing.T) {
	e := newEnv(t)
	th := DefaultThresholds()
	for i := 1; i <= 10; i++ {
		e.sample(t, tdomain.KeyJobsFailed, base.Add(-time.Duration(i)*time.Minute), 4)
	}
	// limit = max(5, 3*4) = 12
	e.sample(t, tdomain.KeyJobsFailed, base, 10)
	ds, err := e.eval.EvaluateAlerts(context.Background(), base, th)
	require.NoError(t, err)
	require.Equal(t, tdomain.SeverityOK, decision(t, ds, tdomain.AlertJobFailureSpike).Severity)

	e.sample(t, tdomain.KeyJobsFailed, base, 15)
	ds, err = e.eval.EvaluateAlerts(context.Background(), base, th)
	require.NoError(t, err)
	require.Equal(t, tdomain.SeverityWarning, decision(t, ds, tdomain.AlertJobFailureSpike).Severity)
}

func TestFailureSpikeHonoursAbsoluteFloor(t *testing.T) {
	e := newEnv(t)
	e.sample(t, tdomain.KeyJobsFailed, base, 4)
	ds, err := e.eval.EvaluateAlerts(context.Background(), base, DefaultThresholds())
	require.NoError(t, err)
	require.Equal(t, tdomain.SeverityOK, decision(t, ds, tdomain.AlertJobFailureSpike).Severity)
}

func TestTimeoutsAreAlwaysCritical(t *testing.T) {
	e := newEnv(t)
	e.sample(t, tdomain.KeyJobsTimeout, base.Add(-2*time.Minute), 1)
	ds, err := e.eval.EvaluateAlerts(context.Background(), base, DefaultThresholds())
	require.NoError(t, err)
	d := decision(t, ds, tdomain.AlertJobTimeouts)
	require.Equal(t, tdomain.SeverityCritical, d.Severity)
	require.Equal(t, "raised", d.Transition)
}

func TestSamplerCountsSignals(t *testing.T) {
	e := newEnv(t)
	sampler := NewSampler(testutil.Logger(t), e.repos, nil)
	testutil.SeedHydrationJob(t, e.db, "T1", jobs.StatusPending, 0)
	running := testutil.SeedHydrationJob(t, e.db, "T2", jobs.StatusRunning, 1)
	testutil.SeedHydrationJob(t, e.db, "T3", jobs.StatusCompleted, 1)

	dbc := dbctx.Context{Ctx: context.Background()}
	require.NoError(t, e.repos.ExecutionLog.Append(dbc, jobs.NewLogEntry(running.ID, jobs.EventFailed, jobs.StatusRunning, jobs.StatusRunning, string(perrors.KindTimeout), nil)))
	require.NoError(t, e.repos.ExecutionLog.Append(dbc, jobs.NewLogEntry(running.ID, jobs.EventFailed, jobs.StatusRunning, jobs.StatusRunning, string(perrors.KindInfra), nil)))

	snap, err := sampler.Sample(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.EqualValues(t, 2, snap.QueueDepth)
	require.EqualValues(t, 2, snap.Failed)
	require.EqualValues(t, 1, snap.Timeouts)

	latest, err := e.repos.Sample.ListLatest(dbc, tdomain.KeyQueueDepth, GlobalDimension, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.EqualValues(t, 2, latest[0].Value)
}

func TestSamplerKeepsOneSamplePerMinute(t *testing.T) {
	e := newEnv(t)
	sampler := NewSampler(testutil.Logger(t), e.repos, nil)
	bucket := time.Now().UTC().Truncate(time.Minute)
	testutil.SeedHydrationJob(t, e.db, "T1", jobs.StatusPending, 0)

	_, err := sampler.Sample(context.Background(), bucket)
	require.NoError(t, err)
	testutil.SeedHydrationJob(t, e.db, "T2", jobs.StatusPending, 0)
	_, err = sampler.Sample(context.Background(), bucket.Add(10*time.Second))
	require.NoError(t, err)

	dbc := dbctx.Context{Ctx: context.Background()}
	rows, err := e.repos.Sample.ListRange(dbc, tdomain.KeyQueueDepth, GlobalDimension, bucket, bucket.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.EqualValues(t, 2, rows[0].Value)

	failed, err := e.repos.Sample.ListRange(dbc, tdomain.KeyJobsFailed, GlobalDimension, bucket, bucket.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, failed, 1)
}

func TestParseThresholdsMergesDefaults(t *testing.T) {
	th, err := ParseThresholds([]byte("queue_backlog:\n  threshold: 250\ntimeouts:\n  window: 10m\n"))
	require.NoError(t, err)
	require.EqualValues(t, 250, th.QueueBacklog.Threshold)
	require.Equal(t, 5, th.QueueBacklog.Window)
	require.Equal(t, 10*time.Minute, th.Timeouts.Window)
	require.Equal(t, DefaultThresholds().FailureSpike, th.FailureSpike)

	_, err = ParseThresholds([]byte("queue_backlog:\n  min_breaches: 9\n"))
	require.Error(t, err)

	th, err = LoadThresholds("")
	require.NoError(t, err)
	require.Equal(t, DefaultThresholds(), th)
}

func TestSchedulerTickSkipsWhenLocked(t *testing.T) {
	e := newEnv(t)
	log := testutil.Logger(t)
	locker := advisory.NewMemoryLocker()
	s := NewScheduler(log, NewSampler(log, e.repos, nil), e.eval, locker, nil, DefaultThresholds(), "")

	ds, ran, err := s.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Len(t, ds, 3)

	ok, err := locker.TryAcquire(context.Background(), advisory.Key(advisory.AlertEvaluator))
	require.NoError(t, err)
	require.True(t, ok)
	_, ran, err = s.Tick(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
}

func TestSchedulerStartStop(t *testing.T) {
	e := newEnv(t)
	log := testutil.Logger(t)
	s := NewScheduler(log, NewSampler(log, e.repos, nil), e.eval, advisory.NewMemoryLocker(), nil, DefaultThresholds(), "@every 1h")
	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()

	bad := NewScheduler(log, NewSampler(log, e.repos, nil), e.eval, advisory.NewMemoryLocker(), nil, DefaultThresholds(), "not a schedule")
	require.Error(t, bad.Start(context.Background()))
}
