package regen

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	"github.com/yungbote/neurobridge-hydration/internal/data/repos/testutil"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/audit"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	rdomain "github.com/yungbote/neurobridge-hydration/internal/domain/regen"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-hydration/internal/learning/generators"
	"github.com/yungbote/neurobridge-hydration/internal/learning/validation"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/advisory"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/services"
)

type failingGenerator struct{ err error }

func (g failingGenerator) Kind() jobs.JobKind { return jobs.KindNotes }

func (g failingGenerator) Generate(context.Context, runtime.Request) (json.RawMessage, error) {
	return nil, g.err
}

// blockingGenerator ignores ctx and returns only when release is closed.
type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingGenerator(t *testing.T) blockingGenerator {
	g := blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
	t.Cleanup(func() { close(g.release) })
	return g
}

func (g blockingGenerator) Kind() jobs.JobKind { return jobs.KindNotes }

func (g blockingGenerator) Generate(context.Context, runtime.Request) (json.RawMessage, error) {
	close(g.started)
	<-g.release
	return nil, errors.New("released")
}

type env struct {
	db    *gorm.DB
	repos repos.Set
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.DB(t)
	return &env{db: db, repos: repos.NewSet(db, testutil.Logger(t))}
}

func (e *env) executor(t *testing.T, reg *runtime.Registry) *Executor {
	t.Helper()
	log := testutil.Logger(t)
	return NewExecutor(e.db, log, e.repos, reg, validation.New(validation.Config{}), services.NewAuditService(log, e.repos.Audit), nil, time.Second)
}

func (e *env) job(t *testing.T, id *types.RegenerationJob) *types.RegenerationJob {
	t.Helper()
	j, err := e.repos.RegenerationJob.GetByID(dbctx.Context{Ctx: context.Background()}, id.ID)
	require.NoError(t, err)
	return j
}

func (e *env) auditCount(t *testing.T, action types.AuditAction, id string) int64 {
	t.Helper()
	n, err := e.repos.Audit.Count(dbctx.Context{Ctx: context.Background()}, repos.AuditFilter{Action: action, EntityID: id})
	require.NoError(t, err)
	return n
}

func TestExecuteCompletesWithCandidate(t *testing.T) {
	e := newEnv(t)
	job := testutil.SeedRegenerationJob(t, e.db, rdomain.JobPending, "")

	out, err := e.executor(t, generators.NewStaticRegistry()).Execute(context.Background(), job, "tester")
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, out)

	got := e.job(t, job)
	require.Equal(t, rdomain.JobCompleted, got.Status)
	require.NotNil(t, got.OutputRef)

	output, err := e.repos.RegenerationOutput.GetByID(dbctx.Context{Ctx: context.Background()}, *got.OutputRef)
	require.NoError(t, err)
	require.NotNil(t, output)

	cands, err := e.repos.PromotionCandidate.List(dbctx.Context{Ctx: context.Background()}, rdomain.CandidatePending, 10)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, output.ID, cands[0].OutputID)
	require.Equal(t, job.TargetType, cands[0].Scope)
	require.Equal(t, job.TargetID, cands[0].ScopeRefID)

	require.EqualValues(t, 1, e.auditCount(t, audit.ActionRegenStarted, job.ID.String()))
	require.EqualValues(t, 1, e.auditCount(t, audit.ActionRegenCompleted, job.ID.String()))
}

func TestExecuteRecordsFailure(t *testing.T) {
	e := newEnv(t)
	job := testutil.SeedRegenerationJob(t, e.db, rdomain.JobPending, "")
	reg := runtime.NewRegistry()
	require.NoError(t, reg.Register(failingGenerator{err: perrors.Infra("ai", errors.New("upstream 502"))}))

	out, err := e.executor(t, reg).Execute(context.Background(), job, "tester")
	require.Error(t, err)
	require.Equal(t, OutcomeFailed, out)

	got := e.job(t, job)
	require.Equal(t, rdomain.JobFailed, got.Status)
	var payload rdomain.ErrorPayload
	require.NoError(t, json.Unmarshal(got.ErrorJSON, &payload))
	require.Contains(t, payload.Message, "upstream 502")
	require.Equal(t, string(perrors.KindInfra), payload.Kind)
	require.EqualValues(t, 1, e.auditCount(t, audit.ActionRegenFailed, job.ID.String()))
}

func TestExecuteRejectsBadInstruction(t *testing.T) {
	e := newEnv(t)
	job := testutil.SeedRegenerationJob(t, e.db, rdomain.JobPending, `{"kind":"poems","language":"en","instruction":"rhyme it"}`)

	out, err := e.executor(t, generators.NewStaticRegistry()).Execute(context.Background(), job, "tester")
	require.Error(t, err)
	require.Equal(t, OutcomeFailed, out)
	require.Equal(t, perrors.KindValidation, perrors.KindOf(err))
}

func TestExecuteTimesOutGeneratorIgnoringContext(t *testing.T) {
	e := newEnv(t)
	job := testutil.SeedRegenerationJob(t, e.db, rdomain.JobPending, "")
	reg := runtime.NewRegistry()
	require.NoError(t, reg.Register(newBlockingGenerator(t)))
	log := testutil.Logger(t)
	exec := NewExecutor(e.db, log, e.repos, reg, validation.New(validation.Config{}), services.NewAuditService(log, e.repos.Audit), nil, 50*time.Millisecond)

	start := time.Now()
	out, err := exec.Execute(context.Background(), job, "tester")
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, OutcomeFailed, out)
	require.Equal(t, perrors.KindTimeout, perrors.KindOf(err))

	got := e.job(t, job)
	require.Equal(t, rdomain.JobFailed, got.Status)
	var payload rdomain.ErrorPayload
	require.NoError(t, json.Unmarshal(got.ErrorJSON, &payload))
	require.Equal(t, string(perrors.KindTimeout), payload.Kind)
}

func TestExecuteLeavesInterruptedJobRunning(t *testing.T) {
	e := newEnv(t)
	job := testutil.SeedRegenerationJob(t, e.db, rdomain.JobPending, "")
	gen := newBlockingGenerator(t)
	reg := runtime.NewRegistry()
	require.NoError(t, reg.Register(gen))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-gen.started
		cancel()
	}()

	out, err := e.executor(t, reg).Execute(ctx, job, "tester")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, OutcomeInterrupted, out)
	require.Equal(t, rdomain.JobRunning, e.job(t, job).Status)
	require.Zero(t, e.auditCount(t, audit.ActionRegenFailed, job.ID.String()))
}

func TestExecuteSkipsTerminalJob(t *testing.T) {
	e := newEnv(t)
	job := testutil.SeedRegenerationJob(t, e.db, rdomain.JobFailed, "")

	out, err := e.executor(t, generators.NewStaticRegistry()).Execute(context.Background(), job, "tester")
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, out)
	require.Equal(t, rdomain.JobFailed, e.job(t, job).Status)
}

func TestConcurrentExecutorsProduceOneOutput(t *testing.T) {
	e := newEnv(t)
	job := testutil.SeedRegenerationJob(t, e.db, rdomain.JobPending, "")
	exec := e.executor(t, generators.NewStaticRegistry())

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 4)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			copyJob := *job
			outcomes[i], _ = exec.Execute(context.Background(), &copyJob, "tester")
		}(i)
	}
	wg.Wait()

	completed := 0
	for _, o := range outcomes {
		if o == OutcomeCompleted {
			completed++
		}
	}
	require.Equal(t, 1, completed)

	var n int64
	require.NoError(t, e.db.Model(&types.RegenerationOutput{}).Count(&n).Error)
	require.EqualValues(t, 1, n)
}

func TestRunnerRunsBatch(t *testing.T) {
	e := newEnv(t)
	for i := 0; i < 3; i++ {
		testutil.SeedRegenerationJob(t, e.db, rdomain.JobPending, "")
	}
	runner := NewRunner(testutil.Logger(t), e.repos.RegenerationJob, e.executor(t, generators.NewStaticRegistry()), advisory.NewMemoryLocker(), nil, 10, 2)

	res, ran, err := runner.RunBatch(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 3, res.Selected)
	require.Equal(t, 3, res.Completed)

	n, err := e.repos.RegenerationJob.CountByStatus(dbctx.Context{Ctx: context.Background()}, rdomain.JobPending)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRunnerSkipsWhenLockHeld(t *testing.T) {
	e := newEnv(t)
	testutil.SeedRegenerationJob(t, e.db, rdomain.JobPending, "")
	locker := advisory.NewMemoryLocker()
	ok, err := locker.TryAcquire(context.Background(), advisory.Key(advisory.RegenRunner))
	require.NoError(t, err)
	require.True(t, ok)

	runner := NewRunner(testutil.Logger(t), e.repos.RegenerationJob, e.executor(t, generators.NewStaticRegistry()), locker, nil, 10, 2)
	res, ran, err := runner.RunBatch(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
	require.Zero(t, res.Selected)
}

func TestWorkerPollAndStop(t *testing.T) {
	e := newEnv(t)
	job := testutil.SeedRegenerationJob(t, e.db, rdomain.JobPending, "")
	w := NewWorker(testutil.Logger(t), e.repos.RegenerationJob, e.executor(t, generators.NewStaticRegistry()), 10*time.Millisecond, 5, "w1")

	require.NoError(t, w.Start(context.Background()))
	require.Error(t, w.Start(context.Background()))
	require.Eventually(t, func() bool {
		got, err := e.repos.RegenerationJob.GetByID(dbctx.Context{Ctx: context.Background()}, job.ID)
		return err == nil && got != nil && got.Status == rdomain.JobCompleted
	}, 2*time.Second, 10*time.Millisecond)
	w.Stop()
	w.Stop()
}
