package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	"github.com/yungbote/neurobridge-hydration/internal/data/repos/testutil"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/audit"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/domain/regen"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
)

type fixture struct {
	db    *gorm.DB
	repos repos.Set
	audit AuditService
	jobs  JobService
	promo PromotionService
	retry RetryIntentService
	regen RegenerationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	auditSvc := NewAuditService(log, set.Audit)
	return &fixture{
		db:    db,
		repos: set,
		audit: auditSvc,
		jobs:  NewJobService(db, log, set, auditSvc, ""),
		promo: NewPromotionService(db, log, set, auditSvc),
		retry: NewRetryIntentService(db, log, set, auditSvc),
		regen: NewRegenerationService(db, log, set, auditSvc),
	}
}

func (f *fixture) dbc() dbctx.Context { return dbctx.Context{Ctx: context.Background()} }

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func notesInput(topic string) SubmitInput {
	return SubmitInput{
		Kind:    jobs.KindNotes,
		Target:  types.TargetEntity{Type: "topic", ID: topic},
		Payload: json.RawMessage(`{"topic_id":"` + topic + `","language":"en"}`),
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := ctxutil.WithTraceData(context.Background(), &ctxutil.TraceData{TraceID: "trace-1", RequestID: "req-1"})

	first, err := f.jobs.Submit(ctx, notesInput("T1"))
	require.NoError(t, err)
	require.False(t, first.Existing)
	require.Equal(t, jobs.StatusPending, first.Status)

	second, err := f.jobs.Submit(ctx, notesInput("T1"))
	require.NoError(t, err)
	require.True(t, second.Existing)
	require.False(t, second.Requeued)
	require.Equal(t, first.JobID, second.JobID)

	require.EqualValues(t, 1, f.count(t, &types.HydrationJob{}))
	require.EqualValues(t, 1, f.count(t, &types.ExecutionRequest{}))
	require.EqualValues(t, 1, f.count(t, &types.OutboxMessage{}))

	req, err := f.repos.ExecutionRequest.GetByID(f.dbc(), first.RequestID)
	require.NoError(t, err)
	require.Contains(t, string(req.Payload), "trace-1")
	require.Equal(t, DefaultMaxAttempts, req.MaxAttempts)

	timeline, err := f.jobs.Timeline(context.Background(), first.JobID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	require.Equal(t, jobs.EventSubmitted, timeline[0].Event)
}

func TestSubmitDistinguishesLanguageAndDifficulty(t *testing.T) {
	f := newFixture(t)
	a, err := f.jobs.Submit(context.Background(), notesInput("T1"))
	require.NoError(t, err)
	in := notesInput("T1")
	in.Payload = json.RawMessage(`{"topic_id":"T1","language":"hi","difficulty":"hard"}`)
	b, err := f.jobs.Submit(context.Background(), in)
	require.NoError(t, err)
	require.NotEqual(t, a.JobID, b.JobID)
	require.False(t, b.Existing)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]SubmitInput{
		"unknown kind":   {Kind: "poems", Target: types.TargetEntity{Type: "topic", ID: "T"}, Payload: json.RawMessage(`{}`)},
		"missing target": {Kind: jobs.KindNotes, Target: types.TargetEntity{Type: "topic"}, Payload: json.RawMessage(`{"topic_id":"T","language":"en"}`)},
		"bad payload":    {Kind: jobs.KindNotes, Target: types.TargetEntity{Type: "topic", ID: "T"}, Payload: json.RawMessage(`{"language":"en"}`)},
		"unknown field":  {Kind: jobs.KindNotes, Target: types.TargetEntity{Type: "topic", ID: "T"}, Payload: json.RawMessage(`{"topic_id":"T","language":"en","extra":1}`)},
		"bad attempts":   {Kind: jobs.KindNotes, Target: types.TargetEntity{Type: "topic", ID: "T"}, Payload: json.RawMessage(`{"topic_id":"T","language":"en"}`), MaxAttempts: 99},
	}
	for name, in := range cases {
		_, err := f.jobs.Submit(context.Background(), in)
		require.Error(t, err, name)
		require.Equal(t, perrors.KindValidation, perrors.KindOf(err), name)
	}
	require.EqualValues(t, 0, f.count(t, &types.HydrationJob{}))
}

func TestSubmitRearmsFailedJob(t *testing.T) {
	f := newFixture(t)
	seeded := testutil.SeedHydrationJob(t, f.db, "T9", jobs.StatusFailed, 1)

	res, err := f.jobs.Submit(context.Background(), notesInput("T9"))
	require.NoError(t, err)
	require.True(t, res.Existing)
	require.True(t, res.Requeued)
	require.Equal(t, seeded.ID, res.JobID)

	job, err := f.repos.HydrationJob.GetByID(f.dbc(), seeded.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.StatusPending, job.Status)
	has, err := f.repos.Outbox.HasUndispatchedForJob(f.dbc(), seeded.ID)
	require.NoError(t, err)
	require.True(t, has)

	latest, err := f.repos.ExecutionLog.Latest(f.dbc(), seeded.ID)
	require.NoError(t, err)
	require.Equal(t, jobs.EventRetryCreated, latest.Event)
	require.Equal(t, jobs.StatusFailed, latest.PrevStatus)
}

func TestSubmitRejectsExhaustedJob(t *testing.T) {
	f := newFixture(t)
	testutil.SeedHydrationJob(t, f.db, "T3", jobs.StatusFailed, 3)

	_, err := f.jobs.Submit(context.Background(), notesInput("T3"))
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	require.Equal(t, perrors.KindConflict, perrors.KindOf(err))
	require.EqualValues(t, 0, f.count(t, &types.OutboxMessage{}))
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	res, err := f.jobs.Submit(context.Background(), notesInput("T1"))
	require.NoError(t, err)

	job, err := f.jobs.Cancel(context.Background(), res.JobID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, jobs.StatusCancelled, job.Status)

	_, err = f.jobs.Cancel(context.Background(), res.JobID, "admin-1")
	require.ErrorIs(t, err, ErrJobNotCancellable)

	_, err = f.jobs.Cancel(context.Background(), uuid.New(), "admin-1")
	require.Equal(t, perrors.KindNotFound, perrors.KindOf(err))

	events, err := f.audit.List(context.Background(), repos.AuditFilter{Action: audit.ActionJobCancelled})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "admin-1", events[0].ActorID)

	timeline, err := f.jobs.Timeline(context.Background(), res.JobID)
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	require.Equal(t, jobs.EventCancelled, timeline[1].Event)
}

func TestApproveReplacesLiveOutput(t *testing.T) {
	f := newFixture(t)
	a := testutil.SeedCandidate(t, f.db, regen.ScopeLesson, "L1")
	b := testutil.SeedCandidate(t, f.db, regen.ScopeLesson, "L1")

	pa, err := f.promo.ApproveCandidate(context.Background(), a.ID, "rev-1", "looks good")
	require.NoError(t, err)
	require.Equal(t, a.OutputID, pa.OutputID)
	require.Nil(t, pa.PreviousOutputID)

	pb, err := f.promo.ApproveCandidate(context.Background(), b.ID, "rev-2", "")
	require.NoError(t, err)
	require.Equal(t, b.OutputID, pb.OutputID)
	require.NotNil(t, pb.PreviousOutputID)
	require.Equal(t, a.OutputID, *pb.PreviousOutputID)

	n, err := f.repos.PublishedOutput.CountByScope(f.dbc(), regen.ScopeLesson, "L1")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	live, err := f.promo.GetPublished(context.Background(), regen.ScopeLesson, "L1")
	require.NoError(t, err)
	require.Equal(t, b.OutputID, live.OutputID)

	approved, err := f.audit.List(context.Background(), repos.AuditFilter{Action: audit.ActionPromotionApproved})
	require.NoError(t, err)
	require.Len(t, approved, 2)
}

func TestApprovePreconditions(t *testing.T) {
	f := newFixture(t)
	c := testutil.SeedCandidate(t, f.db, regen.ScopeModule, "M1")
	r := testutil.SeedCandidate(t, f.db, regen.ScopeModule, "M2")

	_, err := f.promo.ApproveCandidate(context.Background(), uuid.New(), "rev", "")
	require.ErrorIs(t, err, ErrCandidateNotFound)
	require.Equal(t, perrors.KindNotFound, perrors.KindOf(err))

	_, err = f.promo.ApproveCandidate(context.Background(), c.ID, "rev", "")
	require.NoError(t, err)
	_, err = f.promo.ApproveCandidate(context.Background(), c.ID, "rev", "")
	require.ErrorIs(t, err, ErrCandidateAlreadyApproved)
	_, err = f.promo.RejectCandidate(context.Background(), c.ID, "rev", "")
	require.ErrorIs(t, err, ErrCandidateAlreadyApproved)

	rejected, err := f.promo.RejectCandidate(context.Background(), r.ID, "rev", "off-topic")
	require.NoError(t, err)
	require.Equal(t, regen.CandidateRejected, rejected.Status)
	_, err = f.promo.ApproveCandidate(context.Background(), r.ID, "rev", "")
	require.ErrorIs(t, err, ErrCandidateAlreadyRejected)

	n, err := f.repos.PublishedOutput.CountByScope(f.dbc(), regen.ScopeModule, "M2")
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = f.promo.ApproveCandidate(context.Background(), c.ID, "", "")
	require.Equal(t, perrors.KindValidation, perrors.KindOf(err))
}

func TestRevertPublishedRestoresPrevious(t *testing.T) {
	f := newFixture(t)
	a := testutil.SeedCandidate(t, f.db, regen.ScopeCourse, "C1")
	b := testutil.SeedCandidate(t, f.db, regen.ScopeCourse, "C1")

	_, err := f.promo.RevertPublished(context.Background(), regen.ScopeCourse, "C1", "rev", "")
	require.Equal(t, perrors.KindNotFound, perrors.KindOf(err))

	_, err = f.promo.ApproveCandidate(context.Background(), a.ID, "rev", "")
	require.NoError(t, err)
	_, err = f.promo.RevertPublished(context.Background(), regen.ScopeCourse, "C1", "rev", "")
	require.ErrorIs(t, err, ErrNothingToRevert)

	_, err = f.promo.ApproveCandidate(context.Background(), b.ID, "rev", "")
	require.NoError(t, err)
	restored, err := f.promo.RevertPublished(context.Background(), regen.ScopeCourse, "C1", "rev", "bad release")
	require.NoError(t, err)
	require.Equal(t, a.OutputID, restored.OutputID)
	require.Equal(t, b.OutputID, *restored.PreviousOutputID)

	n, err := f.repos.PublishedOutput.CountByScope(f.dbc(), regen.ScopeCourse, "C1")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	reverted, err := f.audit.List(context.Background(), repos.AuditFilter{Action: audit.ActionPromotionReverted})
	require.NoError(t, err)
	require.Len(t, reverted, 1)
}

func TestRetryIntentExecutesOnce(t *testing.T) {
	f := newFixture(t)
	src := testutil.SeedRegenerationJob(t, f.db, regen.JobFailed, "")

	intent, err := f.retry.CreateIntent(context.Background(), CreateIntentInput{
		SourceJobID: src.ID,
		ReasonCode:  "model_output_invalid",
		Reason:      "placeholder text in body",
		RequestedBy: "op-1",
	})
	require.NoError(t, err)
	require.Equal(t, regen.IntentPending, intent.Status)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []*types.RegenerationJob
		errs    []error
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := f.retry.CreateRetryJobFromIntent(context.Background(), intent.ID, "op-2")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			created = append(created, job)
		}()
	}
	wg.Wait()

	require.Len(t, created, 1)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrIntentAlreadyExecuted)
	require.Equal(t, perrors.KindAlreadyExecuted, perrors.KindOf(errs[0]))

	job := created[0]
	require.Equal(t, regen.JobPending, job.Status)
	require.JSONEq(t, string(src.Instruction), string(job.Instruction))
	require.Equal(t, src.TargetID, job.TargetID)
	require.NotNil(t, job.RetryIntentID)
	require.EqualValues(t, 2, f.count(t, &types.RegenerationJob{}))

	events, err := f.audit.List(context.Background(), repos.AuditFilter{Action: audit.ActionRetryCreated})
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestRetryIntentRequiresFailedSource(t *testing.T) {
	f := newFixture(t)
	src := testutil.SeedRegenerationJob(t, f.db, regen.JobCompleted, "")
	_, err := f.retry.CreateIntent(context.Background(), CreateIntentInput{
		SourceJobID: src.ID, ReasonCode: regen.ReasonOperatorRequest, RequestedBy: "op",
	})
	require.ErrorIs(t, err, ErrSourceJobNotFailed)

	_, err = f.retry.CreateIntent(context.Background(), CreateIntentInput{
		SourceJobID: src.ID, ReasonCode: "BECAUSE", RequestedBy: "op",
	})
	require.Equal(t, perrors.KindValidation, perrors.KindOf(err))

	_, err = f.retry.CreateRetryJobFromIntent(context.Background(), uuid.New(), "op")
	require.ErrorIs(t, err, ErrIntentNotFound)
}

func TestRequestFromSuggestion(t *testing.T) {
	f := newFixture(t)
	job, err := f.regen.RequestFromSuggestion(context.Background(), SuggestionInput{
		SuggestionID: "sug-1",
		Scope:        "lesson",
		TargetID:     "L7",
		Instruction: types.Instruction{
			Kind: "Notes", Language: "EN", Text: "add a worked example",
			Hierarchy: map[string]string{"topic_id": "T7"},
		},
	}, "editor-1")
	require.NoError(t, err)
	require.Equal(t, regen.JobPending, job.Status)
	require.Equal(t, regen.ScopeLesson, job.TargetType)

	var ins types.Instruction
	require.NoError(t, json.Unmarshal(job.Instruction, &ins))
	require.Equal(t, "notes", ins.Kind)
	require.Equal(t, "en", ins.Language)

	events, err := f.audit.List(context.Background(), repos.AuditFilter{Action: audit.ActionSuggestionCreated})
	require.NoError(t, err)
	require.Len(t, events, 1)

	_, err = f.regen.RequestFromSuggestion(context.Background(), SuggestionInput{
		Scope: "LESSON", TargetID: "L7", Instruction: types.Instruction{Kind: "notes", Language: "en"},
	}, "editor-1")
	require.Equal(t, perrors.KindValidation, perrors.KindOf(err))
}
