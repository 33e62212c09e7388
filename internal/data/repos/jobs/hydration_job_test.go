package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos/testutil"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
)

func TestHydrationJobRepoConditionalClaim(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewHydrationJobRepo(db, testutil.Logger(t))
	job := testutil.SeedHydrationJob(t, db, "T1", jobs.StatusPending, 0)

	claim := func() bool {
		ok, err := repo.TransitionStatus(dbctx.Context{Ctx: ctx}, job.ID, []types.JobStatus{jobs.StatusPending}, map[string]interface{}{
			"status": jobs.StatusRunning,
		})
		if err != nil {
			t.Fatalf("TransitionStatus: %v", err)
		}
		return ok
	}
	if !claim() {
		t.Fatalf("first claim: expected success")
	}
	if claim() {
		t.Fatalf("second claim: expected no-op")
	}

	got, err := repo.GetByID(dbctx.Context{Ctx: ctx}, job.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v job=%v", err, got)
	}
	if got.Status != jobs.StatusRunning {
		t.Fatalf("status: want running, got %s", got.Status)
	}

	byKey, err := repo.GetByDedupeKey(dbctx.Context{Ctx: ctx}, jobs.DedupeKey(jobs.KindNotes, "T1", "en", ""))
	if err != nil || byKey == nil || byKey.ID != job.ID {
		t.Fatalf("GetByDedupeKey: err=%v job=%v", err, byKey)
	}
	missing, err := repo.GetByID(dbctx.Context{Ctx: ctx}, uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("GetByID(missing): err=%v job=%v", err, missing)
	}
}

func TestHydrationJobRepoDedupeKeyUnique(t *testing.T) {
	db := testutil.DB(t)
	repo := NewHydrationJobRepo(db, testutil.Logger(t))
	first := testutil.SeedHydrationJob(t, db, "T1", jobs.StatusPending, 0)

	dup := &types.HydrationJob{
		ExecutionRequestID: uuid.New(),
		JobKind:            jobs.KindNotes,
		DedupeKey:          first.DedupeKey,
		TargetType:         "topic",
		TargetID:           "T1",
		Language:           "en",
		Status:             jobs.StatusPending,
	}
	err := repo.Create(dbctx.Context{Ctx: context.Background()}, dup)
	if err == nil {
		t.Fatalf("Create: expected unique violation")
	}
	if !perrors.IsUniqueViolation(err) {
		t.Fatalf("Create: expected unique violation, got %v", err)
	}
}

func TestHydrationJobRepoStaleRunning(t *testing.T) {
	db := testutil.DB(t)
	ctx := dbctx.Context{Ctx: context.Background()}
	repo := NewHydrationJobRepo(db, testutil.Logger(t))

	fresh := testutil.SeedHydrationJob(t, db, "T1", jobs.StatusRunning, 1)
	stale := testutil.SeedHydrationJob(t, db, "T2", jobs.StatusRunning, 1)
	old := time.Now().UTC().Add(-2 * time.Hour)
	if err := db.Model(&types.HydrationJob{}).Where("id = ?", stale.ID).Update("heartbeat_at", old).Error; err != nil {
		t.Fatalf("age heartbeat: %v", err)
	}

	rows, err := repo.ListStaleRunning(ctx, time.Now().UTC().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("ListStaleRunning: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != stale.ID {
		t.Fatalf("ListStaleRunning: expected only stale job, got %d rows", len(rows))
	}

	if err := repo.Heartbeat(ctx, stale.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	rows, _ = repo.ListStaleRunning(ctx, time.Now().UTC().Add(-time.Hour), 10)
	if len(rows) != 0 {
		t.Fatalf("after heartbeat: expected none stale, got %d", len(rows))
	}

	n, err := repo.CountByStatus(ctx, []types.JobStatus{jobs.StatusRunning, jobs.StatusPending})
	if err != nil || n != 2 {
		t.Fatalf("CountByStatus: err=%v n=%d (fresh=%s)", err, n, fresh.ID)
	}
}

func TestOutboxRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	ctx := dbctx.Context{Ctx: context.Background()}
	repo := NewOutboxRepo(db, testutil.Logger(t))

	jobID := uuid.New()
	base := time.Now().UTC().Add(-time.Minute)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		msg := &types.OutboxMessage{
			Queue:     jobs.DefaultQueue,
			JobID:     jobID,
			Payload:   datatypes.JSON([]byte(`{"type":"NOTES","payload":{"jobId":"x"}}`)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(ctx, msg); err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	rows, err := repo.ListUndispatched(ctx, 2)
	if err != nil {
		t.Fatalf("ListUndispatched: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != ids[0] || rows[1].ID != ids[1] {
		t.Fatalf("ListUndispatched: expected FIFO by created_at")
	}

	if err := repo.RecordFailure(ctx, ids[0], "queue down"); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	ok, err := repo.MarkSent(ctx, ids[1], time.Now().UTC())
	if err != nil || !ok {
		t.Fatalf("MarkSent: ok=%v err=%v", ok, err)
	}
	ok, _ = repo.MarkSent(ctx, ids[1], time.Now().UTC())
	if ok {
		t.Fatalf("MarkSent twice: expected no-op")
	}

	var failed types.OutboxMessage
	if err := db.First(&failed, "id = ?", ids[0]).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if failed.SentAt != nil || failed.Attempts != 1 || failed.LastError != "queue down" {
		t.Fatalf("failed message: sent_at=%v attempts=%d last_error=%q", failed.SentAt, failed.Attempts, failed.LastError)
	}

	n, err := repo.CountUndispatched(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CountUndispatched: err=%v n=%d", err, n)
	}
	has, err := repo.HasUndispatchedForJob(ctx, jobID)
	if err != nil || !has {
		t.Fatalf("HasUndispatchedForJob: err=%v has=%v", err, has)
	}
	sentAt, err := repo.LatestSentAtForJob(ctx, jobID)
	if err != nil || sentAt == nil {
		t.Fatalf("LatestSentAtForJob: err=%v at=%v", err, sentAt)
	}
}

func TestExecutionLogRepoTimeline(t *testing.T) {
	db := testutil.DB(t)
	ctx := dbctx.Context{Ctx: context.Background()}
	repo := NewExecutionLogRepo(db, testutil.Logger(t))
	jobID := uuid.New()
	start := time.Now().UTC().Add(-time.Minute)

	entries := []*types.JobExecutionLog{
		{JobID: jobID, Event: jobs.EventStarted, PrevStatus: jobs.StatusPending, NewStatus: jobs.StatusRunning, CreatedAt: start},
		{JobID: jobID, Event: jobs.EventFailed, ErrorKind: "timeout", CreatedAt: start.Add(time.Second)},
		{JobID: jobID, Event: jobs.EventFailed, ErrorKind: "infra", CreatedAt: start.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	rows, err := repo.ListByJob(ctx, jobID)
	if err != nil || len(rows) != 3 {
		t.Fatalf("ListByJob: err=%v len=%d", err, len(rows))
	}
	if rows[0].Event != jobs.EventStarted {
		t.Fatalf("ListByJob: expected STARTED first, got %s", rows[0].Event)
	}
	latest, err := repo.Latest(ctx, jobID)
	if err != nil || latest == nil || latest.ErrorKind != "infra" {
		t.Fatalf("Latest: err=%v entry=%v", err, latest)
	}

	all, _ := repo.CountSince(ctx, jobs.EventFailed, "", start)
	timeouts, _ := repo.CountSince(ctx, jobs.EventFailed, "timeout", start)
	if all != 2 || timeouts != 1 {
		t.Fatalf("CountSince: all=%d timeouts=%d", all, timeouts)
	}
}
