package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	"github.com/yungbote/neurobridge-hydration/internal/data/repos/testutil"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/queue"
	"github.com/yungbote/neurobridge-hydration/internal/observability"
	"github.com/yungbote/neurobridge-hydration/internal/platform/advisory"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
)

type failingProducer struct{ calls int }

func (p *failingProducer) Enqueue(context.Context, string, queue.Envelope) (string, error) {
	p.calls++
	return "", errors.New("redis unavailable")
}

func seedMessages(t *testing.T, outbox repos.OutboxRepo, n int) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		jobID := uuid.New()
		msg, err := NewMessage(jobs.DefaultQueue, jobs.KindNotes, jobID)
		require.NoError(t, err)
		require.NoError(t, outbox.Create(dbctx.Context{Ctx: context.Background()}, msg))
		ids = append(ids, jobID)
	}
	return ids
}

func TestDispatchBatchEnqueuesThenMarks(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	q := queue.NewLocalQueue(16, 3, log)
	jobIDs := seedMessages(t, set.Outbox, 3)

	d := NewDispatcher(log, set.Outbox, q, advisory.NewMemoryLocker(), observability.New(), Config{BatchSize: 10})
	res, err := d.DispatchBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, BatchResult{Selected: 3, Dispatched: 3}, res)
	require.Equal(t, 3, q.Pending(jobs.DefaultQueue))

	n, err := set.Outbox.CountUndispatched(dbctx.Context{Ctx: context.Background()})
	require.NoError(t, err)
	require.Zero(t, n)

	sentAt, err := set.Outbox.LatestSentAtForJob(dbctx.Context{Ctx: context.Background()}, jobIDs[0])
	require.NoError(t, err)
	require.NotNil(t, sentAt)

	res, err = d.DispatchBatch(context.Background())
	require.NoError(t, err)
	require.Zero(t, res.Selected)
}

func TestDispatchBatchKeepsFailedMessagesUnsent(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	seedMessages(t, set.Outbox, 2)

	p := &failingProducer{}
	d := NewDispatcher(log, set.Outbox, p, advisory.NewMemoryLocker(), nil, Config{})
	res, err := d.DispatchBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Failed)
	require.Zero(t, res.Dispatched)

	msgs, err := set.Outbox.ListUndispatched(dbctx.Context{Ctx: context.Background()}, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		require.Nil(t, m.SentAt)
		require.Equal(t, 1, m.Attempts)
		require.Contains(t, m.LastError, "redis unavailable")
	}

	// The next cycle retries the same rows.
	q := queue.NewLocalQueue(16, 3, log)
	d2 := NewDispatcher(log, set.Outbox, q, advisory.NewMemoryLocker(), nil, Config{})
	res, err = d2.DispatchBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Dispatched)
}

func TestUndecodableMessageYieldsToFreshOnes(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	dbc := dbctx.Context{Ctx: context.Background()}

	poison := &types.OutboxMessage{
		Queue:     jobs.DefaultQueue,
		JobID:     uuid.New(),
		Payload:   datatypes.JSON([]byte(`{"type":"notes.hydrate"}`)),
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, set.Outbox.Create(dbc, poison))
	jobIDs := seedMessages(t, set.Outbox, 1)

	q := queue.NewLocalQueue(16, 3, log)
	d := NewDispatcher(log, set.Outbox, q, advisory.NewMemoryLocker(), nil, Config{BatchSize: 1})

	res, err := d.DispatchBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, BatchResult{Selected: 1, Failed: 1}, res)

	res, err = d.DispatchBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, BatchResult{Selected: 1, Dispatched: 1}, res)
	sentAt, err := set.Outbox.LatestSentAtForJob(dbc, jobIDs[0])
	require.NoError(t, err)
	require.NotNil(t, sentAt)

	msgs, err := set.Outbox.ListUndispatched(dbc, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, poison.ID, msgs[0].ID)
	require.Equal(t, 1, msgs[0].Attempts)
	require.Contains(t, msgs[0].LastError, "missing jobId")
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	seedMessages(t, set.Outbox, 1)

	locker := advisory.NewMemoryLocker()
	ok, err := locker.TryAcquire(context.Background(), advisory.Key(advisory.OutboxDispatcher))
	require.NoError(t, err)
	require.True(t, ok)

	q := queue.NewLocalQueue(16, 3, log)
	d := NewDispatcher(log, set.Outbox, q, locker, nil, Config{})
	_, ran, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
	require.Zero(t, q.Pending(jobs.DefaultQueue))

	require.NoError(t, locker.Release(context.Background(), advisory.Key(advisory.OutboxDispatcher)))
	res, ran, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 1, res.Dispatched)
}

func TestStartStopLifecycle(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	d := NewDispatcher(log, set.Outbox, queue.NewLocalQueue(4, 3, log), advisory.NewMemoryLocker(), nil, Config{})
	require.NoError(t, d.Start(context.Background()))
	require.Error(t, d.Start(context.Background()))
	d.Stop()
	d.Stop()
}
