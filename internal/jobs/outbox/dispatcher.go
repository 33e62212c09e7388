package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/queue"
	"github.com/yungbote/neurobridge-hydration/internal/observability"
	"github.com/yungbote/neurobridge-hydration/internal/platform/advisory"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

type Config struct {
	Interval  time.Duration
	BatchSize int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	return c
}

type BatchResult struct {
	Selected   int `json:"selected"`
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
}

/*
Dispatcher relays undispatched outbox rows to the queue.

Per message the order is enqueue, then mark sent. A failed enqueue leaves
sent_at NULL and bumps attempts so the next cycle retries. A failed mark after
a successful enqueue means the message is pushed again next cycle; consumers
tolerate the duplicate.
*/
type Dispatcher struct {
	log      *logger.Logger
	outbox   repos.OutboxRepo
	producer queue.Producer
	locker   advisory.Locker
	metrics  *observability.Metrics
	cfg      Config
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDispatcher(
	baseLog *logger.Logger,
	outbox repos.OutboxRepo,
	producer queue.Producer,
	locker advisory.Locker,
	metrics *observability.Metrics,
	cfg Config,
) *Dispatcher {
	return &Dispatcher{
		log:      baseLog.With("component", "OutboxDispatcher"),
		outbox:   outbox,
		producer: producer,
		locker:   locker,
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the polling loop. It is an error to start a running dispatcher.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return fmt.Errorf("dispatcher already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.loop(loopCtx, d.done)
	d.log.Info("Outbox dispatcher started", "interval", d.cfg.Interval.String(), "batch_size", d.cfg.BatchSize)
	return nil
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	d.log.Info("Outbox dispatcher stopped")
}

func (d *Dispatcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, _, err := d.RunCycle(ctx); err != nil && ctx.Err() == nil {
			d.log.Warn("Outbox cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunCycle dispatches one batch under the dispatcher advisory lock.
// ran is false when another process holds the lock.
func (d *Dispatcher) RunCycle(ctx context.Context) (res BatchResult, ran bool, err error) {
	ran, err = advisory.WithLock(ctx, d.locker, advisory.Key(advisory.OutboxDispatcher), func(ctx context.Context) error {
		var batchErr error
		res, batchErr = d.DispatchBatch(ctx)
		return batchErr
	})
	if err == nil && !ran {
		d.metrics.IncLockSkipped(advisory.OutboxDispatcher)
	}
	return res, ran, err
}

// DispatchBatch relays up to BatchSize undispatched messages, least-attempted first.
func (d *Dispatcher) DispatchBatch(ctx context.Context) (res BatchResult, err error) {
	ctx, span := observability.StartSpan(ctx, "outbox.dispatch_batch")
	defer func() {
		span.SetAttributes(
			attribute.Int("outbox.selected", res.Selected),
			attribute.Int("outbox.dispatched", res.Dispatched),
			attribute.Int("outbox.failed", res.Failed),
		)
		observability.EndSpan(span, err)
	}()

	dbc := dbctx.Context{Ctx: ctx}
	msgs, err := d.outbox.ListUndispatched(dbc, d.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list undispatched: %w", err)
	}
	res.Selected = len(msgs)

	for _, m := range msgs {
		if ctx.Err() != nil {
			break
		}
		env, decErr := queue.DecodeEnvelope(m.Payload)
		if decErr != nil {
			res.Failed++
			d.log.Error("Undecodable outbox payload", "outbox_id", m.ID, "job_id", m.JobID, "error", decErr)
			if recErr := d.outbox.RecordFailure(dbc, m.ID, decErr.Error()); recErr != nil {
				d.log.Error("Recording decode failure failed", "outbox_id", m.ID, "error", recErr)
			}
			continue
		}
		streamID, pushErr := d.producer.Enqueue(ctx, m.Queue, env)
		if pushErr != nil {
			res.Failed++
			d.log.Warn("Enqueue failed; will retry next cycle", "outbox_id", m.ID, "job_id", m.JobID, "error", pushErr)
			if recErr := d.outbox.RecordFailure(dbc, m.ID, pushErr.Error()); recErr != nil {
				d.log.Error("Recording enqueue failure failed", "outbox_id", m.ID, "error", recErr)
			}
			continue
		}
		marked, markErr := d.outbox.MarkSent(dbc, m.ID, d.now())
		if markErr != nil {
			res.Failed++
			d.log.Error("Mark sent failed after enqueue; message will be re-sent", "outbox_id", m.ID, "job_id", m.JobID, "error", markErr)
			continue
		}
		if !marked {
			d.log.Debug("Outbox message already marked", "outbox_id", m.ID)
		}
		res.Dispatched++
		d.log.Debug("Dispatched outbox message", "outbox_id", m.ID, "job_id", m.JobID, "queue", m.Queue, "message_id", streamID)
	}

	backlog, countErr := d.outbox.CountUndispatched(dbc)
	if countErr != nil {
		backlog = -1
	}
	d.metrics.ObserveOutbox(res.Dispatched, res.Failed, backlog)
	return res, nil
}
