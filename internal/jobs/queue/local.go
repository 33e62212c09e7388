package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

// LocalQueue is an in-process queue used when Redis is not configured and in tests.
type LocalQueue struct {
	bufferSize  int
	maxAttempts int
	retryDelay  time.Duration
	log         *logger.Logger

	mu     sync.Mutex
	queues map[string]chan Delivery
	dlq    []Delivery
}

func NewLocalQueue(bufferSize, maxAttempts int, baseLog *logger.Logger) *LocalQueue {
	if bufferSize <= 0 {
		bufferSize = 512
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &LocalQueue{
		bufferSize:  bufferSize,
		maxAttempts: maxAttempts,
		retryDelay:  500 * time.Millisecond,
		log:         baseLog.With("component", "LocalQueue"),
		queues:      make(map[string]chan Delivery),
	}
}

func (q *LocalQueue) channel(name string) chan Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan Delivery, q.bufferSize)
		q.queues[name] = ch
	}
	return ch
}

func (q *LocalQueue) Enqueue(ctx context.Context, queue string, env Envelope) (string, error) {
	d := Delivery{ID: uuid.NewString(), Name: env.Type, Data: env}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case q.channel(queue) <- d:
		return d.ID, nil
	}
}

func (q *LocalQueue) Consume(ctx context.Context, queue string, concurrency int, handler Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}
	ch := q.channel(queue)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case d := <-ch:
					q.handle(gctx, ch, d, handler)
				}
			}
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (q *LocalQueue) handle(ctx context.Context, ch chan Delivery, d Delivery, handler Handler) {
	d.Attempt++
	err := handler(ctx, d)
	if err == nil {
		return
	}
	if d.Attempt >= q.maxAttempts {
		q.mu.Lock()
		q.dlq = append(q.dlq, d)
		q.mu.Unlock()
		q.log.Warn("local queue moved message to DLQ", "delivery_id", d.ID, "job_id", d.Data.Payload.JobID, "error", err)
		return
	}
	delay := time.Duration(d.Attempt) * q.retryDelay
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			select {
			case ch <- d:
			case <-ctx.Done():
			}
		}
	}()
}

// Pending reports the number of buffered, undelivered messages on queue.
func (q *LocalQueue) Pending(queue string) int {
	return len(q.channel(queue))
}

func (q *LocalQueue) DLQSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.dlq)
}

func (q *LocalQueue) Close() error { return nil }
