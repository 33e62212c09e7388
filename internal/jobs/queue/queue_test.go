package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	id := uuid.New()
	raw, err := Envelope{Type: "NOTES", Payload: EnvelopePayload{JobID: id}}.Encode()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"NOTES","payload":{"jobId":"`+id.String()+`"}}`, string(raw))

	env, err := DecodeEnvelope(raw)
	require.NoError(t, err)
	require.Equal(t, id, env.Payload.JobID)

	_, err = DecodeEnvelope([]byte(`{"type":"NOTES","payload":{}}`))
	require.Error(t, err)
}

func TestLocalQueueDeliversAndRetries(t *testing.T) {
	q := NewLocalQueue(8, 3, logger.Nop())
	q.retryDelay = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var calls atomic.Int32
	done := make(chan Delivery, 1)
	go func() {
		_ = q.Consume(ctx, "q", 2, func(_ context.Context, d Delivery) error {
			if calls.Add(1) == 1 {
				return errors.New("transient")
			}
			done <- d
			return nil
		})
	}()

	id := uuid.New()
	_, err := q.Enqueue(ctx, "q", Envelope{Type: "NOTES", Payload: EnvelopePayload{JobID: id}})
	require.NoError(t, err)

	select {
	case d := <-done:
		require.Equal(t, id, d.Data.Payload.JobID)
		require.Equal(t, 2, d.Attempt)
		require.Equal(t, "NOTES", d.Name)
	case <-ctx.Done():
		t.Fatal("message was not redelivered")
	}
	require.Equal(t, 0, q.DLQSize())
}

func TestLocalQueueDeadLetters(t *testing.T) {
	q := NewLocalQueue(8, 2, logger.Nop())
	q.retryDelay = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		_ = q.Consume(ctx, "q", 1, func(context.Context, Delivery) error { return errors.New("always") })
	}()
	_, err := q.Enqueue(ctx, "q", Envelope{Type: "TESTS", Payload: EnvelopePayload{JobID: uuid.New()}})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return q.DLQSize() == 1 }, 3*time.Second, 5*time.Millisecond)
}

func TestParseStreamMessage(t *testing.T) {
	id := uuid.New()
	raw, _ := Envelope{Type: "QUESTIONS", Payload: EnvelopePayload{JobID: id}}.Encode()
	d, err := parseStreamMessage(redis.XMessage{ID: "1-0", Values: map[string]interface{}{
		"name":    "QUESTIONS",
		"data":    string(raw),
		"attempt": "1",
	}})
	require.NoError(t, err)
	require.Equal(t, 2, d.Attempt)
	require.Equal(t, id, d.Data.Payload.JobID)

	_, err = parseStreamMessage(redis.XMessage{ID: "2-0", Values: map[string]interface{}{"attempt": "0"}})
	require.Error(t, err)
}
