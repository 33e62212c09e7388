package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Envelope is the message body: {type: <KIND>, payload: {jobId}}.
type Envelope struct {
	Type    string          `json:"type"`
	Payload EnvelopePayload `json:"payload"`
}

type EnvelopePayload struct {
	JobID uuid.UUID `json:"jobId"`
}

func (e Envelope) Encode() ([]byte, error) { return json.Marshal(e) }

func DecodeEnvelope(raw []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Payload.JobID == uuid.Nil {
		return Envelope{}, fmt.Errorf("decode envelope: missing jobId")
	}
	return e, nil
}

// Delivery is one receipt of a message. The same envelope may be delivered
// more than once.
type Delivery struct {
	ID      string
	Name    string
	Attempt int
	Data    Envelope
}

type Handler func(ctx context.Context, d Delivery) error

// Producer sends envelopes to a named queue.
type Producer interface {
	Enqueue(ctx context.Context, queue string, env Envelope) (string, error)
}

// Consumer runs handler over a named queue with fixed concurrency until ctx ends.
// A handler error asks the backend to redeliver, up to its attempt limit.
type Consumer interface {
	Consume(ctx context.Context, queue string, concurrency int, handler Handler) error
}

type Queue interface {
	Producer
	Consumer
	Close() error
}
