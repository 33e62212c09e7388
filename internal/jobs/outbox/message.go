package outbox

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/queue"
)

// NewMessage builds the outbox row announcing that jobID is ready to run.
// The caller inserts it in the same transaction as the job state it announces.
func NewMessage(queueName string, kind jobs.JobKind, jobID uuid.UUID) (*jobs.OutboxMessage, error) {
	if queueName == "" {
		queueName = jobs.DefaultQueue
	}
	if jobID == uuid.Nil {
		return nil, fmt.Errorf("outbox message: missing job id")
	}
	raw, err := queue.Envelope{
		Type:    kind.MessageType(),
		Payload: queue.EnvelopePayload{JobID: jobID},
	}.Encode()
	if err != nil {
		return nil, fmt.Errorf("outbox message: %w", err)
	}
	return &jobs.OutboxMessage{
		Queue:   queueName,
		JobID:   jobID,
		Payload: datatypes.JSON(raw),
	}, nil
}
