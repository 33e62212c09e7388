package jobs

import (
	"fmt"
	"strings"
)

type JobKind string

const (
	KindSyllabus  JobKind = "syllabus"
	KindNotes     JobKind = "notes"
	KindQuestions JobKind = "questions"
	KindTests     JobKind = "tests"
	KindAssemble  JobKind = "assemble"
)

var allKinds = []JobKind{KindSyllabus, KindNotes, KindQuestions, KindTests, KindAssemble}

func AllKinds() []JobKind {
	out := make([]JobKind, len(allKinds))
	copy(out, allKinds)
	return out
}

func ParseJobKind(raw string) (JobKind, error) {
	k := JobKind(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range allKinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown job kind %q", raw)
}

// MessageType is the queue envelope type for this kind.
func (k JobKind) MessageType() string { return strings.ToUpper(string(k)) }

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Rearmable statuses can be moved back to pending by a resubmission.
func (s Status) Rearmable() bool {
	return s == StatusFailed || s == StatusCancelled
}

type LogEvent string

const (
	EventSubmitted    LogEvent = "SUBMITTED"
	EventStarted      LogEvent = "STARTED"
	EventCompleted    LogEvent = "COMPLETED"
	EventFailed       LogEvent = "FAILED"
	EventRetryCreated LogEvent = "RETRY_CREATED"
	EventRequeued     LogEvent = "REQUEUED"
	EventCancelled    LogEvent = "CANCELLED"
	EventMarkedFailed LogEvent = "MARKED_FAILED"
)

// DefaultQueue is the queue hydration messages are dispatched to.
const DefaultQueue = "content-hydration"
