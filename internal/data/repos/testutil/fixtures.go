package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/domain/regen"
)

// SeedHydrationJob inserts a notes job for topicID with its parent request.
func SeedHydrationJob(tb testing.TB, tx *gorm.DB, topicID string, status types.JobStatus, attempts int) *types.HydrationJob {
	tb.Helper()
	req := &types.ExecutionRequest{
		ID:          uuid.New(),
		JobKind:     jobs.KindNotes,
		TargetType:  "topic",
		TargetID:    topicID,
		Payload:     datatypes.JSON([]byte(`{"topic_id":"` + topicID + `","language":"en"}`)),
		Status:      status,
		Attempts:    attempts,
		MaxAttempts: 3,
	}
	if err := tx.Create(req).Error; err != nil {
		tb.Fatalf("seed execution request: %v", err)
	}
	job := &types.HydrationJob{
		ID:                 uuid.New(),
		ExecutionRequestID: req.ID,
		JobKind:            jobs.KindNotes,
		DedupeKey:          jobs.DedupeKey(jobs.KindNotes, topicID, "en", ""),
		TargetType:         "topic",
		TargetID:           topicID,
		Language:           "en",
		TopicID:            topicID,
		Status:             status,
	}
	if status == jobs.StatusRunning {
		now := time.Now().UTC()
		job.LockedAt = &now
		job.HeartbeatAt = &now
	}
	if err := tx.Create(job).Error; err != nil {
		tb.Fatalf("seed hydration job: %v", err)
	}
	return job
}

func SeedRegenerationJob(tb testing.TB, tx *gorm.DB, status types.RegenStatus, instruction string) *types.RegenerationJob {
	tb.Helper()
	if instruction == "" {
		instruction = `{"kind":"notes","language":"en","instruction":"tighten the summary","hierarchy":{"topic_id":"T1"}}`
	}
	job := &types.RegenerationJob{
		ID:          uuid.New(),
		TargetType:  regen.ScopeLesson,
		TargetID:    "lesson-" + uuid.NewString()[:8],
		Instruction: datatypes.JSON([]byte(instruction)),
		Status:      status,
	}
	if err := tx.Create(job).Error; err != nil {
		tb.Fatalf("seed regeneration job: %v", err)
	}
	return job
}

// SeedCandidate inserts an output and a PENDING candidate for (scope, ref).
func SeedCandidate(tb testing.TB, tx *gorm.DB, scope types.Scope, ref string) *types.PromotionCandidate {
	tb.Helper()
	job := SeedRegenerationJob(tb, tx, regen.JobCompleted, "")
	out := &types.RegenerationOutput{
		ID:                uuid.New(),
		RegenerationJobID: job.ID,
		TargetType:        scope,
		TargetID:          ref,
		Content:           datatypes.JSON([]byte(`{"title":"v"}`)),
	}
	if err := tx.Create(out).Error; err != nil {
		tb.Fatalf("seed regeneration output: %v", err)
	}
	c := &types.PromotionCandidate{
		ID:         uuid.New(),
		OutputID:   out.ID,
		Scope:      scope,
		ScopeRefID: ref,
		Status:     regen.CandidatePending,
	}
	if err := tx.Create(c).Error; err != nil {
		tb.Fatalf("seed candidate: %v", err)
	}
	return c
}
