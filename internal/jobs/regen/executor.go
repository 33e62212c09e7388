// Package regen runs regeneration jobs: claim, generate, validate and record.
package regen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-hydration/internal/data/repos"
	types "github.com/yungbote/neurobridge-hydration/internal/domain"
	"github.com/yungbote/neurobridge-hydration/internal/domain/audit"
	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	rdomain "github.com/yungbote/neurobridge-hydration/internal/domain/regen"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-hydration/internal/learning/validation"
	"github.com/yungbote/neurobridge-hydration/internal/observability"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
	"github.com/yungbote/neurobridge-hydration/internal/services"
)

type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeStale means the claim was lost before the result could be written.
	OutcomeStale Outcome = "stale"
	// OutcomeInterrupted means ctx ended mid-run; the job stays RUNNING until
	// the reconciler releases it.
	OutcomeInterrupted Outcome = "interrupted"
)

var errStaleClaim = errors.New("regeneration claim no longer held")

/*
Executor is the claim/execute/record core shared by the batch runner and the
polling worker.

The claim is a conditional PENDING -> RUNNING update. A successful run writes
the output, the RUNNING -> COMPLETED transition and a PENDING promotion
candidate in one transaction. A failed run moves the job to FAILED with a
structured error document. Terminal jobs are never touched again.
*/
type Executor struct {
	db        *gorm.DB
	log       *logger.Logger
	repos     repos.Set
	registry  *runtime.Registry
	validator *validation.Validator
	audit     services.AuditService
	metrics   *observability.Metrics
	timeout   time.Duration
	validate  *validator.Validate
	now       func() time.Time
}

func NewExecutor(
	db *gorm.DB,
	baseLog *logger.Logger,
	set repos.Set,
	registry *runtime.Registry,
	v *validation.Validator,
	auditSvc services.AuditService,
	metrics *observability.Metrics,
	timeout time.Duration,
) *Executor {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Executor{
		db:        db,
		log:       baseLog.With("component", "RegenExecutor"),
		repos:     set,
		registry:  registry,
		validator: v,
		audit:     auditSvc,
		metrics:   metrics,
		timeout:   timeout,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs job if this caller wins the claim. The returned error is the
// run failure, already recorded on the job.
func (e *Executor) Execute(ctx context.Context, job *types.RegenerationJob, actorID string) (out Outcome, err error) {
	ctx, span := observability.StartSpan(ctx, "regen.execute",
		attribute.String("regen.job_id", job.ID.String()),
		attribute.String("regen.scope", string(job.TargetType)),
	)
	defer func() {
		span.SetAttributes(attribute.String("regen.outcome", string(out)))
		observability.EndSpan(span, err)
		if out != OutcomeSkipped {
			e.metrics.IncRegen(string(out))
		}
	}()

	claimed, err := e.claim(ctx, job, actorID)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("claim regeneration job: %w", err)
	}
	if !claimed {
		e.log.Debug("Regeneration job claimed elsewhere", "regen_job_id", job.ID)
		return OutcomeSkipped, nil
	}

	content, stack, runErr := e.run(ctx, job)
	if runErr == nil {
		runErr = e.complete(ctx, job, content, actorID)
		if errors.Is(runErr, errStaleClaim) {
			e.log.Warn("Regeneration completion lost its claim", "regen_job_id", job.ID)
			return OutcomeStale, nil
		}
		if runErr == nil {
			e.log.Info("Regeneration completed", "regen_job_id", job.ID, "scope", job.TargetType, "target_id", job.TargetID)
			return OutcomeCompleted, nil
		}
	}

	if ctx.Err() != nil {
		e.log.Warn("Regeneration interrupted", "regen_job_id", job.ID, "error", runErr)
		return OutcomeInterrupted, ctx.Err()
	}
	if recErr := e.fail(ctx, job, runErr, stack, actorID); recErr != nil {
		if errors.Is(recErr, errStaleClaim) {
			return OutcomeStale, nil
		}
		e.log.Error("Recording regeneration failure failed", "regen_job_id", job.ID, "error", recErr)
	}
	e.log.Warn("Regeneration failed", "regen_job_id", job.ID, "error_kind", perrors.KindOf(runErr), "error", runErr)
	return OutcomeFailed, runErr
}

func (e *Executor) claim(ctx context.Context, job *types.RegenerationJob, actorID string) (bool, error) {
	claimed := false
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		ok, err := e.repos.RegenerationJob.Claim(dbc, job.ID, e.now())
		if err != nil || !ok {
			return err
		}
		claimed = true
		return e.audit.Record(dbc, services.AuditEntry{
			Action:     audit.ActionRegenStarted,
			ActorID:    actorID,
			EntityType: "regeneration_job",
			EntityID:   job.ID.String(),
			Meta:       map[string]any{"scope": job.TargetType, "target_id": job.TargetID},
		})
	})
	if claimed && err == nil {
		job.Status = rdomain.JobRunning
	}
	return claimed && err == nil, err
}

func (e *Executor) request(ctx context.Context, job *types.RegenerationJob) (runtime.Request, error) {
	const op = "regen.instruction"
	var in types.Instruction
	if err := json.Unmarshal(job.Instruction, &in); err != nil {
		return runtime.Request{}, perrors.Validation(op, "decode instruction: %v", err)
	}
	if err := e.validate.Struct(in); err != nil {
		return runtime.Request{}, perrors.Validation(op, "%v", err)
	}
	kind, err := jobs.ParseJobKind(in.Kind)
	if err != nil {
		return runtime.Request{}, perrors.Validation(op, "%v", err)
	}
	req := runtime.Request{
		JobID:       job.ID,
		Kind:        kind,
		TargetType:  string(job.TargetType),
		TargetID:    job.TargetID,
		Language:    in.Language,
		Difficulty:  in.Difficulty,
		Hierarchy:   runtime.HierarchyFromMap(in.Hierarchy),
		Instruction: in.Text,
	}
	prev, err := e.previousContent(ctx, job)
	if err != nil {
		return runtime.Request{}, perrors.Infra("regen.previous", err)
	}
	req.Previous = prev
	return req, nil
}

func (e *Executor) previousContent(ctx context.Context, job *types.RegenerationJob) (json.RawMessage, error) {
	dbc := dbctx.Context{Ctx: ctx}
	pub, err := e.repos.PublishedOutput.GetByScope(dbc, job.TargetType, job.TargetID)
	if err != nil || pub == nil {
		return nil, err
	}
	out, err := e.repos.RegenerationOutput.GetByID(dbc, pub.OutputID)
	if err != nil || out == nil {
		return nil, err
	}
	return json.RawMessage(out.Content), nil
}

func (e *Executor) run(ctx context.Context, job *types.RegenerationJob) (out json.RawMessage, stack string, err error) {
	req, err := e.request(ctx, job)
	if err != nil {
		return nil, "", err
	}
	gen, ok := e.registry.Get(req.Kind)
	if !ok {
		return nil, "", perrors.Validation("regen.generate", "no generator for kind %q", req.Kind)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err = runtime.Call(runCtx, gen, req)
	if err == nil && runCtx.Err() != nil {
		err = runCtx.Err()
	}
	if err != nil {
		var pe *runtime.PanicError
		if errors.As(err, &pe) {
			return nil, pe.Stack, perrors.E(perrors.KindValidation, "regen.generate", err)
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, "", perrors.Timeout("regen.generate", fmt.Errorf("exceeded %s: %w", e.timeout, err))
		}
		return nil, "", err
	}
	if err := e.validator.Validate(out, validation.Context{Kind: req.Kind, Language: req.Language, Difficulty: req.Difficulty}); err != nil {
		return nil, "", err
	}
	return out, "", nil
}

func (e *Executor) complete(ctx context.Context, job *types.RegenerationJob, content json.RawMessage, actorID string) error {
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		output := &types.RegenerationOutput{
			RegenerationJobID: job.ID,
			TargetType:        job.TargetType,
			TargetID:          job.TargetID,
			Content:           datatypes.JSON(content),
		}
		if err := e.repos.RegenerationOutput.Create(dbc, output); err != nil {
			return err
		}
		ok, err := e.repos.RegenerationJob.Complete(dbc, job.ID, output.ID, e.now())
		if err != nil {
			return err
		}
		if !ok {
			return errStaleClaim
		}
		candidate := &types.PromotionCandidate{
			OutputID:   output.ID,
			Scope:      job.TargetType,
			ScopeRefID: job.TargetID,
			Status:     rdomain.CandidatePending,
		}
		if err := e.repos.PromotionCandidate.Create(dbc, candidate); err != nil {
			return err
		}
		return e.audit.Record(dbc, services.AuditEntry{
			Action:     audit.ActionRegenCompleted,
			ActorID:    actorID,
			EntityType: "regeneration_job",
			EntityID:   job.ID.String(),
			Meta:       map[string]any{"output_id": output.ID.String(), "candidate_id": candidate.ID.String()},
		})
	})
}

func (e *Executor) fail(ctx context.Context, job *types.RegenerationJob, runErr error, stack, actorID string) error {
	ctx = context.WithoutCancel(ctx)
	kind := perrors.KindOf(runErr)
	if kind == perrors.KindUnknown {
		kind = perrors.KindInfra
	}
	raw, err := json.Marshal(rdomain.ErrorPayload{Message: runErr.Error(), Kind: string(kind), Stack: stack})
	if err != nil {
		return err
	}
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		ok, err := e.repos.RegenerationJob.Fail(dbc, job.ID, datatypes.JSON(raw), e.now())
		if err != nil {
			return err
		}
		if !ok {
			return errStaleClaim
		}
		return e.audit.Record(dbc, services.AuditEntry{
			Action:     audit.ActionRegenFailed,
			ActorID:    actorID,
			EntityType: "regeneration_job",
			EntityID:   job.ID.String(),
			Meta:       map[string]any{"kind": kind, "error": runErr.Error()},
		})
	})
}
