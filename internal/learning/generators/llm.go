package generators

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-hydration/internal/learning/prompts"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
	"github.com/yungbote/neurobridge-hydration/internal/platform/openai"
)

// LLMGenerator renders the kind's prompt and asks the model for schema-bound JSON.
type LLMGenerator struct {
	kind jobs.JobKind
	ai   openai.Client
	log  *logger.Logger
}

func NewLLMGenerator(kind jobs.JobKind, ai openai.Client, baseLog *logger.Logger) *LLMGenerator {
	return &LLMGenerator{
		kind: kind,
		ai:   ai,
		log:  baseLog.With("generator", "LLM", "job_kind", string(kind)),
	}
}

func (g *LLMGenerator) Kind() jobs.JobKind { return g.kind }

func (g *LLMGenerator) Generate(ctx context.Context, req runtime.Request) (json.RawMessage, error) {
	name, ok := prompts.ForKind(g.kind)
	if strings.TrimSpace(req.Instruction) != "" {
		name, ok = prompts.PromptRegenerate, true
	}
	if !ok {
		return nil, perrors.Validation("generate", "no prompt for kind %s", g.kind)
	}
	p, err := prompts.Build(name, InputFor(req))
	if err != nil {
		return nil, perrors.E(perrors.KindValidation, "generate", err)
	}
	g.log.Debug("Generating content", "job_id", req.JobID, "prompt", p.Name, "fingerprint", p.Fingerprint())
	out, err := g.ai.GenerateJSON(ctx, p.System, p.User, p.SchemaName, p.Schema)
	if err != nil {
		if ctx.Err() != nil {
			return nil, perrors.Timeout("generate", ctx.Err())
		}
		if perrors.KindOf(err) == perrors.KindUnknown {
			return nil, perrors.Infra("generate", err)
		}
		return nil, err
	}
	return out, nil
}

// InputFor maps a generation request onto the prompt input.
func InputFor(req runtime.Request) prompts.Input {
	in := prompts.Input{
		Kind:         string(req.Kind),
		Language:     req.Language,
		Difficulty:   req.Difficulty,
		TargetType:   req.TargetType,
		TargetID:     req.TargetID,
		BoardID:      req.Hierarchy.BoardID,
		GradeID:      req.Hierarchy.GradeID,
		SubjectID:    req.Hierarchy.SubjectID,
		ChapterID:    req.Hierarchy.ChapterID,
		TopicID:      req.Hierarchy.TopicID,
		Instruction:  req.Instruction,
		PreviousJSON: string(req.Previous),
	}
	switch p := req.Payload.(type) {
	case *jobs.NotesPayload:
		in.Style = p.Style
	case *jobs.QuestionsPayload:
		in.Count = p.Count
	case *jobs.TestsPayload:
		in.Count = p.QuestionCount
		in.DurationMinutes = p.DurationMins
	case *jobs.AssemblePayload:
		in.SectionsCSV = strings.Join(p.Sections, ",")
	}
	if in.Count <= 0 && (req.Kind == jobs.KindQuestions || req.Kind == jobs.KindTests) {
		in.Count = 5
	}
	return in
}

// NewLLMRegistry registers an LLM generator for every job kind.
func NewLLMRegistry(ai openai.Client, log *logger.Logger) (*runtime.Registry, error) {
	if ai == nil {
		return nil, fmt.Errorf("nil openai client")
	}
	reg := runtime.NewRegistry()
	for _, k := range jobs.AllKinds() {
		if err := reg.Register(NewLLMGenerator(k, ai, log)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
