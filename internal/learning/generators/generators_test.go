package generators

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-hydration/internal/learning/validation"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

func TestStaticOutputPassesValidation(t *testing.T) {
	v := validation.New(validation.DefaultConfig())
	reg := NewStaticRegistry()
	for _, k := range jobs.AllKinds() {
		g, ok := reg.Get(k)
		require.True(t, ok)
		req := runtime.Request{
			Kind: k, Language: "en", Difficulty: "medium",
			Hierarchy: jobs.Hierarchy{TopicID: "fractions", ChapterID: "numbers", SubjectID: "math"},
		}
		raw, err := g.Generate(context.Background(), req)
		require.NoError(t, err, k)
		require.NoError(t, v.Validate(raw, validation.Context{Kind: k, Language: "en", Difficulty: "medium"}), k)
	}
}

type recordingClient struct {
	system, user, schemaName string
	out                      json.RawMessage
	err                      error
}

func (c *recordingClient) GenerateJSON(_ context.Context, system, user, schemaName string, _ map[string]any) (json.RawMessage, error) {
	c.system, c.user, c.schemaName = system, user, schemaName
	return c.out, c.err
}

func TestLLMGeneratorUsesKindPrompt(t *testing.T) {
	ai := &recordingClient{out: json.RawMessage(`{"ok":true}`)}
	g := NewLLMGenerator(jobs.KindQuestions, ai, logger.Nop())
	out, err := g.Generate(context.Background(), runtime.Request{
		Kind: jobs.KindQuestions, Language: "hi",
		Hierarchy: jobs.Hierarchy{TopicID: "T1"},
		Payload:   &jobs.QuestionsPayload{TopicID: "T1", Count: 7},
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(out))
	require.Equal(t, "hydrate_questions_v1", ai.schemaName)
	require.Contains(t, ai.user, "Write 7 multiple-choice")
	require.Contains(t, ai.system, `"hi"`)
}

func TestLLMGeneratorSwitchesToRegeneratePrompt(t *testing.T) {
	ai := &recordingClient{out: json.RawMessage(`{}`)}
	g := NewLLMGenerator(jobs.KindNotes, ai, logger.Nop())
	_, err := g.Generate(context.Background(), runtime.Request{
		Kind: jobs.KindNotes, Language: "en", Instruction: "simplify the wording",
	})
	require.NoError(t, err)
	require.Contains(t, ai.user, "simplify the wording")
}

func TestLLMGeneratorClassifiesErrors(t *testing.T) {
	ai := &recordingClient{err: errors.New("connection reset")}
	g := NewLLMGenerator(jobs.KindNotes, ai, logger.Nop())
	_, err := g.Generate(context.Background(), runtime.Request{Kind: jobs.KindNotes, Language: "en", Hierarchy: jobs.Hierarchy{TopicID: "T"}})
	require.Equal(t, perrors.KindInfra, perrors.KindOf(err))

	_, err = g.Generate(context.Background(), runtime.Request{Kind: jobs.KindNotes, Language: "en"})
	require.Equal(t, perrors.KindValidation, perrors.KindOf(err))
}
