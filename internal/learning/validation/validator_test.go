package validation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	perrors "github.com/yungbote/neurobridge-hydration/internal/pkg/errors"
)

func notesJSON(t *testing.T, body, lang, difficulty string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"language":   lang,
		"difficulty": difficulty,
		"title":      "Photosynthesis",
		"body":       body,
		"key_points": []string{"Light reactions occur in the thylakoid."},
	})
	require.NoError(t, err)
	return raw
}

func longBody() string {
	return strings.Repeat("Chlorophyll absorbs light and drives the synthesis of glucose. ", 10)
}

func questionsJSON(t *testing.T, qs []Question) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(QuestionsOutput{Language: "en", Difficulty: "easy", Questions: qs})
	require.NoError(t, err)
	return raw
}

func goodQuestion() Question {
	return Question{
		Prompt:      "What gas do plants absorb?",
		Options:     []string{"Oxygen", "Carbon dioxide"},
		Answer:      "Carbon dioxide",
		Explanation: "Plants take in carbon dioxide for photosynthesis.",
	}
}

func TestValidateAcceptsGoodNotes(t *testing.T) {
	v := New(DefaultConfig())
	err := v.Validate(notesJSON(t, longBody(), "EN", "medium"), Context{Kind: jobs.KindNotes, Language: "en", Difficulty: "medium"})
	require.NoError(t, err)
}

func TestValidateRejectionCategories(t *testing.T) {
	v := New(DefaultConfig())
	notesCtx := Context{Kind: jobs.KindNotes, Language: "en", Difficulty: "medium"}

	cases := []struct {
		name string
		raw  json.RawMessage
		ctx  Context
		kind perrors.Kind
	}{
		{"not an object", json.RawMessage(`["x"]`), notesCtx, perrors.KindSchemaInvalid},
		{"missing body", json.RawMessage(`{"language":"en","title":"t"}`), notesCtx, perrors.KindSchemaInvalid},
		{"unknown field", json.RawMessage(`{"language":"en","title":"t","body":"b","extra":1}`), notesCtx, perrors.KindSchemaInvalid},
		{"lorem ipsum", notesJSON(t, longBody()+" Lorem  ipsum dolor.", "en", "medium"), notesCtx, perrors.KindPlaceholderContent},
		{"coming soon", notesJSON(t, "Coming soon. "+longBody(), "en", "medium"), notesCtx, perrors.KindPlaceholderContent},
		{"insert marker", notesJSON(t, longBody()+" [insert diagram here]", "en", "medium"), notesCtx, perrors.KindPlaceholderContent},
		{"short notes", notesJSON(t, "Too short.", "en", "medium"), notesCtx, perrors.KindSemanticWeakness},
		{"language mismatch", notesJSON(t, longBody(), "hi", "medium"), notesCtx, perrors.KindContextMismatch},
		{"difficulty mismatch", notesJSON(t, longBody(), "en", "hard"), notesCtx, perrors.KindContextMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.raw, tc.ctx)
			require.Error(t, err)
			require.Equal(t, tc.kind, perrors.KindOf(err), err.Error())
			require.False(t, perrors.Retryable(perrors.KindOf(err)))
		})
	}
}

func TestValidateQuestions(t *testing.T) {
	v := New(DefaultConfig())
	ctx := Context{Kind: jobs.KindQuestions, Language: "en", Difficulty: "easy"}

	require.NoError(t, v.Validate(questionsJSON(t, []Question{goodQuestion()}), ctx))

	err := v.Validate(questionsJSON(t, []Question{}), ctx)
	var weak *SemanticWeaknessError
	require.ErrorAs(t, err, &weak)
	require.Equal(t, "$.questions", weak.Path)

	q := goodQuestion()
	q.Explanation = "Because."
	err = v.Validate(questionsJSON(t, []Question{q}), ctx)
	require.ErrorAs(t, err, &weak)
	require.Equal(t, "$.questions[0].explanation", weak.Path)

	q = goodQuestion()
	q.Answer = "Nitrogen"
	err = v.Validate(questionsJSON(t, []Question{q}), ctx)
	require.ErrorAs(t, err, &weak)
	require.Equal(t, "$.questions[0].answer", weak.Path)
}

func TestPlaceholderReportsPath(t *testing.T) {
	v := New(DefaultConfig())
	q := goodQuestion()
	q.Options = []string{"TBD", "Carbon dioxide"}
	err := v.Validate(questionsJSON(t, []Question{q}), Context{Kind: jobs.KindQuestions, Language: "en"})
	var ph *PlaceholderContentError
	require.ErrorAs(t, err, &ph)
	require.Equal(t, "$.questions[0].options[0]", ph.Path)
}

func TestValidateSyllabusAndAssemble(t *testing.T) {
	v := New(DefaultConfig())
	syllabus := json.RawMessage(`{"language":"en","title":"Biology","units":[{"title":"Cells","topics":["Cell wall"]}]}`)
	require.NoError(t, v.Validate(syllabus, Context{Kind: jobs.KindSyllabus, Language: "en"}))

	empty := json.RawMessage(`{"language":"en","title":"Biology","units":[]}`)
	require.Equal(t, perrors.KindSchemaInvalid, perrors.KindOf(v.Validate(empty, Context{Kind: jobs.KindSyllabus})))

	assemble := json.RawMessage(`{"language":"en","title":"Ch 1","sections":[{"kind":"essay","title":"x"}]}`)
	require.Equal(t, perrors.KindSchemaInvalid, perrors.KindOf(v.Validate(assemble, Context{Kind: jobs.KindAssemble})))
}
