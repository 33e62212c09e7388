package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
)

func TestBuildEveryKind(t *testing.T) {
	in := Input{Language: "en", Difficulty: "easy", SubjectID: "S", TopicID: "T", ChapterID: "C", Count: 5}
	for _, kind := range jobs.AllKinds() {
		name, ok := ForKind(kind)
		require.True(t, ok)
		p, err := Build(name, in)
		require.NoError(t, err, kind)
		require.Equal(t, "hydrate_"+string(kind)+"_v1", p.SchemaName)
		require.NotEmpty(t, p.Schema)
		require.Contains(t, p.System, `"en"`)
		require.Contains(t, p.System, `"easy"`)
		require.Len(t, p.Fingerprint(), 64)
	}
}

func TestBuildValidatesInput(t *testing.T) {
	_, err := Build(PromptHydrateNotes, Input{Language: "en"})
	require.ErrorContains(t, err, "topic_id")

	_, err = Build(PromptRegenerate, Input{Language: "en", Kind: "notes"})
	require.ErrorContains(t, err, "instruction")

	p, err := Build(PromptRegenerate, Input{Language: "en", Kind: "notes", Instruction: "shorter", PreviousJSON: `{"title":"x"}`})
	require.NoError(t, err)
	require.Contains(t, p.User, "shorter")
	require.Equal(t, "hydrate_notes_v1", p.SchemaName)
}

func TestFingerprintChangesWithInput(t *testing.T) {
	a, err := Build(PromptHydrateNotes, Input{Language: "en", TopicID: "T1"})
	require.NoError(t, err)
	b, err := Build(PromptHydrateNotes, Input{Language: "en", TopicID: "T2"})
	require.NoError(t, err)
	require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestApplyStyleIsIdempotent(t *testing.T) {
	once := applyStyle("Write notes.\nMore detail.")
	require.True(t, strings.HasPrefix(once, styleMarker))
	require.Contains(t, once, "Task summary: Write notes.")
	require.Equal(t, once, applyStyle(once))
	require.Equal(t, "", applyStyle("  "))
}
