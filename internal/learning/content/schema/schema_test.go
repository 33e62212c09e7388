package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
)

func TestEverySchemaLoadsAndLints(t *testing.T) {
	for _, kind := range jobs.AllKinds() {
		s, err := ForKind(kind)
		require.NoError(t, err, kind)
		require.Equal(t, "object", s["type"])
	}
	require.Equal(t, "hydrate_notes_v1", Name(jobs.KindNotes))
}

func TestLintReportsAllProblems(t *testing.T) {
	err := Lint("bad", map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "string"}, "b": map[string]any{"anyOf": []any{}}},
		"required":   []any{"a", "c"},
	})
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, "additionalProperties must be false")
	require.Contains(t, msg, `"b" missing from required`)
	require.Contains(t, msg, "anyOf is not permitted")
	require.Contains(t, msg, `unknown key "c"`)
}
