package prompts

import "github.com/yungbote/neurobridge-hydration/internal/domain/jobs"

type PromptName string

const (
	PromptHydrateSyllabus  PromptName = "hydrate_syllabus"
	PromptHydrateNotes     PromptName = "hydrate_notes"
	PromptHydrateQuestions PromptName = "hydrate_questions"
	PromptHydrateTests     PromptName = "hydrate_tests"
	PromptHydrateAssemble  PromptName = "hydrate_assemble"

	// Regeneration prompts wrap the hydration prompt with an editor instruction.
	PromptRegenerate PromptName = "regenerate"
)

// ForKind maps a job kind to its hydration prompt.
func ForKind(kind jobs.JobKind) (PromptName, bool) {
	switch kind {
	case jobs.KindSyllabus:
		return PromptHydrateSyllabus, true
	case jobs.KindNotes:
		return PromptHydrateNotes, true
	case jobs.KindQuestions:
		return PromptHydrateQuestions, true
	case jobs.KindTests:
		return PromptHydrateTests, true
	case jobs.KindAssemble:
		return PromptHydrateAssemble, true
	}
	return "", false
}
