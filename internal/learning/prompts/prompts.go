package prompts

import (
	"fmt"

	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/learning/content/schema"
)

const systemCommon = `You write curriculum content for school students.
Respond only with JSON matching the provided schema.
Write every string in the language "{{.Language}}" and set "language" to "{{.Language}}".
{{if .Difficulty}}Pitch the material at "{{.Difficulty}}" difficulty and set "difficulty" to "{{.Difficulty}}".{{else}}Set "difficulty" to an empty string.{{end}}
Never emit stub text such as "lorem ipsum", "coming soon", "TBD" or bracketed insert markers.`

const hierarchyBlock = `Curriculum position:
board={{.BoardID}} grade={{.GradeID}} subject={{.SubjectID}} chapter={{.ChapterID}} topic={{.TopicID}}
Target: {{.TargetType}} {{.TargetID}}`

func kindSchema(kind jobs.JobKind) (func(Input) string, func(Input) (map[string]any, error)) {
	return func(Input) string { return schema.Name(kind) },
		func(Input) (map[string]any, error) { return schema.ForKind(kind) }
}

func specs() []Spec {
	out := make([]Spec, 0, 6)
	add := func(name PromptName, kind jobs.JobKind, user string, extra ...Validator) {
		sn, sf := kindSchema(kind)
		out = append(out, Spec{
			Name:       name,
			Version:    1,
			SchemaName: sn,
			Schema:     sf,
			System:     systemCommon,
			User:       user,
			Validators: append([]Validator{requireField("language", func(in Input) string { return in.Language })}, extra...),
		})
	}

	add(PromptHydrateSyllabus, jobs.KindSyllabus, hierarchyBlock+`
Produce a syllabus for the subject as an ordered list of units, each with the topics it covers.`,
		requireField("subject_id", func(in Input) string { return in.SubjectID }))

	add(PromptHydrateNotes, jobs.KindNotes, hierarchyBlock+`
Write study notes for the topic. The body must be at least 400 characters of continuous explanatory prose.
{{if .Style}}Style: {{.Style}}.{{end}}
List the key points separately.`,
		requireField("topic_id", func(in Input) string { return in.TopicID }))

	add(PromptHydrateQuestions, jobs.KindQuestions, hierarchyBlock+`
Write {{.Count}} multiple-choice practice questions for the topic.
Each question needs at least two options, an answer copied exactly from the options, and an explanation of at least one full sentence.`,
		requireField("topic_id", func(in Input) string { return in.TopicID }))

	add(PromptHydrateTests, jobs.KindTests, hierarchyBlock+`
Write a chapter test with {{.Count}} multiple-choice questions{{if .DurationMinutes}} designed for {{.DurationMinutes}} minutes{{end}}.
Each question needs at least two options, an answer copied exactly from the options, and an explanation of at least one full sentence.`,
		requireField("chapter_id", func(in Input) string { return in.ChapterID }))

	add(PromptHydrateAssemble, jobs.KindAssemble, hierarchyBlock+`
Assemble a chapter outline with sections of kinds: {{if .SectionsCSV}}{{.SectionsCSV}}{{else}}notes,questions,tests{{end}}.
Give each section a title and a one-paragraph summary.`,
		requireField("chapter_id", func(in Input) string { return in.ChapterID }))

	out = append(out, Spec{
		Name:       PromptRegenerate,
		Version:    1,
		SchemaName: func(in Input) string { return schema.Name(jobs.JobKind(in.Kind)) },
		Schema: func(in Input) (map[string]any, error) {
			kind, err := jobs.ParseJobKind(in.Kind)
			if err != nil {
				return nil, fmt.Errorf("regenerate: %w", err)
			}
			return schema.ForKind(kind)
		},
		System: systemCommon + `
You are revising content that is already published. Keep what is correct and apply the editor instruction.`,
		User: hierarchyBlock + `
Content kind: {{.Kind}}
Editor instruction: {{.Instruction}}
{{if .PreviousJSON}}Current published version:
{{.PreviousJSON}}{{end}}`,
		Validators: []Validator{
			requireField("language", func(in Input) string { return in.Language }),
			requireField("kind", func(in Input) string { return in.Kind }),
			requireField("instruction", func(in Input) string { return in.Instruction }),
		},
	})
	return out
}
