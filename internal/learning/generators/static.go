package generators

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
	"github.com/yungbote/neurobridge-hydration/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-hydration/internal/learning/validation"
)

// StaticGenerator returns deterministic content that passes validation.
// Used in local development and tests where no model is configured.
type StaticGenerator struct {
	kind jobs.JobKind
}

func NewStaticGenerator(kind jobs.JobKind) *StaticGenerator { return &StaticGenerator{kind: kind} }

func (g *StaticGenerator) Kind() jobs.JobKind { return g.kind }

func (g *StaticGenerator) Generate(ctx context.Context, req runtime.Request) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	subject := firstNonEmpty(req.Hierarchy.TopicID, req.Hierarchy.ChapterID, req.Hierarchy.SubjectID, req.TargetID)
	lang, diff := req.Language, req.Difficulty
	var out any
	switch g.kind {
	case jobs.KindSyllabus:
		out = validation.SyllabusOutput{
			Language: lang, Difficulty: diff,
			Title: "Syllabus for " + subject,
			Units: []validation.SyllabusUnit{
				{Title: "Foundations", Topics: []string{"Core vocabulary", "Key ideas"}},
				{Title: "Applications", Topics: []string{"Worked examples"}},
			},
		}
	case jobs.KindNotes:
		out = validation.NotesOutput{
			Language: lang, Difficulty: diff,
			Title:     "Notes on " + subject,
			Body:      notesBody(subject, req.Instruction),
			KeyPoints: []string{"Define the core terms", "Connect each idea to an example"},
		}
	case jobs.KindQuestions:
		out = validation.QuestionsOutput{
			Language: lang, Difficulty: diff,
			Questions: questions(subject, countFor(req)),
		}
	case jobs.KindTests:
		dur := 30
		if p, ok := req.Payload.(*jobs.TestsPayload); ok && p.DurationMins > 0 {
			dur = p.DurationMins
		}
		out = validation.TestsOutput{
			Language: lang, Difficulty: diff,
			Title:           "Chapter test: " + subject,
			DurationMinutes: dur,
			Questions:       questions(subject, countFor(req)),
		}
	case jobs.KindAssemble:
		sections := []string{"notes", "questions", "tests"}
		if p, ok := req.Payload.(*jobs.AssemblePayload); ok && len(p.Sections) > 0 {
			sections = p.Sections
		}
		secs := make([]validation.AssembleSection, 0, len(sections))
		for _, s := range sections {
			secs = append(secs, validation.AssembleSection{
				Kind:    s,
				Title:   strings.ToUpper(s[:1]) + s[1:],
				Summary: fmt.Sprintf("%s material for %s.", s, subject),
			})
		}
		out = validation.AssembleOutput{Language: lang, Difficulty: diff, Title: "Chapter " + subject, Sections: secs}
	default:
		return nil, fmt.Errorf("static generator: unknown kind %q", g.kind)
	}
	return json.Marshal(out)
}

func notesBody(subject, instruction string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This section introduces %s from first principles. ", subject)
	b.WriteString("It begins with the vocabulary a student needs, then walks through the central ideas one at a time, ")
	b.WriteString("pairing each idea with a short example drawn from everyday situations. ")
	b.WriteString("After the examples, the notes summarise how the ideas fit together and where they are used later in the course. ")
	b.WriteString("Students should read the definitions carefully, attempt the examples on their own, and then compare their reasoning with the explanation given. ")
	b.WriteString("Common mistakes are listed at the end so that revision can focus on the parts that usually cause trouble.")
	if s := strings.TrimSpace(instruction); s != "" {
		fmt.Fprintf(&b, " Revision note: %s.", s)
	}
	return b.String()
}

func questions(subject string, n int) []validation.Question {
	out := make([]validation.Question, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, validation.Question{
			Prompt:      fmt.Sprintf("Question %d about %s: which statement is correct?", i, subject),
			Options:     []string{"The first statement", "The second statement", "Neither statement"},
			Answer:      "The first statement",
			Explanation: "The first statement follows directly from the definition covered in the notes.",
		})
	}
	return out
}

func countFor(req runtime.Request) int {
	switch p := req.Payload.(type) {
	case *jobs.QuestionsPayload:
		if p.Count > 0 {
			return p.Count
		}
	case *jobs.TestsPayload:
		if p.QuestionCount > 0 {
			return p.QuestionCount
		}
	}
	return 3
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return "the topic"
}

// NewStaticRegistry registers a StaticGenerator for every job kind.
func NewStaticRegistry() *runtime.Registry {
	reg := runtime.NewRegistry()
	for _, k := range jobs.AllKinds() {
		_ = reg.Register(NewStaticGenerator(k))
	}
	return reg
}
