// Package validation gates AI-generated content before it is persisted.
//
// Checks run in a fixed order and stop at the first failure: schema,
// placeholder text, semantic heuristics, then request/output consistency.
// Each failure is a distinct error type so operators can tell garbage output
// apart from output that ignored its instructions.
package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/yungbote/neurobridge-hydration/internal/domain/jobs"
)

type Context struct {
	Kind       jobs.JobKind
	Language   string
	Difficulty string
}

type Config struct {
	MinNotesChars       int
	MinExplanationChars int
	MinQuestions        int
}

func DefaultConfig() Config {
	return Config{MinNotesChars: 400, MinExplanationChars: 20, MinQuestions: 1}
}

var placeholderPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\blorem\s+ipsum\b`),
	regexp.MustCompile(`(?i)\bcoming\s+soon\b`),
	regexp.MustCompile(`(?i)\[\s*insert\b[^\]]*\]`),
	regexp.MustCompile(`\bTBD\b`),
	regexp.MustCompile(`(?i)\bplaceholder\s+(text|content)\b`),
	regexp.MustCompile(`(?i)\bto\s+be\s+(added|written|completed)\b`),
}

type Validator struct {
	cfg      Config
	validate *validator.Validate
}

func New(cfg Config) *Validator {
	def := DefaultConfig()
	if cfg.MinNotesChars <= 0 {
		cfg.MinNotesChars = def.MinNotesChars
	}
	if cfg.MinExplanationChars <= 0 {
		cfg.MinExplanationChars = def.MinExplanationChars
	}
	if cfg.MinQuestions <= 0 {
		cfg.MinQuestions = def.MinQuestions
	}
	return &Validator{cfg: cfg, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate returns nil when raw is usable for c, otherwise one of
// *SchemaInvalidError, *PlaceholderContentError, *SemanticWeaknessError or
// *ContextMismatchError.
func (v *Validator) Validate(raw json.RawMessage, c Context) error {
	out, err := v.checkSchema(raw, c.Kind)
	if err != nil {
		return err
	}
	if err := checkPlaceholders(raw); err != nil {
		return err
	}
	if err := v.checkSemantics(out); err != nil {
		return err
	}
	return checkContext(out, c)
}

func newOutput(kind jobs.JobKind) (declared, error) {
	switch kind {
	case jobs.KindSyllabus:
		return &SyllabusOutput{}, nil
	case jobs.KindNotes:
		return &NotesOutput{}, nil
	case jobs.KindQuestions:
		return &QuestionsOutput{}, nil
	case jobs.KindTests:
		return &TestsOutput{}, nil
	case jobs.KindAssemble:
		return &AssembleOutput{}, nil
	}
	return nil, fmt.Errorf("no output shape for kind %q", kind)
}

func (v *Validator) checkSchema(raw json.RawMessage, kind jobs.JobKind) (declared, error) {
	out, err := newOutput(kind)
	if err != nil {
		return nil, &SchemaInvalidError{Kind: string(kind), Problems: []string{err.Error()}}
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &SchemaInvalidError{Kind: string(kind), Problems: []string{"output must be a JSON object"}}
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return nil, &SchemaInvalidError{Kind: string(kind), Problems: []string{err.Error()}}
	}
	if err := v.validate.Struct(out); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, &SchemaInvalidError{Kind: string(kind), Problems: []string{err.Error()}}
		}
		problems := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return nil, &SchemaInvalidError{Kind: string(kind), Problems: problems}
	}
	return out, nil
}

func checkPlaceholders(raw json.RawMessage) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return &SchemaInvalidError{Problems: []string{err.Error()}}
	}
	return scanStrings(doc, "$")
}

func scanStrings(node any, path string) error {
	switch t := node.(type) {
	case string:
		for _, re := range placeholderPatterns {
			if m := re.FindString(t); m != "" {
				return &PlaceholderContentError{Path: path, Match: m}
			}
		}
	case []any:
		for i, child := range t {
			if err := scanStrings(child, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := scanStrings(t[k], path+"."+k); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *Validator) checkSemantics(out declared) error {
	switch o := out.(type) {
	case *NotesOutput:
		if n := len([]rune(strings.TrimSpace(o.Body))); n < v.cfg.MinNotesChars {
			return &SemanticWeaknessError{Path: "$.body", Reason: fmt.Sprintf("notes body has %d chars, need at least %d", n, v.cfg.MinNotesChars)}
		}
	case *QuestionsOutput:
		return v.checkQuestions(o.Questions)
	case *TestsOutput:
		return v.checkQuestions(o.Questions)
	}
	return nil
}

func (v *Validator) checkQuestions(qs []Question) error {
	if len(qs) < v.cfg.MinQuestions {
		return &SemanticWeaknessError{Path: "$.questions", Reason: fmt.Sprintf("got %d questions, need at least %d", len(qs), v.cfg.MinQuestions)}
	}
	for i, q := range qs {
		path := fmt.Sprintf("$.questions[%d]", i)
		if n := len([]rune(strings.TrimSpace(q.Explanation))); n < v.cfg.MinExplanationChars {
			return &SemanticWeaknessError{Path: path + ".explanation", Reason: fmt.Sprintf("explanation has %d chars, need at least %d", n, v.cfg.MinExplanationChars)}
		}
		found := false
		for _, opt := range q.Options {
			if strings.EqualFold(strings.TrimSpace(opt), strings.TrimSpace(q.Answer)) {
				found = true
				break
			}
		}
		if !found {
			return &SemanticWeaknessError{Path: path + ".answer", Reason: "answer is not one of the options"}
		}
	}
	return nil
}

func checkContext(out declared, c Context) error {
	if want := strings.TrimSpace(c.Language); want != "" {
		if got := strings.TrimSpace(out.declaredLanguage()); !strings.EqualFold(got, want) {
			return &ContextMismatchError{Field: "language", Want: want, Got: got}
		}
	}
	if want := strings.TrimSpace(c.Difficulty); want != "" {
		if got := strings.TrimSpace(out.declaredDifficulty()); !strings.EqualFold(got, want) {
			return &ContextMismatchError{Field: "difficulty", Want: want, Got: got}
		}
	}
	return nil
}
