package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// TargetEntity names the curriculum entity a job hydrates.
type TargetEntity struct {
	Type string `json:"type" validate:"required,oneof=board grade subject chapter topic course module lesson"`
	ID   string `json:"id" validate:"required"`
}

type Hierarchy struct {
	BoardID   string `json:"board_id,omitempty"`
	GradeID   string `json:"grade_id,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`
	ChapterID string `json:"chapter_id,omitempty"`
	TopicID   string `json:"topic_id,omitempty"`
}

// Common is embedded in every kind-specific payload.
type Common struct {
	Hierarchy
	Language   string `json:"language" validate:"required,min=2,max=16"`
	Difficulty string `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	TraceID    string `json:"trace_id,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func (c *Common) common() *Common { return c }

// Payload is the closed set of per-kind submission payloads.
type Payload interface {
	Kind() JobKind
	common() *Common
}

type SyllabusPayload struct {
	Common
	SubjectID string `json:"subject_id" validate:"required"`
}

type NotesPayload struct {
	Common
	TopicID string `json:"topic_id" validate:"required"`
	Style   string `json:"style,omitempty" validate:"omitempty,oneof=concise detailed exam"`
}

type QuestionsPayload struct {
	Common
	TopicID string `json:"topic_id" validate:"required"`
	Count   int    `json:"count" validate:"gte=1,lte=50"`
}

type TestsPayload struct {
	Common
	ChapterID     string `json:"chapter_id" validate:"required"`
	QuestionCount int    `json:"question_count" validate:"gte=1,lte=100"`
	DurationMins  int    `json:"duration_minutes,omitempty" validate:"omitempty,gte=5,lte=300"`
}

type AssemblePayload struct {
	Common
	ChapterID string   `json:"chapter_id" validate:"required"`
	Sections  []string `json:"sections,omitempty" validate:"omitempty,dive,oneof=notes questions tests"`
}

func (*SyllabusPayload) Kind() JobKind  { return KindSyllabus }
func (*NotesPayload) Kind() JobKind     { return KindNotes }
func (*QuestionsPayload) Kind() JobKind { return KindQuestions }
func (*TestsPayload) Kind() JobKind     { return KindTests }
func (*AssemblePayload) Kind() JobKind  { return KindAssemble }

// The kind-specific id fields shadow the embedded hierarchy in JSON. Hierarchy
// reconciles both so callers see one view.
func (p *SyllabusPayload) hierarchy() Hierarchy {
	h := p.Hierarchy
	h.SubjectID = firstNonEmpty(p.SubjectID, h.SubjectID)
	return h
}
func (p *NotesPayload) hierarchy() Hierarchy {
	h := p.Hierarchy
	h.TopicID = firstNonEmpty(p.TopicID, h.TopicID)
	return h
}
func (p *QuestionsPayload) hierarchy() Hierarchy {
	h := p.Hierarchy
	h.TopicID = firstNonEmpty(p.TopicID, h.TopicID)
	return h
}
func (p *TestsPayload) hierarchy() Hierarchy {
	h := p.Hierarchy
	h.ChapterID = firstNonEmpty(p.ChapterID, h.ChapterID)
	return h
}
func (p *AssemblePayload) hierarchy() Hierarchy {
	h := p.Hierarchy
	h.ChapterID = firstNonEmpty(p.ChapterID, h.ChapterID)
	return h
}

func newPayload(kind JobKind) (Payload, error) {
	switch kind {
	case KindSyllabus:
		return &SyllabusPayload{}, nil
	case KindNotes:
		return &NotesPayload{}, nil
	case KindQuestions:
		return &QuestionsPayload{Count: 10}, nil
	case KindTests:
		return &TestsPayload{QuestionCount: 20}, nil
	case KindAssemble:
		return &AssemblePayload{}, nil
	}
	return nil, fmt.Errorf("unknown job kind %q", kind)
}

// DecodePayload strictly decodes raw into the payload struct for kind and
// validates it. Unknown fields are rejected.
func DecodePayload(kind JobKind, raw json.RawMessage) (Payload, error) {
	p, err := newPayload(kind)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage(`{}`)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	c := p.common()
	c.Language = strings.ToLower(strings.TrimSpace(c.Language))
	c.Difficulty = strings.ToLower(strings.TrimSpace(c.Difficulty))
	if err := validate.Struct(p); err != nil {
		return nil, describeValidation(kind, err)
	}
	return p, nil
}

func LanguageOf(p Payload) string   { return p.common().Language }
func DifficultyOf(p Payload) string { return p.common().Difficulty }

// HierarchyOf returns the resolved hierarchy ids of p.
func HierarchyOf(p Payload) Hierarchy {
	type hier interface{ hierarchy() Hierarchy }
	if h, ok := p.(hier); ok {
		return h.hierarchy()
	}
	return p.common().Hierarchy
}

// StampTrace records the trace and request ids that produced the submission.
func StampTrace(p Payload, traceID, requestID string) {
	c := p.common()
	if traceID != "" {
		c.TraceID = traceID
	}
	if requestID != "" {
		c.RequestID = requestID
	}
}

// ValidateTarget checks the target entity fields.
func ValidateTarget(t TargetEntity) error {
	if err := validate.Struct(t); err != nil {
		return describeValidation("target", err)
	}
	return nil
}

func describeValidation(subject any, err error) error {
	var verrs validator.ValidationErrors
	if ok := asValidationErrors(err, &verrs); !ok || len(verrs) == 0 {
		return fmt.Errorf("invalid %v: %w", subject, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid %v: %s", subject, strings.Join(parts, "; "))
}

func asValidationErrors(err error, out *validator.ValidationErrors) bool {
	v, ok := err.(validator.ValidationErrors)
	if ok {
		*out = v
	}
	return ok
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
