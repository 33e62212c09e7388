package validation

// Output shapes per job kind. Field tags drive the schema check.

type SyllabusOutput struct {
	Language   string         `json:"language" validate:"required"`
	Difficulty string         `json:"difficulty,omitempty"`
	Title      string         `json:"title" validate:"required"`
	Units      []SyllabusUnit `json:"units" validate:"required,min=1,dive"`
}

type SyllabusUnit struct {
	Title  string   `json:"title" validate:"required"`
	Topics []string `json:"topics" validate:"required,min=1,dive,required"`
}

type NotesOutput struct {
	Language   string   `json:"language" validate:"required"`
	Difficulty string   `json:"difficulty,omitempty"`
	Title      string   `json:"title" validate:"required"`
	Body       string   `json:"body" validate:"required"`
	KeyPoints  []string `json:"key_points,omitempty" validate:"omitempty,dive,required"`
}

type Question struct {
	Prompt      string   `json:"prompt" validate:"required"`
	Options     []string `json:"options" validate:"required,min=2,dive,required"`
	Answer      string   `json:"answer" validate:"required"`
	Explanation string   `json:"explanation"`
}

type QuestionsOutput struct {
	Language   string     `json:"language" validate:"required"`
	Difficulty string     `json:"difficulty,omitempty"`
	Questions  []Question `json:"questions" validate:"dive"`
}

type TestsOutput struct {
	Language        string     `json:"language" validate:"required"`
	Difficulty      string     `json:"difficulty,omitempty"`
	Title           string     `json:"title" validate:"required"`
	DurationMinutes int        `json:"duration_minutes" validate:"gte=1"`
	Questions       []Question `json:"questions" validate:"dive"`
}

type AssembleOutput struct {
	Language   string            `json:"language" validate:"required"`
	Difficulty string            `json:"difficulty,omitempty"`
	Title      string            `json:"title" validate:"required"`
	Sections   []AssembleSection `json:"sections" validate:"required,min=1,dive"`
}

type AssembleSection struct {
	Kind    string `json:"kind" validate:"required,oneof=notes questions tests"`
	Title   string `json:"title" validate:"required"`
	Summary string `json:"summary,omitempty"`
}

type declared interface {
	declaredLanguage() string
	declaredDifficulty() string
}

func (o *SyllabusOutput) declaredLanguage() string    { return o.Language }
func (o *SyllabusOutput) declaredDifficulty() string  { return o.Difficulty }
func (o *NotesOutput) declaredLanguage() string       { return o.Language }
func (o *NotesOutput) declaredDifficulty() string     { return o.Difficulty }
func (o *QuestionsOutput) declaredLanguage() string   { return o.Language }
func (o *QuestionsOutput) declaredDifficulty() string { return o.Difficulty }
func (o *TestsOutput) declaredLanguage() string       { return o.Language }
func (o *TestsOutput) declaredDifficulty() string     { return o.Difficulty }
func (o *AssembleOutput) declaredLanguage() string    { return o.Language }
func (o *AssembleOutput) declaredDifficulty() string  { return o.Difficulty }
