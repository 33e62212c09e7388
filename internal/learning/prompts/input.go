package prompts

// Input is a superset of the fields any prompt reads.
// Missing fields render as empty strings.
type Input struct {
	Kind       string
	Language   string
	Difficulty string

	TargetType string
	TargetID   string
	BoardID    string
	GradeID    string
	SubjectID  string
	ChapterID  string
	TopicID    string

	// Kind-specific knobs, already validated at submission.
	Count           int
	DurationMinutes int
	Style           string
	SectionsCSV     string

	// Regeneration only.
	Instruction  string
	PreviousJSON string
}
