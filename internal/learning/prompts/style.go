package prompts

import "strings"

const styleMarker = "HYDRATION_PROMPT_STYLE_V1"

// applyStyle prepends the shared content-authoring preamble to a system
// prompt. It is idempotent.
func applyStyle(system string) string {
	base := strings.TrimSpace(system)
	if base == "" || strings.Contains(base, styleMarker) {
		return base
	}

	taskSummary := ""
	for _, line := range strings.Split(base, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			taskSummary = trimmed
			break
		}
	}

	var b strings.Builder
	b.WriteString(styleMarker)
	b.WriteString("\nYou write curriculum content for students.")
	if taskSummary != "" {
		b.WriteString("\nTask summary: " + taskSummary)
	}
	b.WriteString("\nWrite finished content. Never emit placeholders such as TBD, lorem ipsum or coming soon.")
	b.WriteString("\nMatch the requested language and difficulty exactly.")
	b.WriteString("\nReturn a single JSON object that conforms to the schema and contains no extra keys.")
	b.WriteString("\n---\n")
	b.WriteString(base)
	return strings.TrimSpace(b.String())
}
