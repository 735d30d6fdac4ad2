package promptstyle

import "strings"

const marker = "NAREO_PROMPT_STYLE_V1"

// ApplySystem prepends a short guidance block to a system prompt. Prompts
// that already carry the block are returned unchanged.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" {
		return base
	}
	if strings.Contains(base, marker) {
		return base
	}
	mode = strings.ToLower(strings.TrimSpace(mode))

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou write study material for learners from their own course documents.")
	b.WriteString("\nUse only the provided source text as grounding; do not invent facts.")
	b.WriteString("\nTest the subject matter, never the document itself (pages, authors, exam dates, course logistics).")
	switch mode {
	case "json":
		b.WriteString("\nReturn a single JSON object that conforms to the schema and contains no extra keys.")
	case "tool":
		b.WriteString("\nAnswer only by calling the provided tool with arguments that conform to its schema.")
	}
	b.WriteString("\n\n")
	b.WriteString(base)
	return b.String()
}
