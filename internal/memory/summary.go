package memory

import (
	"strings"
)

// DefaultSummaryChars caps the rolling summary.
const DefaultSummaryChars = 400

// Summarize joins "role: content" for each turn with " | ", collapsing
// whitespace inside content. Longer results are cut to maxChars-3 runes plus
// "...", or to the first maxChars runes when the cap leaves no room for the
// ellipsis. Lengths are counted in runes.
func Summarize(turns []Turn, maxChars int) string {
	if len(turns) == 0 {
		return ""
	}
	if maxChars <= 0 {
		maxChars = DefaultSummaryChars
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, t.Role+": "+strings.Join(strings.Fields(t.Content), " "))
	}
	summary := strings.Join(lines, " | ")

	runes := []rune(summary)
	if len(runes) <= maxChars {
		return summary
	}
	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	keep := maxChars - 3
	return strings.TrimRight(string(runes[:keep]), " \t\n") + "..."
}
