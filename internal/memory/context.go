package memory

import (
	"unicode/utf8"
)

// DefaultContextChars is the overall context budget.
const DefaultContextChars = 2500

// Package is the context handed to the completion call.
type Package struct {
	Turns    []Turn    `json:"turns"`
	Summary  string    `json:"summary"`
	Snippets []Snippet `json:"snippets"`
}

// Size counts runes of every turn's role and content, the summary, and every
// snippet text.
func (p Package) Size() int {
	n := utf8.RuneCountInString(p.Summary)
	for _, t := range p.Turns {
		n += utf8.RuneCountInString(t.Role) + utf8.RuneCountInString(t.Content)
	}
	for _, s := range p.Snippets {
		n += utf8.RuneCountInString(s.Text)
	}
	return n
}

// BuildContext fits turns, summary and ranked snippets into maxChars. It
// drops the oldest turns first, then the lowest-ranked snippets; if the
// package is still too large the summary is cut to maxChars/3 runes. Inputs
// are not modified.
func BuildContext(turns []Turn, summary string, snippets []Snippet, maxChars int) Package {
	p := Package{Turns: turns, Summary: summary, Snippets: snippets}
	if maxChars < 0 {
		maxChars = 0
	}
	size := p.Size()
	for size > maxChars && len(p.Turns) > 0 {
		size -= utf8.RuneCountInString(p.Turns[0].Role) + utf8.RuneCountInString(p.Turns[0].Content)
		p.Turns = p.Turns[1:]
	}
	for size > maxChars && len(p.Snippets) > 0 {
		last := len(p.Snippets) - 1
		size -= utf8.RuneCountInString(p.Snippets[last].Text)
		p.Snippets = p.Snippets[:last]
	}
	if size > maxChars {
		if r := []rune(p.Summary); len(r) > maxChars/3 {
			p.Summary = string(r[:maxChars/3])
		}
	}
	return p
}
