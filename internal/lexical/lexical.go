// Package lexical provides the token-overlap scoring shared by the routing
// cascade and the snippet retriever.
package lexical

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Set is a set of lowercase tokens.
type Set map[string]struct{}

// Tokenize returns the NFC-normalised, lowercased word tokens of text.
func Tokenize(text string) Set {
	normalized := strings.ToLower(norm.NFC.String(text))
	tokens := make(Set)
	for _, tok := range tokenPattern.FindAllString(normalized, -1) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

// TokenizeAll returns the union of the tokens of every phrase.
func TokenizeAll(phrases []string) Set {
	tokens := make(Set)
	for _, p := range phrases {
		for tok := range Tokenize(p) {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// Overlap returns |query ∩ candidate| / |candidate|, or 0 when candidate is
// empty.
func Overlap(query, candidate Set) float64 {
	if len(candidate) == 0 {
		return 0
	}
	shared := 0
	for tok := range candidate {
		if _, ok := query[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(candidate))
}
