package lexical

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("Ich möchte einen TERMIN buchen, bitte!")
	assert.Len(t, got, 6)
	assert.Contains(t, got, "termin")
	assert.Contains(t, got, "möchte")
}

func TestTokenize_NormalisesDecomposedUmlauts(t *testing.T) {
	got := Tokenize("mo\u0308chte")
	assert.Contains(t, got, "möchte")
}

func TestOverlap(t *testing.T) {
	q := Tokenize("termin buchen morgen")
	c := TokenizeAll([]string{"termin vereinbaren", "buchen"})
	assert.InDelta(t, 2.0/3.0, Overlap(q, c), 1e-9)
	assert.Equal(t, 0.0, Overlap(q, Set{}))
}
