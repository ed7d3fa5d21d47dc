// Package classifier redacts personal data from message text before it is
// written to the decision log.
package classifier

import (
	"context"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	nexusotel "github.com/dativo-io/nexus/internal/otel"
)

var tracer = nexusotel.Tracer("github.com/dativo-io/nexus/internal/classifier")

// Redaction is the result of redacting a text.
type Redaction struct {
	Text string `json:"text"`
	// Replacements maps each matched source string to its token. A value
	// seen more than once maps to the last token assigned.
	Replacements map[string]string `json:"replacements"`
}

// Redactor applies recognizers in order. Token numbers are shared across
// recognizers: the n-th token is numbered by the count of distinct values
// replaced before it, plus one.
type Redactor struct {
	recognizers []recognizer
}

// NewRedactor builds a redactor from the embedded defaults overlaid with
// extra recognizers.
func NewRedactor(extra ...RecognizerConfig) (*Redactor, error) {
	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}
	compiled, err := compile(MergeRecognizers(defaults, extra))
	if err != nil {
		return nil, fmt.Errorf("compiling recognizers: %w", err)
	}
	return &Redactor{recognizers: compiled}, nil
}

// NewRedactorFromFile overlays the recognizers of path on the embedded
// defaults. An empty path or a missing file yields the defaults.
func NewRedactorFromFile(path string) (*Redactor, error) {
	if path == "" {
		return NewRedactor()
	}
	rf, err := LoadRecognizerFile(path)
	if err != nil {
		return nil, err
	}
	if rf == nil {
		return NewRedactor()
	}
	return NewRedactor(rf.Recognizers...)
}

// Redact replaces every match of every recognizer with its token. Later
// recognizers run on the output of earlier ones, so tokens are never
// re-matched as long as recognizers do not match bracketed placeholders.
func (r *Redactor) Redact(ctx context.Context, text string) Redaction {
	_, span := tracer.Start(ctx, "classifier.redact")
	defer span.End()

	replacements := map[string]string{}
	out := text
	for _, rec := range r.recognizers {
		out = rec.re.ReplaceAllStringFunc(out, func(src string) string {
			token := "[" + rec.placeholder + "_" + strconv.Itoa(len(replacements)+1) + "]"
			replacements[src] = token
			return token
		})
	}

	span.SetAttributes(attribute.Int("pii.replacements", len(replacements)))
	return Redaction{Text: out, Replacements: replacements}
}
