package classifier

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDefaultRedactor(t *testing.T) *Redactor {
	t.Helper()
	r, err := NewRedactor()
	require.NoError(t, err)
	return r
}

func TestRedact(t *testing.T) {
	r := newDefaultRedactor(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no pii", "Wann habt ihr geöffnet?", "Wann habt ihr geöffnet?"},
		{"email", "Mail an max@example.com bitte", "Mail an [EMAIL_1] bitte"},
		{"phone", "Ruf mich an: +49 170 1234567", "Ruf mich an: [PHONE_1]"},
		{"shared counter", "max@example.com oder 0170/1234567", "[EMAIL_1] oder [PHONE_2]"},
		{"short digits untouched", "Tisch für 4 um 19 Uhr", "Tisch für 4 um 19 Uhr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Redact(ctx, tt.in).Text)
		})
	}
}

func TestRedact_Replacements(t *testing.T) {
	res := newDefaultRedactor(t).Redact(context.Background(), "a@b.de und c@d.de")
	assert.Equal(t, "[EMAIL_1] und [EMAIL_2]", res.Text)
	assert.Equal(t, map[string]string{"a@b.de": "[EMAIL_1]", "c@d.de": "[EMAIL_2]"}, res.Replacements)
}

func TestRedact_RepeatedValueKeepsLastToken(t *testing.T) {
	res := newDefaultRedactor(t).Redact(context.Background(), "a@b.de, a@b.de")
	assert.Equal(t, "[EMAIL_1], [EMAIL_2]", res.Text)
	assert.Equal(t, "[EMAIL_2]", res.Replacements["a@b.de"])
	assert.Len(t, res.Replacements, 1)
}

func TestNewRedactor_Overlay(t *testing.T) {
	disabled := false
	r, err := NewRedactor(
		RecognizerConfig{Name: "phone", Enabled: &disabled},
		RecognizerConfig{Name: "iban", Placeholder: "IBAN", Regex: `DE\d{20}`},
	)
	require.NoError(t, err)
	res := r.Redact(context.Background(), "DE89370400440532013000 +49 170 1234567")
	assert.Equal(t, "[IBAN_1] +49 170 1234567", res.Text)
}

func TestNewRedactor_InvalidRegex(t *testing.T) {
	_, err := NewRedactor(RecognizerConfig{Name: "bad", Placeholder: "X", Regex: "("})
	assert.Error(t, err)
}

func TestNewRedactorFromFile(t *testing.T) {
	r, err := NewRedactorFromFile("")
	require.NoError(t, err)
	assert.Equal(t, "[PHONE_1]", r.Redact(context.Background(), "+49 170 1234567").Text)

	r, err = NewRedactorFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "[EMAIL_1]", r.Redact(context.Background(), "x@y.com").Text)

	path := filepath.Join(t.TempDir(), "pii.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`recognizers:
  - name: customer_no
    placeholder: CUSTOMER
    regex: 'K-\d{6}'
`), 0o600))
	r, err = NewRedactorFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[EMAIL_1] [CUSTOMER_2]", r.Redact(context.Background(), "x@y.com K-123456").Text)

	require.NoError(t, os.WriteFile(path, []byte("recognizers: [oops"), 0o600))
	_, err = NewRedactorFromFile(path)
	assert.Error(t, err)
}
