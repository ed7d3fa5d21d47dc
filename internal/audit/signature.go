package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/dativo-io/nexus/internal/cryptoutil"
)

const signaturePrefix = "hmac-sha256:"

// Signer signs decision records with HMAC-SHA256.
type Signer struct {
	key []byte
}

// NewSigner accepts a raw key of at least 32 bytes, or 64+ hex characters
// decoding to at least 32 bytes.
func NewSigner(key string) (*Signer, error) {
	decoded, err := cryptoutil.DecodeKey(key)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	return &Signer{key: decoded}, nil
}

// Sign returns the signature of rec computed over its JSON form with the
// Signature field cleared.
func (s *Signer) Sign(rec DecisionRecord) (string, error) {
	rec.Signature = ""
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshaling decision for signing: %w", err)
	}
	h := hmac.New(sha256.New, s.key)
	h.Write(data)
	return signaturePrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether rec carries a valid signature.
func (s *Signer) Verify(rec DecisionRecord) bool {
	if rec.Signature == "" {
		return false
	}
	expected, err := s.Sign(rec)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(rec.Signature))
}
