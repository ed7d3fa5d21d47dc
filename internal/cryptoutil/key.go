// Package cryptoutil parses the secret keys nexus is configured with.
package cryptoutil

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// MinKeyBytes is the minimum decoded length of a signing key.
const MinKeyBytes = 32

// ErrKeyTooShort is returned for keys shorter than MinKeyBytes.
var ErrKeyTooShort = errors.New("key too short")

// IsHexString reports whether s consists entirely of hexadecimal characters.
// It returns true for an empty string.
func IsHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// DecodeKey accepts 64+ hex characters (decoded) or at least MinKeyBytes
// raw bytes (used as is). Even-length all-hex input is always decoded.
func DecodeKey(key string) ([]byte, error) {
	n := len(key)
	if n >= 2*MinKeyBytes && n%2 == 0 && IsHexString(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("decoding hex key: %w", err)
		}
		return decoded, nil
	}
	if n < MinKeyBytes {
		return nil, fmt.Errorf("%w: need at least %d bytes or %d hex characters (got %d)", ErrKeyTooShort, MinKeyBytes, 2*MinKeyBytes, n)
	}
	return []byte(key), nil
}
