// Package fingerprint derives stable exact-cache keys from request payloads.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Key computes the canonical cache key for an (endpoint, backend, subset)
// triple. The subset map is serialized as JSON with lexicographically sorted
// keys and no insignificant whitespace, then hashed with SHA-256. A subset
// that cannot be serialized is an error; hashing a partial form would let
// distinct requests collide on one key.
func Key(endpoint, backend string, fields map[string]any) (string, error) {
	// encoding/json sorts map keys, which is exactly the canonical form.
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshaling fingerprint fields: %w", err)
	}
	h := sha256.Sum256(data)
	return endpoint + ":" + backend + ":" + hex.EncodeToString(h[:]), nil
}

// Normalize lowercases, collapses whitespace runs to a single space, trims,
// and strips ASCII punctuation. It is applied to the free-text field of the
// cache-key subset only; the body forwarded upstream is never touched.
func Normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsSpace(r):
			space = true
		case r < 128 && (unicode.IsPunct(r) || unicode.IsSymbol(r)):
			// dropped
		default:
			if space && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			space = false
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
