// Package ident generates room codes, opaque identifiers, and secrets.
package ident

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CodeAlphabet deliberately drops I, O, 0 and 1: room codes are dictated
// over voice, and those glyphs are routinely misheard or misread.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the fixed length of a room code.
const CodeLength = 6

// NewRoomCode returns a uniform random room code drawn from CodeAlphabet.
func NewRoomCode() (string, error) {
	var sb strings.Builder
	sb.Grow(CodeLength)

	// Rejection sampling keeps the distribution uniform; 32 divides 256 so
	// a simple modulo works, but the guard stays in case the alphabet changes.
	max := byte(256 - (256 % len(CodeAlphabet)))
	buf := make([]byte, 1)
	for sb.Len() < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		if buf[0] >= max {
			continue
		}
		sb.WriteByte(CodeAlphabet[int(buf[0])%len(CodeAlphabet)])
	}
	return sb.String(), nil
}

// NewID returns a prefixed opaque identifier, e.g. "room_4f9c...".
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSecret returns a URL-safe secret with at least bits of entropy.
// crypto/rand.Read cannot fail on supported platforms.
func NewSecret(bits int) string {
	if bits < 128 {
		bits = 128
	}
	buf := make([]byte, (bits+7)/8)
	_, _ = rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NormalizeCode uppercases and trims a user-supplied room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
