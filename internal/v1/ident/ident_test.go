package ident

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoomCodeAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := NewRoomCode()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		for _, c := range code {
			assert.Contains(t, CodeAlphabet, string(c))
		}
		// Ambiguous glyphs must never appear.
		assert.NotContains(t, code, "I")
		assert.NotContains(t, code, "O")
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "1")
	}
}

func TestNewIDIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID("round")
		assert.True(t, strings.HasPrefix(id, "round_"))
		assert.False(t, seen[id], "ids must not repeat")
		seen[id] = true
	}
}

func TestNewSecretMinimumEntropy(t *testing.T) {
	s := NewSecret(64) // below the floor, should be raised to 128 bits
	assert.GreaterOrEqual(t, len(s), 22) // 16 bytes base64url

	a := NewSecret(128)
	b := NewSecret(128)
	assert.NotEqual(t, a, b)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("token", "token"))
	assert.False(t, Equal("token", "Token"))
	assert.False(t, Equal("token", ""))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "ABC234", NormalizeCode("  abc234 "))
}
