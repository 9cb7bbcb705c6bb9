package share

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
)

var t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func TestCreateAndGet(t *testing.T) {
	s := NewStore(7 * 24 * time.Hour)
	a := s.Create("room_1", "ABCDEF", "round_1", "Once upon a time.", t0)

	require.NotEmpty(t, a.Token)
	assert.Equal(t, t0.Add(7*24*time.Hour), a.ExpiresAt)

	got, err := s.Get(a.Token, t0.Add(time.Hour))
	require.Nil(t, err)
	assert.Equal(t, "Once upon a time.", got.Story)
	assert.Equal(t, "ABCDEF", got.RoomCode)
	assert.Equal(t, "round_1", got.RoundID)
}

func TestGetUnknownToken(t *testing.T) {
	s := NewStore(time.Hour)
	_, err := s.Get("nope", t0)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindNotFound, err.Kind)
}

func TestExpiredSharePurgedLazily(t *testing.T) {
	s := NewStore(time.Hour)
	a := s.Create("room_1", "ABCDEF", "round_1", "story", t0)

	// Exactly at the boundary the share still resolves.
	_, err := s.Get(a.Token, t0.Add(time.Hour))
	require.Nil(t, err)

	_, err = s.Get(a.Token, t0.Add(time.Hour+time.Second))
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindExpired, err.Kind)
	assert.Zero(t, s.Count())

	// Once purged, the token is simply unknown.
	_, err = s.Get(a.Token, t0.Add(2*time.Hour))
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindNotFound, err.Kind)
}

func TestTokensAreUnique(t *testing.T) {
	s := NewStore(time.Hour)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		a := s.Create("room_1", "ABCDEF", "round_1", "story", t0)
		require.False(t, seen[a.Token])
		seen[a.Token] = true
	}
}
