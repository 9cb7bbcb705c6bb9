package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLoggerBeforeInitialize(t *testing.T) {
	l := GetLogger()
	assert.NotNil(t, l, "fallback logger should always be available")
}

func TestInitializeIsIdempotent(t *testing.T) {
	assert.NoError(t, Initialize(true))
	assert.NoError(t, Initialize(false))
}

func TestAppendContextFields(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, RoomCodeKey, "ABC234")
	ctx = context.WithValue(ctx, PlayerIDKey, "player_x")

	fields := appendContextFields(ctx, nil)

	keys := make(map[string]bool, len(fields))
	for _, f := range fields {
		keys[f.Key] = true
	}
	assert.True(t, keys["request_id"])
	assert.True(t, keys["room_code"])
	assert.True(t, keys["player_id"])
	assert.True(t, keys["service"])
}

func TestAppendContextFieldsNilContext(t *testing.T) {
	assert.Empty(t, appendContextFields(nil, nil))
}

func TestRedactToken(t *testing.T) {
	assert.Equal(t, "***", RedactToken("short"))
	assert.Equal(t, "abcdefgh***", RedactToken("abcdefghijklmnop"))
}
