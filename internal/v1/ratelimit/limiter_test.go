package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/config"
)

func testConfig() *config.Config {
	return &config.Config{
		RateLimitCreateRoom:      "2-M",
		RateLimitJoinRoom:        "3-M",
		RateLimitSubmitBurst:     "1-S",
		RateLimitSubmitWindow:    "60-M",
		RateLimitNarrationCount:  2,
		RateLimitNarrationWindow: 10 * time.Minute,
	}
}

func TestCreateRoomPerIP(t *testing.T) {
	l, err := New(testConfig(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.Nil(t, l.AllowCreateRoom(ctx, "10.0.0.1"))
	require.Nil(t, l.AllowCreateRoom(ctx, "10.0.0.1"))

	rlErr := l.AllowCreateRoom(ctx, "10.0.0.1")
	require.NotNil(t, rlErr)
	assert.Equal(t, apierr.KindRateLimited, rlErr.Kind)
	assert.GreaterOrEqual(t, rlErr.RetryAfter, 1)

	// A different IP is unaffected.
	assert.Nil(t, l.AllowCreateRoom(ctx, "10.0.0.2"))
}

func TestSubmitBurstThenWindow(t *testing.T) {
	l, err := New(testConfig(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.Nil(t, l.AllowSubmit(ctx, "ABCDEF", "player_1"))

	// The one-per-second burst bucket trips on the immediate retry.
	rlErr := l.AllowSubmit(ctx, "ABCDEF", "player_1")
	require.NotNil(t, rlErr)
	assert.Equal(t, apierr.KindRateLimited, rlErr.Kind)

	// A different player in the same room has its own bucket.
	assert.Nil(t, l.AllowSubmit(ctx, "ABCDEF", "player_2"))
}

func TestNarrationPerRoom(t *testing.T) {
	l, err := New(testConfig(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.Nil(t, l.AllowNarration(ctx, "ABCDEF"))
	require.Nil(t, l.AllowNarration(ctx, "ABCDEF"))

	rlErr := l.AllowNarration(ctx, "ABCDEF")
	require.NotNil(t, rlErr)
	assert.Equal(t, apierr.KindRateLimited, rlErr.Kind)

	assert.Nil(t, l.AllowNarration(ctx, "GHIJKL"))
}

func TestRedisStoreSharedCounters(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	cfg := testConfig()
	l1, err := New(cfg, client)
	require.NoError(t, err)
	l2, err := New(cfg, client)
	require.NoError(t, err)

	ctx := context.Background()
	require.Nil(t, l1.AllowCreateRoom(ctx, "10.0.0.1"))
	require.Nil(t, l2.AllowCreateRoom(ctx, "10.0.0.1"))

	// The two instances share one counter via Redis.
	rlErr := l1.AllowCreateRoom(ctx, "10.0.0.1")
	require.NotNil(t, rlErr)
	assert.Equal(t, apierr.KindRateLimited, rlErr.Kind)
}

func TestFailOpenWhenStoreDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l, err := New(testConfig(), client)
	require.NoError(t, err)

	mr.Close()

	// A dead store must not block gameplay.
	assert.Nil(t, l.AllowCreateRoom(context.Background(), "10.0.0.1"))
}

func TestInvalidRates(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitCreateRoom = "lots"
	_, err := New(cfg, nil)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.RateLimitNarrationCount = 0
	_, err = New(cfg, nil)
	assert.Error(t, err)
}
