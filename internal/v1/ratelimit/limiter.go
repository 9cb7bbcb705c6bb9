// Package ratelimit enforces the per-endpoint quotas using Redis-backed
// counters when available, falling back to local memory.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/config"
	"github.com/waustin14/StoryFill/internal/v1/logging"
	"github.com/waustin14/StoryFill/internal/v1/metrics"
)

// Limiter holds one limiter instance per quota bucket.
type Limiter struct {
	createRoom   *limiter.Limiter
	joinRoom     *limiter.Limiter
	submitBurst  *limiter.Limiter
	submitWindow *limiter.Limiter
	narration    *limiter.Limiter
	store        limiter.Store
}

// New builds the limiter set from the configured rates. redisClient may be
// nil; counters are then instance-local.
func New(cfg *config.Config, redisClient *redis.Client) (*Limiter, error) {
	createRate, err := limiter.NewRateFromFormatted(cfg.RateLimitCreateRoom)
	if err != nil {
		return nil, fmt.Errorf("invalid create room rate: %w", err)
	}
	joinRate, err := limiter.NewRateFromFormatted(cfg.RateLimitJoinRoom)
	if err != nil {
		return nil, fmt.Errorf("invalid join room rate: %w", err)
	}
	burstRate, err := limiter.NewRateFromFormatted(cfg.RateLimitSubmitBurst)
	if err != nil {
		return nil, fmt.Errorf("invalid submit burst rate: %w", err)
	}
	windowRate, err := limiter.NewRateFromFormatted(cfg.RateLimitSubmitWindow)
	if err != nil {
		return nil, fmt.Errorf("invalid submit window rate: %w", err)
	}
	if cfg.RateLimitNarrationCount <= 0 || cfg.RateLimitNarrationWindow <= 0 {
		return nil, fmt.Errorf("invalid narration rate: %d per %s",
			cfg.RateLimitNarrationCount, cfg.RateLimitNarrationWindow)
	}
	// The narration quota (N per arbitrary window) has no formatted-rate
	// spelling, so it is built directly.
	narrationRate := limiter.Rate{
		Period: cfg.RateLimitNarrationWindow,
		Limit:  int64(cfg.RateLimitNarrationCount),
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "storyfill:limiter:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "rate limiter using memory store, counters are instance-local")
	}

	return &Limiter{
		createRoom:   limiter.New(store, createRate),
		joinRoom:     limiter.New(store, joinRate),
		submitBurst:  limiter.New(store, burstRate),
		submitWindow: limiter.New(store, windowRate),
		narration:    limiter.New(store, narrationRate),
		store:        store,
	}, nil
}

// check consumes one token from a bucket. Store failures fail open so a
// degraded Redis never takes the game down.
func (l *Limiter) check(ctx context.Context, inst *limiter.Limiter, bucket, key string) *apierr.Error {
	res, err := inst.Get(ctx, key)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed", zap.String("bucket", bucket), zap.Error(err))
		return nil
	}
	if res.Reached {
		metrics.RateLimitRejections.WithLabelValues(bucket).Inc()
		retryAfter := int(res.Reset - time.Now().Unix())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return apierr.RateLimited("Too many requests. Please slow down and try again.", retryAfter)
	}
	return nil
}

// AllowCreateRoom gates room creation per client IP.
func (l *Limiter) AllowCreateRoom(ctx context.Context, ip string) *apierr.Error {
	return l.check(ctx, l.createRoom, "create_room", fmt.Sprintf("ip:%s:create_room", ip))
}

// AllowJoinRoom gates join attempts per client IP.
func (l *Limiter) AllowJoinRoom(ctx context.Context, ip string) *apierr.Error {
	return l.check(ctx, l.joinRoom, "join_room", fmt.Sprintf("ip:%s:join_room", ip))
}

// AllowSubmit gates prompt submissions per room and player: a one-per-second
// burst bucket in front of the per-minute window.
func (l *Limiter) AllowSubmit(ctx context.Context, roomCode, playerID string) *apierr.Error {
	key := fmt.Sprintf("room:%s:player:%s:submit_prompt", roomCode, playerID)
	if err := l.check(ctx, l.submitBurst, "submit_burst", key+":burst"); err != nil {
		return err
	}
	return l.check(ctx, l.submitWindow, "submit_window", key+":window")
}

// AllowNarration gates narration requests per room.
func (l *Limiter) AllowNarration(ctx context.Context, roomCode string) *apierr.Error {
	return l.check(ctx, l.narration, "narration", fmt.Sprintf("room:%s:narrate", roomCode))
}
