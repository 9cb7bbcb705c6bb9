package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/bus"
	"github.com/waustin14/StoryFill/internal/v1/events"
	"github.com/waustin14/StoryFill/internal/v1/game"
	"github.com/waustin14/StoryFill/internal/v1/logging"
	"github.com/waustin14/StoryFill/internal/v1/metrics"
)

// Sweeper reclaims idle rooms. Each pass expires rooms idle past the TTL,
// publishing exactly one room.expired event per room, then removes rooms
// that have sat in Expired past the removal grace so late readers still
// see 410 instead of 404 for a moment.
type Sweeper struct {
	store        *Store
	bus          *bus.Bus
	ttl          time.Duration
	interval     time.Duration
	removalGrace time.Duration

	now func() time.Time

	// OnExpired, when set, is told about each room the sweeper expires.
	// Used to feed the history sink; must not block.
	OnExpired func(roomID string, at time.Time)
}

func NewSweeper(store *Store, b *bus.Bus, ttl, interval, removalGrace time.Duration) *Sweeper {
	return &Sweeper{
		store:        store,
		bus:          b,
		ttl:          ttl,
		interval:     interval,
		removalGrace: removalGrace,
		now:          time.Now,
	}
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logging.Info(ctx, "room sweeper started",
		zap.Duration("ttl", s.ttl), zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass. Exposed for tests and for a final pass during
// shutdown.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()

	for _, id := range s.store.ids() {
		var expiredEvent *bus.Event
		s.store.WithRoomByID(id, func(room *game.Room) *apierr.Error {
			if room.State == game.StateExpired {
				return nil
			}
			if !room.IsExpired(now, s.ttl) {
				return nil
			}
			if err := room.Expire(now); err != nil {
				return nil
			}
			ev := events.Expired(room, "ttl")
			expiredEvent = &ev
			logging.Info(ctx, "room expired",
				zap.String("room_id", room.ID), zap.String("room_code", room.Code))
			return nil
		})
		if expiredEvent != nil {
			metrics.RoomsExpired.Inc()
			s.bus.Publish(ctx, *expiredEvent)
			if s.OnExpired != nil {
				s.OnExpired(id, now)
			}
		}
	}

	for _, id := range s.store.expiredSince(now.Add(-s.removalGrace)) {
		s.store.Remove(id)
	}
}
