package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/bus"
	"github.com/waustin14/StoryFill/internal/v1/game"
	"github.com/waustin14/StoryFill/internal/v1/ident"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newRoom(code string) *game.Room {
	return game.NewRoom(ident.NewID("room"), code, "t-forest-mishap", game.DefaultRules(), t0)
}

func TestStoreAddLookupRemove(t *testing.T) {
	s := New()
	room := newRoom("AAAAAA")
	require.Nil(t, s.Add(room))
	assert.Equal(t, 1, s.Count())

	err := s.WithRoom("AAAAAA", func(r *game.Room) *apierr.Error {
		assert.Equal(t, room.ID, r.ID)
		return nil
	})
	require.Nil(t, err)

	err = s.WithRoom("ZZZZZZ", func(*game.Room) *apierr.Error { return nil })
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindNotFound, err.Kind)

	s.Remove(room.ID)
	s.Remove(room.ID) // idempotent
	assert.Zero(t, s.Count())

	err = s.WithRoom("AAAAAA", func(*game.Room) *apierr.Error { return nil })
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindNotFound, err.Kind)
}

func TestStoreRejectsCodeCollision(t *testing.T) {
	s := New()
	require.Nil(t, s.Add(newRoom("AAAAAA")))
	err := s.Add(newRoom("AAAAAA"))
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindStateConflict, err.Kind)
}

func TestWithRoomSerializesMutations(t *testing.T) {
	s := New()
	room := newRoom("AAAAAA")
	require.Nil(t, s.Add(room))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.WithRoom("AAAAAA", func(r *game.Room) *apierr.Error {
				r.Touch(t0)
				r.StateVersion++
				return nil
			})
		}()
	}
	wg.Wait()

	s.WithRoom("AAAAAA", func(r *game.Room) *apierr.Error {
		assert.Equal(t, int64(51), r.StateVersion)
		return nil
	})
}

func TestSweeperExpiresThenRemoves(t *testing.T) {
	s := New()
	b := bus.New(nil)
	room := newRoom("AAAAAA")
	require.Nil(t, s.Add(room))

	sw := NewSweeper(s, b, time.Hour, time.Minute, 5*time.Second)
	clock := t0
	sw.now = func() time.Time { return clock }

	ch, cancel := b.Subscribe(room.ID)
	defer cancel()

	// Fresh room survives a sweep.
	sw.Sweep(context.Background())
	assert.Equal(t, 1, s.Count())

	// Past TTL: expired and announced exactly once.
	clock = t0.Add(time.Hour + time.Second)
	sw.Sweep(context.Background())
	assert.Equal(t, 1, s.Count())

	select {
	case ev := <-ch:
		assert.Equal(t, bus.EventRoomExpired, ev.Type)
		assert.Equal(t, "AAAAAA", ev.RoomCode)
	default:
		t.Fatal("expected a room.expired event")
	}

	// Re-sweeping an expired room publishes nothing new.
	sw.Sweep(context.Background())
	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event: %+v", ev)
	default:
	}

	// The room lingers through the removal grace, then goes away.
	s.WithRoomByID(room.ID, func(r *game.Room) *apierr.Error {
		assert.Equal(t, game.StateExpired, r.State)
		return nil
	})

	clock = clock.Add(6 * time.Second)
	sw.Sweep(context.Background())
	assert.Zero(t, s.Count())
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	s := New()
	b := bus.New(nil)
	sw := NewSweeper(s, b, time.Hour, 10*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sw.Run(ctx)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
