// Package bus fans room events out to their subscribers. Fan-out is
// in-process; an optional Redis relay bridges instances so every pod sees
// every room's events.
package bus

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/waustin14/StoryFill/internal/v1/logging"
	"github.com/waustin14/StoryFill/internal/v1/metrics"
)

// Event types carried on the bus.
const (
	EventRoomSnapshot = "room.snapshot"
	EventRoomExpired  = "room.expired"
)

// Event is the envelope every subscriber receives. Payload is the
// marshalled snapshot-plus-progress (or expiry notice) so subscribers
// forward it without re-encoding.
type Event struct {
	Type         string          `json:"type"`
	RoomID       string          `json:"room_id"`
	RoomCode     string          `json:"room_code"`
	StateVersion int64           `json:"state_version"`
	Payload      json.RawMessage `json:"payload"`
}

// subscriberBuffer bounds each subscriber channel. Slow consumers drop
// events; clients resync from the next snapshot.
const subscriberBuffer = 16

type subscriber struct {
	id int64
	ch chan Event
}

// Bus is the in-process fan-out. Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID int64
	rooms  map[string]map[int64]*subscriber
	relay  *Relay
}

// New creates a bus. relay may be nil for single-instance deployments.
func New(relay *Relay) *Bus {
	b := &Bus{rooms: make(map[string]map[int64]*subscriber)}
	b.relay = relay
	if relay != nil {
		relay.attach(b)
	}
	return b
}

// Subscribe registers for a room's events. The returned cancel func must be
// called exactly once; the channel is closed by it.
func (b *Bus) Subscribe(roomID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscriber{id: b.nextID, ch: make(chan Event, subscriberBuffer)}
	if b.rooms[roomID] == nil {
		b.rooms[roomID] = make(map[int64]*subscriber)
	}
	b.rooms[roomID][sub.id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.rooms[roomID]
		if subs == nil {
			return
		}
		if _, ok := subs[sub.id]; !ok {
			return
		}
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.rooms, roomID)
		}
		close(sub.ch)
	}
	return sub.ch, cancel
}

// Publish delivers an event to every local subscriber of its room and, when
// a relay is configured, to the other instances. Delivery to a full
// subscriber channel drops the event rather than blocking the publisher;
// the room lock is held across Publish so per-room ordering holds.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.deliverLocal(ctx, ev)
	if b.relay != nil {
		b.relay.publish(ctx, ev)
	}
}

func (b *Bus) deliverLocal(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.rooms[ev.RoomID]))
	for _, s := range b.rooms[ev.RoomID] {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
			metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
		default:
			metrics.EventsDropped.WithLabelValues(ev.Type).Inc()
			logging.Warn(ctx, "event dropped for slow subscriber",
				zap.String("room_id", ev.RoomID),
				zap.String("event", ev.Type))
		}
	}
}

// SubscriberCount reports live subscribers for a room. Test hook and
// sweeper input for removal decisions.
func (b *Bus) SubscriberCount(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[roomID])
}
