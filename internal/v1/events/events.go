// Package events builds the wire envelopes published on the bus. Handlers,
// the hub, and the sweeper all publish through these constructors so the
// payload shape stays in one place.
package events

import (
	"encoding/json"

	"github.com/waustin14/StoryFill/internal/v1/bus"
	"github.com/waustin14/StoryFill/internal/v1/game"
)

// SnapshotPayload is the body of a room.snapshot event.
type SnapshotPayload struct {
	RoomSnapshot game.Snapshot `json:"room_snapshot"`
	Progress     game.Progress `json:"progress"`
}

// ExpiredPayload is the body of a room.expired event.
type ExpiredPayload struct {
	RoomCode string `json:"room_code"`
	Reason   string `json:"reason"`
}

// Snapshot wraps the room's current snapshot and progress. Call with the
// room lock held so the version in the envelope matches the payload.
func Snapshot(room *game.Room) bus.Event {
	payload, _ := json.Marshal(SnapshotPayload{
		RoomSnapshot: room.Snapshot(),
		Progress:     room.Progress(),
	})
	return bus.Event{
		Type:         bus.EventRoomSnapshot,
		RoomID:       room.ID,
		RoomCode:     room.Code,
		StateVersion: room.StateVersion,
		Payload:      payload,
	}
}

// Expired announces a room's terminal transition to its subscribers.
// Reason is "ttl" for sweeper reclaims or "ended" when the host closes
// the room.
func Expired(room *game.Room, reason string) bus.Event {
	payload, _ := json.Marshal(ExpiredPayload{RoomCode: room.Code, Reason: reason})
	return bus.Event{
		Type:         bus.EventRoomExpired,
		RoomID:       room.ID,
		RoomCode:     room.Code,
		StateVersion: room.StateVersion,
		Payload:      payload,
	}
}
