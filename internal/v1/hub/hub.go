// Package hub owns the WebSocket side of the game: socket authentication,
// snapshot-first delivery, heartbeats, and the disconnect grace window that
// feeds prompt reassignment.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/auth"
	"github.com/waustin14/StoryFill/internal/v1/bus"
	"github.com/waustin14/StoryFill/internal/v1/events"
	"github.com/waustin14/StoryFill/internal/v1/game"
	"github.com/waustin14/StoryFill/internal/v1/ident"
	"github.com/waustin14/StoryFill/internal/v1/logging"
	"github.com/waustin14/StoryFill/internal/v1/metrics"
	"github.com/waustin14/StoryFill/internal/v1/store"
)

// Hub coordinates every live socket on this instance.
type Hub struct {
	store       *store.Store
	bus         *bus.Bus
	minter      *auth.Minter
	idleTimeout time.Duration
	grace       time.Duration

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}
	presence map[string]int // roomID+playerID -> open socket count
}

func New(st *store.Store, b *bus.Bus, minter *auth.Minter, idleTimeout, grace time.Duration, checkOrigin func(*http.Request) bool) *Hub {
	return &Hub{
		store:       st,
		bus:         b,
		minter:      minter,
		idleTimeout: idleTimeout,
		grace:       grace,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		sessions: make(map[*session]struct{}),
		presence: make(map[string]int),
	}
}

func presenceKey(roomID, playerID string) string {
	return roomID + ":" + playerID
}

// ServeWs upgrades GET /v1/ws?room_code=&token=. Authentication failures
// are reported as close codes on the upgraded socket so browser clients
// can distinguish them; the HTTP response itself is always 101.
func (h *Hub) ServeWs(c *gin.Context) {
	roomCode := ident.NormalizeCode(c.Query("room_code"))
	token := c.Query("token")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	if roomCode == "" || token == "" {
		closeWith(conn, CloseBadRequest)
		return
	}

	playerID, snapshot, authCode := h.attach(c.Request.Context(), roomCode, token)
	if authCode != 0 {
		closeWith(conn, authCode)
		return
	}

	h.startSession(c.Request.Context(), conn, roomCode, snapshot, playerID)
}

// attach authenticates the token against the room and marks the player
// connected. Returns a close code on failure.
func (h *Hub) attach(ctx context.Context, roomCode, token string) (playerID string, snap events.SnapshotPayload, code int) {
	claims, err := h.minter.Verify(token)
	if err != nil {
		// An unparseable token is a bad request, not an auth failure.
		return "", snap, CloseBadRequest
	}

	now := time.Now()
	storeErr := h.store.WithRoom(roomCode, func(room *game.Room) *apierr.Error {
		if room.State == game.StateExpired {
			return apierr.Expired("Room expired.")
		}
		if !ident.Equal(claims.RoomID, room.ID) {
			return apierr.Auth("Token does not match room.")
		}
		switch claims.Role {
		case auth.RoleHost:
			playerID = room.HostPlayerID
		case auth.RolePlayer:
			playerID = claims.PlayerID
		}
		if playerID == "" || room.GetPlayer(playerID) == nil {
			return apierr.Auth("Player not found in room.")
		}
		room.MarkConnected(playerID, now)
		snap = events.SnapshotPayload{RoomSnapshot: room.Snapshot(), Progress: room.Progress()}
		return nil
	})
	if storeErr != nil {
		switch storeErr.Kind {
		case apierr.KindNotFound:
			return "", snap, CloseRoomNotFound
		case apierr.KindExpired:
			return "", snap, CloseRoomExpired
		default:
			return "", snap, CloseAuthFailed
		}
	}
	return playerID, snap, 0
}

func (h *Hub) startSession(ctx context.Context, conn wsConn, roomCode string, snap events.SnapshotPayload, playerID string) {
	roomID := snap.RoomSnapshot.RoomID
	s := newSession(conn, h, roomID, roomCode, playerID)

	ch, cancel := h.bus.Subscribe(roomID)
	s.unsubscribe = cancel

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.presence[presenceKey(roomID, playerID)]++
	h.mu.Unlock()
	metrics.IncConnection()

	// The new socket gets its snapshot first, ahead of any bus traffic.
	s.enqueue(snapshotFrame(snap))

	go s.writePump()
	go s.pumpEvents(ch)

	// Everyone else learns about the presence change.
	h.publishSnapshot(ctx, roomID)

	logging.Info(ctx, "socket connected",
		zap.String("room_code", roomCode), zap.String("player_id", playerID))

	s.readPump()
}

// handleDisconnect runs when a socket's read pump exits. Presence only
// flips when the player's last socket goes; the grace timer then arms the
// reassignment check.
func (h *Hub) handleDisconnect(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	key := presenceKey(s.roomID, s.playerID)
	h.presence[key]--
	last := h.presence[key] <= 0
	if last {
		delete(h.presence, key)
	}
	h.mu.Unlock()

	if !last {
		return
	}

	ctx := context.Background()
	now := time.Now()
	changed := false
	h.store.WithRoomByID(s.roomID, func(room *game.Room) *apierr.Error {
		if room.State == game.StateExpired {
			return nil
		}
		if p := room.GetPlayer(s.playerID); p != nil && p.Connected {
			room.MarkDisconnected(s.playerID, now)
			changed = true
		}
		return nil
	})
	if changed {
		h.publishSnapshot(ctx, s.roomID)
		roomID := s.roomID
		time.AfterFunc(h.grace, func() { h.reassignAfterGrace(roomID) })
	}

	logging.Info(ctx, "socket disconnected",
		zap.String("room_code", s.roomCode), zap.String("player_id", s.playerID))
}

// reassignAfterGrace redeals the prompts of players still disconnected
// once the grace window lapses. A no-op if they came back.
func (h *Hub) reassignAfterGrace(roomID string) {
	moved := 0
	h.store.WithRoomByID(roomID, func(room *game.Room) *apierr.Error {
		moved = room.ReassignOverdue(time.Now())
		return nil
	})
	if moved > 0 {
		h.publishSnapshot(context.Background(), roomID)
	}
}

// publishSnapshot publishes the room's current snapshot under its lock.
func (h *Hub) publishSnapshot(ctx context.Context, roomID string) {
	var ev *bus.Event
	h.store.WithRoomByID(roomID, func(room *game.Room) *apierr.Error {
		e := events.Snapshot(room)
		ev = &e
		return nil
	})
	if ev != nil {
		h.bus.Publish(ctx, *ev)
	}
}

// touchRoom refreshes the room's activity clock on heartbeat.
func (h *Hub) touchRoom(roomID string) {
	h.store.WithRoomByID(roomID, func(room *game.Room) *apierr.Error {
		room.Touch(time.Now())
		return nil
	})
}

// Shutdown closes every live socket and waits briefly for their pumps.
func (h *Hub) Shutdown(ctx context.Context) {
	h.mu.Lock()
	open := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.close(websocket.CloseGoingAway)
	}
	for _, s := range open {
		select {
		case <-s.done:
		case <-ctx.Done():
			return
		}
	}
	logging.Info(ctx, "all sockets closed", zap.Int("count", len(open)))
}

func snapshotFrame(snap events.SnapshotPayload) queued {
	payload, _ := json.Marshal(snap)
	return queued{
		frame:        frame{Type: bus.EventRoomSnapshot, Payload: payload},
		stateVersion: snap.RoomSnapshot.StateVersion,
		isSnapshot:   true,
	}
}

func closeWith(conn wsConn, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}
