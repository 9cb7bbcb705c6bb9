package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/auth"
	"github.com/waustin14/StoryFill/internal/v1/bus"
	"github.com/waustin14/StoryFill/internal/v1/events"
	"github.com/waustin14/StoryFill/internal/v1/game"
	"github.com/waustin14/StoryFill/internal/v1/ident"
	"github.com/waustin14/StoryFill/internal/v1/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fixture struct {
	store  *store.Store
	bus    *bus.Bus
	hub    *Hub
	server *httptest.Server
	minter *auth.Minter
	room   *game.Room
	host   *game.Player
	player *game.Player
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.New()
	b := bus.New(nil)
	minter := auth.NewMinter(testSecret)

	now := time.Now()
	room := game.NewRoom(ident.NewID("room"), "ABCDEF", "t-forest-mishap", game.DefaultRules(), now)
	host := &game.Player{ID: ident.NewID("player"), DisplayName: "Host", IsHost: true}
	player := &game.Player{ID: ident.NewID("player"), DisplayName: "Guest"}
	require.Nil(t, room.AddPlayer(host, now))
	require.Nil(t, room.AddPlayer(player, now))
	require.Nil(t, st.Add(room))

	hostToken, err := minter.HostToken(room.ID, room.Code, time.Hour)
	require.NoError(t, err)
	room.HostToken = hostToken
	playerToken, err := minter.PlayerToken(room.ID, room.Code, player.ID, time.Hour)
	require.NoError(t, err)
	player.Token = playerToken

	h := New(st, b, minter, 2*time.Second, 50*time.Millisecond, func(*http.Request) bool { return true })

	router := gin.New()
	router.GET("/v1/ws", h.ServeWs)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &fixture{store: st, bus: b, hub: h, server: server, minter: minter,
		room: room, host: host, player: player}
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/v1/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var fr frame
	require.NoError(t, json.Unmarshal(data, &fr))
	return fr
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, code, closeErr.Code)
}

func TestConnectReceivesSnapshotFirst(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "?room_code=ABCDEF&token="+f.player.Token)
	defer conn.Close()

	fr := readFrame(t, conn)
	assert.Equal(t, bus.EventRoomSnapshot, fr.Type)

	var payload events.SnapshotPayload
	require.NoError(t, json.Unmarshal(fr.Payload, &payload))
	assert.Equal(t, "ABCDEF", payload.RoomSnapshot.RoomCode)
	assert.Len(t, payload.RoomSnapshot.Players, 2)
}

func TestConnectCloseCodes(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		query string
		code  int
	}{
		{"missing params", "", CloseBadRequest},
		{"garbage token", "?room_code=ABCDEF&token=garbage", CloseBadRequest},
		{"unknown room", "?room_code=ZZZZZZ&token=" + f.player.Token, CloseRoomNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn := f.dial(t, tc.query)
			defer conn.Close()
			expectClose(t, conn, tc.code)
		})
	}
}

func TestConnectWrongRoomToken(t *testing.T) {
	f := newFixture(t)

	other, err := f.minter.PlayerToken("room_other", "GHIJKL", f.player.ID, time.Hour)
	require.NoError(t, err)

	conn := f.dial(t, "?room_code=ABCDEF&token="+other)
	defer conn.Close()
	expectClose(t, conn, CloseAuthFailed)
}

func TestConnectExpiredRoom(t *testing.T) {
	f := newFixture(t)
	f.store.WithRoomByID(f.room.ID, func(r *game.Room) *apierr.Error {
		return r.Expire(time.Now())
	})

	conn := f.dial(t, "?room_code=ABCDEF&token="+f.player.Token)
	defer conn.Close()
	expectClose(t, conn, CloseRoomExpired)
}

func TestBusEventsReachSocket(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "?room_code=ABCDEF&token="+f.player.Token)
	defer conn.Close()

	readFrame(t, conn) // initial snapshot

	f.store.WithRoomByID(f.room.ID, func(r *game.Room) *apierr.Error {
		r.SetLocked(true, time.Now())
		ev := events.Snapshot(r)
		f.bus.Publish(context.Background(), ev)
		return nil
	})

	for {
		fr := readFrame(t, conn)
		require.Equal(t, bus.EventRoomSnapshot, fr.Type)
		var payload events.SnapshotPayload
		require.NoError(t, json.Unmarshal(fr.Payload, &payload))
		if payload.RoomSnapshot.Locked {
			return
		}
	}
}

func TestDisconnectStartsGraceReassignment(t *testing.T) {
	f := newFixture(t)
	f.store.WithRoomByID(f.room.ID, func(r *game.Room) *apierr.Error {
		return r.Start(time.Now())
	})

	conn := f.dial(t, "?room_code=ABCDEF&token="+f.player.Token)
	readFrame(t, conn)
	conn.Close()

	// After the grace window the disconnected player's prompts move to the
	// host, who is the only player left.
	require.Eventually(t, func() bool {
		left := -1
		f.store.WithRoomByID(f.room.ID, func(r *game.Room) *apierr.Error {
			left = len(r.PlayerPrompts(f.player.ID))
			return nil
		})
		return left == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSnapshotCoalescing(t *testing.T) {
	s := newSession(nil, &Hub{idleTimeout: time.Second}, "room_1", "ABCDEF", "player_1")

	mk := func(version int64) queued {
		payload, _ := json.Marshal(map[string]int64{"state_version": version})
		return queued{
			frame:        frame{Type: bus.EventRoomSnapshot, Payload: payload},
			stateVersion: version,
			isSnapshot:   true,
		}
	}

	s.enqueue(mk(1))
	s.enqueue(mk(2))
	s.enqueue(mk(3))

	q, ok, _ := s.pop()
	require.True(t, ok)
	assert.Equal(t, int64(3), q.stateVersion)

	_, ok, code := s.pop()
	assert.False(t, ok)
	assert.Equal(t, -1, code)
}

func TestQueueOverflowClosesTryAgain(t *testing.T) {
	s := newSession(nil, &Hub{idleTimeout: time.Second}, "room_1", "ABCDEF", "player_1")

	// Non-coalescable frames fill the queue.
	for i := 0; i <= outboundLimit; i++ {
		s.enqueue(queued{frame: frame{Type: bus.EventRoomExpired}})
	}

	assert.True(t, s.isClosed())
	s.mu.Lock()
	assert.Equal(t, CloseTryAgain, s.closeCode)
	s.mu.Unlock()
}
