package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/waustin14/StoryFill/internal/v1/bus"
	"github.com/waustin14/StoryFill/internal/v1/logging"
	"github.com/waustin14/StoryFill/internal/v1/metrics"
)

// Close codes surfaced to clients. Transition errors never become error
// frames; the close code is the whole story.
const (
	CloseBadRequest   = 4400
	CloseAuthFailed   = 4403
	CloseRoomNotFound = 4404
	CloseRoomExpired  = 4410
	CloseTryAgain     = 4429
)

// outboundLimit bounds each socket's queue. Overflow drops the socket.
const outboundLimit = 64

const writeWait = 10 * time.Second

// wsConn is the slice of *websocket.Conn the session needs. Tests swap in
// a scripted implementation.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// frame is the wire envelope for every server-to-client message.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// clientFrame is the only client-to-server message the hub understands.
type clientFrame struct {
	Type string `json:"type"`
}

type queued struct {
	frame        frame
	stateVersion int64
	isSnapshot   bool
}

// session is one live socket. The outbound queue is a slice guarded by mu
// rather than a channel so a newer snapshot can replace a queued older one.
type session struct {
	conn        wsConn
	hub         *Hub
	roomID      string
	roomCode    string
	playerID    string
	idleTimeout time.Duration

	mu        sync.Mutex
	queue     []queued
	closed    bool
	closeCode int
	notify    chan struct{}

	unsubscribe func()
	done        chan struct{}
}

func newSession(conn wsConn, h *Hub, roomID, roomCode, playerID string) *session {
	return &session{
		conn:        conn,
		hub:         h,
		roomID:      roomID,
		roomCode:    roomCode,
		playerID:    playerID,
		idleTimeout: h.idleTimeout,
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// enqueue appends a frame to the outbound queue. A snapshot replaces a
// queued older snapshot instead of piling up. Overflow closes the session
// with TryAgain.
func (s *session) enqueue(q queued) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if q.isSnapshot {
		for i := len(s.queue) - 1; i >= 0; i-- {
			if s.queue[i].isSnapshot {
				if s.queue[i].stateVersion < q.stateVersion {
					s.queue[i] = q
				}
				s.mu.Unlock()
				s.wake()
				return
			}
		}
	}

	if len(s.queue) >= outboundLimit {
		s.closeLocked(CloseTryAgain)
		s.mu.Unlock()
		s.wake()
		return
	}
	s.queue = append(s.queue, q)
	s.mu.Unlock()
	s.wake()
}

func (s *session) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// close marks the session for shutdown with the given close code. The
// write pump drains the queue, sends the close frame, and exits.
func (s *session) close(code int) {
	s.mu.Lock()
	s.closeLocked(code)
	s.mu.Unlock()
	s.wake()
}

func (s *session) closeLocked(code int) {
	if !s.closed {
		s.closed = true
		s.closeCode = code
	}
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// pop returns the next queued frame, or reports the pending close.
func (s *session) pop() (queued, bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 {
		q := s.queue[0]
		s.queue = s.queue[1:]
		return q, true, 0
	}
	if s.closed {
		return queued{}, false, s.closeCode
	}
	return queued{}, false, -1
}

// writePump drains the queue onto the wire until the session closes.
func (s *session) writePump() {
	defer func() {
		s.conn.Close()
		close(s.done)
	}()

	for {
		for {
			q, ok, code := s.pop()
			if ok {
				data, err := json.Marshal(q.frame)
				if err != nil {
					logging.Error(context.Background(), "failed to marshal frame", zap.Error(err))
					continue
				}
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					s.close(websocket.CloseAbnormalClosure)
					return
				}
				continue
			}
			if code == -1 {
				break // queue empty, not closed
			}
			msg := websocket.FormatCloseMessage(code, "")
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}

		<-s.notify
	}
}

// readPump consumes client frames. Heartbeats refresh the idle deadline and
// the room's activity timestamp; everything else is ignored. A read error
// or idle timeout ends the session.
func (s *session) readPump() {
	defer func() {
		s.close(websocket.CloseNormalClosure)
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.hub.handleDisconnect(s)
		metrics.DecConnection()
	}()

	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var cf clientFrame
		if err := json.Unmarshal(data, &cf); err != nil {
			continue
		}
		if cf.Type == "client.heartbeat" {
			s.hub.touchRoom(s.roomID)
		}
	}
}

// pumpEvents forwards bus events into the outbound queue until the
// subscription channel closes. A room.expired event also schedules the
// close so the client lands in its terminal flow.
func (s *session) pumpEvents(ch <-chan bus.Event) {
	for ev := range ch {
		s.enqueue(queued{
			frame:        frame{Type: ev.Type, Payload: ev.Payload},
			stateVersion: ev.StateVersion,
			isSnapshot:   ev.Type == bus.EventRoomSnapshot,
		})
		if ev.Type == bus.EventRoomExpired {
			s.close(CloseRoomExpired)
		}
	}
}
