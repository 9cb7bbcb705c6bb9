package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/auth"
	"github.com/waustin14/StoryFill/internal/v1/events"
	"github.com/waustin14/StoryFill/internal/v1/game"
	"github.com/waustin14/StoryFill/internal/v1/ident"
)

// codeAllocAttempts bounds retries when a freshly minted room code collides
// with a live room.
const codeAllocAttempts = 5

type createRoomRequest struct {
	DisplayName string `json:"display_name"`
	TemplateID  string `json:"template_id"`
}

type joinRoomRequest struct {
	DisplayName string `json:"display_name"`
}

// hostRequest is the body shape for host-only commands.
type hostRequest struct {
	HostToken string `json:"host_token"`
}

// playerRequest is the body shape for player-authenticated commands.
type playerRequest struct {
	PlayerToken string `json:"player_token"`
}

type templateRequest struct {
	HostToken  string `json:"host_token"`
	TemplateID string `json:"template_id"`
}

func (s *Server) handleCreateRoom(c *gin.Context) {
	const command = "create_room"
	if err := s.limiter.AllowCreateRoom(c.Request.Context(), c.ClientIP()); err != nil {
		s.respondError(c, command, err)
		return
	}

	var req createRoomRequest
	_ = c.ShouldBindJSON(&req) // body is optional

	name := req.DisplayName
	if name == "" {
		name = "Host"
	}
	name, verr := game.SanitizeDisplayName(name)
	if verr != nil {
		s.respondError(c, command, verr)
		return
	}

	templateID := req.TemplateID
	if templateID == "" {
		templateID = game.DefaultTemplate().ID
	}
	if _, ok := game.GetTemplate(templateID); !ok {
		s.respondError(c, command, apierr.Validation("Unknown template."))
		return
	}

	now := s.now()
	var room *game.Room
	for attempt := 0; attempt < codeAllocAttempts; attempt++ {
		code, err := ident.NewRoomCode()
		if err != nil {
			s.respondError(c, command, apierr.Internal(err))
			return
		}
		candidate := game.NewRoom(ident.NewID("room"), code, templateID, s.rules(), now)
		if addErr := s.store.Add(candidate); addErr == nil {
			room = candidate
			break
		}
	}
	if room == nil {
		s.respondError(c, command, apierr.Internal(fmt.Errorf("room code space exhausted after %d attempts", codeAllocAttempts)))
		return
	}

	hostToken, err := s.minter.HostToken(room.ID, room.Code, tokenTTL)
	if err != nil {
		s.store.Remove(room.ID)
		s.respondError(c, command, apierr.Internal(err))
		return
	}

	host := &game.Player{ID: ident.NewID("player"), DisplayName: name, IsHost: true}
	var resp gin.H
	aerr := s.store.WithRoom(room.Code, func(r *game.Room) *apierr.Error {
		if err := r.AddPlayer(host, now); err != nil {
			return err
		}
		r.HostToken = hostToken
		resp = gin.H{
			"room_id":        r.ID,
			"room_code":      r.Code,
			"host_token":     hostToken,
			"host_player_id": host.ID,
			"room_snapshot":  r.Snapshot(),
			"progress":       r.Progress(),
		}
		return nil
	})
	if aerr != nil {
		s.store.Remove(room.ID)
		s.respondError(c, command, aerr)
		return
	}

	s.history.RecordRoomCreated(c.Request.Context(), room.ID, room.Code, templateID, now)
	s.respondOK(c, command, resp)
}

func (s *Server) handleJoinRoom(c *gin.Context) {
	const command = "join_room"
	if err := s.limiter.AllowJoinRoom(c.Request.Context(), c.ClientIP()); err != nil {
		s.respondError(c, command, err)
		return
	}

	var req joinRoomRequest
	_ = c.ShouldBindJSON(&req)
	name, verr := game.SanitizeDisplayName(req.DisplayName)
	if verr != nil {
		s.respondError(c, command, verr)
		return
	}
	if name == "" {
		name = "Player"
	}

	code := ident.NormalizeCode(c.Param("code"))
	now := s.now()
	var resp gin.H
	err := s.mutate(c, code, func(room *game.Room) *apierr.Error {
		player := &game.Player{ID: ident.NewID("player"), DisplayName: name}
		if err := room.AddPlayer(player, now); err != nil {
			return err
		}
		token, terr := s.minter.PlayerToken(room.ID, room.Code, player.ID, tokenTTL)
		if terr != nil {
			return apierr.Internal(terr)
		}
		player.Token = token
		resp = gin.H{
			"player_id":     player.ID,
			"player_token":  token,
			"room_id":       room.ID,
			"room_snapshot": room.Snapshot(),
			"progress":      room.Progress(),
		}
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

func (s *Server) handleLeaveRoom(c *gin.Context) {
	const command = "leave_room"
	var req playerRequest
	_ = c.ShouldBindJSON(&req)
	token := bearerToken(c, req.PlayerToken)

	code := ident.NormalizeCode(c.Param("code"))
	now := s.now()
	var resp gin.H
	err := s.mutate(c, code, func(room *game.Room) *apierr.Error {
		playerID, aerr := s.playerFromToken(room, token)
		if aerr != nil {
			return aerr
		}
		if err := room.RemovePlayer(playerID, false, now); err != nil {
			return err
		}
		resp = snapshotBody(room)
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

// handleRoomAction dispatches Google-style custom actions on the room
// resource: POST /rooms/{code}:lock, :unlock, :template.
func (s *Server) handleRoomAction(c *gin.Context) {
	rawCode, action := splitAction(c.Param("code"))
	code := ident.NormalizeCode(rawCode)
	switch action {
	case "lock":
		s.setRoomLock(c, code, true)
	case "unlock":
		s.setRoomLock(c, code, false)
	case "template":
		s.setRoomTemplate(c, code)
	default:
		s.respondError(c, "room_action", apierr.NotFound("Unknown room action."))
	}
}

func (s *Server) setRoomLock(c *gin.Context, code string, locked bool) {
	command := "unlock_room"
	if locked {
		command = "lock_room"
	}
	var req hostRequest
	_ = c.ShouldBindJSON(&req)
	token := bearerToken(c, req.HostToken)

	now := s.now()
	var resp gin.H
	err := s.mutate(c, code, func(room *game.Room) *apierr.Error {
		if err := s.requireHost(room, token); err != nil {
			return err
		}
		room.SetLocked(locked, now)
		resp = snapshotBody(room)
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

func (s *Server) setRoomTemplate(c *gin.Context, code string) {
	const command = "set_template"
	var req templateRequest
	_ = c.ShouldBindJSON(&req)
	token := bearerToken(c, req.HostToken)

	now := s.now()
	var resp gin.H
	err := s.mutate(c, code, func(room *game.Room) *apierr.Error {
		if err := s.requireHost(room, token); err != nil {
			return err
		}
		if err := room.SetTemplate(req.TemplateID, now); err != nil {
			return err
		}
		resp = snapshotBody(room)
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

func (s *Server) handleStartGame(c *gin.Context) {
	const command = "start_game"
	var req hostRequest
	_ = c.ShouldBindJSON(&req)
	token := bearerToken(c, req.HostToken)

	code := ident.NormalizeCode(c.Param("code"))
	now := s.now()
	var resp gin.H
	err := s.mutate(c, code, func(room *game.Room) *apierr.Error {
		if err := s.requireHost(room, token); err != nil {
			return err
		}
		if err := room.Start(now); err != nil {
			return err
		}
		resp = snapshotBody(room)
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

func (s *Server) handleReveal(c *gin.Context) {
	const command = "reveal"
	var req hostRequest
	_ = c.ShouldBindJSON(&req)
	token := bearerToken(c, req.HostToken)

	code := ident.NormalizeCode(c.Param("code"))
	now := s.now()
	var resp gin.H
	err := s.mutate(c, code, func(room *game.Room) *apierr.Error {
		if err := s.requireHost(room, token); err != nil {
			return err
		}
		story, rerr := room.Reveal(s.moderate, now)
		if rerr != nil {
			return rerr
		}
		s.history.RecordReveal(c.Request.Context(), room.ID, room.RoundID,
			room.RoundIndex, len(room.Players), story, now)
		resp = gin.H{
			"rendered_story": story,
			"room_snapshot":  room.Snapshot(),
			"progress":       room.Progress(),
		}
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

func (s *Server) handleReplay(c *gin.Context) {
	const command = "replay"
	var req hostRequest
	_ = c.ShouldBindJSON(&req)
	token := bearerToken(c, req.HostToken)

	code := ident.NormalizeCode(c.Param("code"))
	now := s.now()
	var resp gin.H
	err := s.mutate(c, code, func(room *game.Room) *apierr.Error {
		if err := s.requireHost(room, token); err != nil {
			return err
		}
		prevRound := room.RoundID
		if err := room.Replay(now); err != nil {
			return err
		}
		s.narration.DropRound(room.ID, prevRound)
		resp = gin.H{
			"round_id":      room.RoundID,
			"room_snapshot": room.Snapshot(),
			"progress":      room.Progress(),
		}
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

// handleEndRoom lets the host shut the room down early. The room emits a
// terminal expiry event and is removed from the registry.
func (s *Server) handleEndRoom(c *gin.Context) {
	const command = "end_room"
	var req hostRequest
	_ = c.ShouldBindJSON(&req)
	token := bearerToken(c, req.HostToken)

	code := ident.NormalizeCode(c.Param("code"))
	now := s.now()
	var roomID string
	err := s.store.WithRoom(code, func(room *game.Room) *apierr.Error {
		if err := s.requireHost(room, token); err != nil {
			return err
		}
		if err := room.Expire(now); err != nil {
			return err
		}
		roomID = room.ID
		s.bus.Publish(c.Request.Context(), events.Expired(room, "ended"))
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.store.Remove(roomID)
	s.history.RecordExpiry(c.Request.Context(), roomID, now)
	s.respondOK(c, command, gin.H{"status": "ended"})
}

// handlePlayerAction dispatches POST /rooms/{code}/players/{id}:reconnect,
// :kick, and :disconnect.
func (s *Server) handlePlayerAction(c *gin.Context) {
	code := ident.NormalizeCode(c.Param("code"))
	playerID, action := splitAction(c.Param("player"))
	switch action {
	case "reconnect":
		s.reconnectPlayer(c, code, playerID)
	case "kick":
		s.kickPlayer(c, code, playerID)
	case "disconnect":
		s.disconnectPlayer(c, code, playerID)
	default:
		s.respondError(c, "player_action", apierr.NotFound("Unknown player action."))
	}
}

func (s *Server) reconnectPlayer(c *gin.Context, code, playerID string) {
	const command = "reconnect"
	var req playerRequest
	_ = c.ShouldBindJSON(&req)
	token := bearerToken(c, req.PlayerToken)

	now := s.now()
	var resp gin.H
	err := s.mutate(c, code, func(room *game.Room) *apierr.Error {
		if err := s.requirePlayer(room, token, playerID); err != nil {
			return err
		}
		room.MarkConnected(playerID, now)
		resp = gin.H{
			"room_snapshot": room.Snapshot(),
			"progress":      room.Progress(),
			"prompts":       game.PromptViews(room.PlayerPrompts(playerID)),
		}
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

func (s *Server) kickPlayer(c *gin.Context, code, playerID string) {
	const command = "kick_player"
	var req hostRequest
	_ = c.ShouldBindJSON(&req)
	token := bearerToken(c, req.HostToken)

	now := s.now()
	var resp gin.H
	err := s.mutate(c, code, func(room *game.Room) *apierr.Error {
		if err := s.requireHost(room, token); err != nil {
			return err
		}
		if playerID == room.HostPlayerID {
			return apierr.Validation("The host cannot kick themselves.")
		}
		if err := room.RemovePlayer(playerID, true, now); err != nil {
			return err
		}
		resp = snapshotBody(room)
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	s.respondOK(c, command, resp)
}

// disconnectPlayer is the explicit step-away path for clients without a
// live socket. Reassignment still waits out the grace window so a quick
// return keeps the player's prompts.
func (s *Server) disconnectPlayer(c *gin.Context, code, playerID string) {
	const command = "disconnect"
	var req playerRequest
	_ = c.ShouldBindJSON(&req)
	token := bearerToken(c, req.PlayerToken)

	now := s.now()
	var roomID string
	var grace time.Duration
	err := s.mutate(c, code, func(room *game.Room) *apierr.Error {
		if err := s.requirePlayer(room, token, playerID); err != nil {
			return err
		}
		room.MarkDisconnected(playerID, now)
		roomID = room.ID
		grace = room.Rules.DisconnectGrace
		return nil
	})
	if err != nil {
		s.respondError(c, command, err)
		return
	}
	time.AfterFunc(grace, func() { s.reassignAfterGrace(roomID) })
	s.respondOK(c, command, gin.H{"status": "disconnected"})
}

// reassignAfterGrace runs once the disconnect grace lapses. It is a no-op
// when the player reconnected in time.
func (s *Server) reassignAfterGrace(roomID string) {
	_ = s.store.WithRoomByID(roomID, func(room *game.Room) *apierr.Error {
		if moved := room.ReassignOverdue(s.now()); moved > 0 {
			s.bus.Publish(context.Background(), events.Snapshot(room))
		}
		return nil
	})
}

// playerFromToken resolves the acting player from a verified token. Host
// tokens act as the host player.
func (s *Server) playerFromToken(room *game.Room, token string) (string, *apierr.Error) {
	if token == "" {
		return "", apierr.Auth("Player token required.")
	}
	claims, err := s.minter.Verify(token)
	if err != nil {
		return "", apierr.Auth("Invalid player token.")
	}
	if claims.RoomID != room.ID {
		return "", apierr.Auth("Token was issued for a different room.")
	}
	playerID := claims.PlayerID
	if claims.Role == auth.RoleHost {
		playerID = room.HostPlayerID
	}
	if room.GetPlayer(playerID) == nil {
		return "", apierr.NotFound("Player not found in room.")
	}
	return playerID, nil
}
