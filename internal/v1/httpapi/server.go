// Package httpapi is the stateless HTTP command surface. Every handler
// authenticates, resolves the room by code, mutates under the room's lock,
// publishes a snapshot, and responds through one error formatter.
package httpapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/waustin14/StoryFill/internal/v1/apierr"
	"github.com/waustin14/StoryFill/internal/v1/auth"
	"github.com/waustin14/StoryFill/internal/v1/bus"
	"github.com/waustin14/StoryFill/internal/v1/config"
	"github.com/waustin14/StoryFill/internal/v1/events"
	"github.com/waustin14/StoryFill/internal/v1/game"
	"github.com/waustin14/StoryFill/internal/v1/history"
	"github.com/waustin14/StoryFill/internal/v1/logging"
	"github.com/waustin14/StoryFill/internal/v1/metrics"
	"github.com/waustin14/StoryFill/internal/v1/narration"
	"github.com/waustin14/StoryFill/internal/v1/ratelimit"
	"github.com/waustin14/StoryFill/internal/v1/share"
	"github.com/waustin14/StoryFill/internal/v1/store"
)

// tokenTTL bounds room tokens well past the room's own TTL so an idle tab
// can still reconnect right up to expiry.
const tokenTTL = 24 * time.Hour

// Server carries the handler dependencies.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	bus       *bus.Bus
	minter    *auth.Minter
	limiter   *ratelimit.Limiter
	narration *narration.Service
	shares    *share.Store
	history   *history.Service
	moderate  game.Moderator

	now func() time.Time
}

func NewServer(
	cfg *config.Config,
	st *store.Store,
	b *bus.Bus,
	minter *auth.Minter,
	limiter *ratelimit.Limiter,
	narrationSvc *narration.Service,
	shares *share.Store,
	historySvc *history.Service,
) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		bus:       b,
		minter:    minter,
		limiter:   limiter,
		narration: narrationSvc,
		shares:    shares,
		history:   historySvc,
		moderate:  game.DefaultModerator,
		now:       time.Now,
	}
}

func (s *Server) rules() game.Rules {
	return game.Rules{
		PromptsPerPlayer:  s.cfg.PromptsPerPlayer,
		MinPlayersToStart: s.cfg.MinPlayersToStart,
		MaxPlayersPerRoom: s.cfg.MaxPlayersPerRoom,
		DisconnectGrace:   s.cfg.DisconnectGrace,
		ShareTTL:          s.cfg.ShareTTL,
	}
}

// respondError is the single formatter for every failure shape.
func (s *Server) respondError(c *gin.Context, command string, err *apierr.Error) {
	if err.Kind == apierr.KindInternal {
		logging.Error(c.Request.Context(), "command failed",
			zap.String("command", command), zap.Error(err))
	}
	metrics.Commands.WithLabelValues(command, err.Code()).Inc()
	if err.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(err.RetryAfter))
	}
	c.JSON(err.Status(), gin.H{"detail": err.Detail, "code": err.Code()})
}

func (s *Server) respondOK(c *gin.Context, command string, body any) {
	metrics.Commands.WithLabelValues(command, "OK").Inc()
	c.JSON(200, body)
}

// mutate runs fn under the room's lock and publishes a snapshot if the
// state version moved. Publication happens under the lock so event order
// matches version order. Expired rooms reject every command.
func (s *Server) mutate(c *gin.Context, code string, fn func(*game.Room) *apierr.Error) *apierr.Error {
	return s.store.WithRoom(code, func(room *game.Room) *apierr.Error {
		if room.State == game.StateExpired {
			return apierr.Expired("This room has expired.")
		}
		before := room.StateVersion
		if err := fn(room); err != nil {
			return err
		}
		if room.StateVersion != before {
			s.bus.Publish(c.Request.Context(), events.Snapshot(room))
		}
		return nil
	})
}

// view runs fn under the room's lock without publishing. Expired rooms
// still surface Expired so clients land in their terminal flow.
func (s *Server) view(code string, fn func(*game.Room) *apierr.Error) *apierr.Error {
	return s.store.WithRoom(code, func(room *game.Room) *apierr.Error {
		if room.State == game.StateExpired {
			return apierr.Expired("This room has expired.")
		}
		return fn(room)
	})
}

// bearerToken pulls a token from the body field, falling back to the
// Authorization header.
func bearerToken(c *gin.Context, bodyToken string) string {
	if bodyToken != "" {
		return bodyToken
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// requireHost verifies the host token against the room.
func (s *Server) requireHost(room *game.Room, token string) *apierr.Error {
	if token == "" {
		return apierr.Auth("Host token required.")
	}
	if _, err := s.minter.VerifyHost(token, room.ID); err != nil {
		return apierr.Auth("Invalid host token.")
	}
	return nil
}

// requirePlayer verifies a token for the given player id. The host token
// acts for the host's own player entry; it cannot impersonate others.
func (s *Server) requirePlayer(room *game.Room, token, playerID string) *apierr.Error {
	if token == "" {
		return apierr.Auth("Player token required.")
	}
	claims, err := s.minter.Verify(token)
	if err != nil {
		return apierr.Auth("Invalid player token.")
	}
	if claims.RoomID != room.ID {
		return apierr.Auth("Token was issued for a different room.")
	}
	switch claims.Role {
	case auth.RoleHost:
		if playerID != room.HostPlayerID {
			return apierr.Auth("Host token cannot act for another player.")
		}
	case auth.RolePlayer:
		if claims.PlayerID != playerID {
			return apierr.Auth("Token was issued for a different player.")
		}
	default:
		return apierr.Auth("Invalid player token.")
	}
	if room.GetPlayer(playerID) == nil {
		return apierr.NotFound("Player not found in room.")
	}
	return nil
}

// requireRound checks the path round id against the room's current round.
func requireRound(room *game.Room, roundID string) *apierr.Error {
	if roundID != room.RoundID {
		return apierr.NotFound("Round not found.")
	}
	return nil
}

// splitAction separates a Google-style custom action from a path segment,
// e.g. "ABCDEF:lock" -> ("ABCDEF", "lock").
func splitAction(segment string) (value, action string) {
	if i := strings.IndexByte(segment, ':'); i >= 0 {
		return segment[:i], segment[i+1:]
	}
	return segment, ""
}

// shareBody is the wire shape for share handles. The URL points at the
// web client's share page, which resolves the token through
// GET /v1/shares/{token}.
func (s *Server) shareBody(token string, expiresAt time.Time) gin.H {
	return gin.H{
		"share_token": token,
		"share_url":   strings.TrimRight(s.cfg.WebBaseURL, "/") + "/s/" + token,
		"expires_at":  expiresAt,
	}
}

func snapshotBody(room *game.Room) gin.H {
	return gin.H{
		"room_snapshot": room.Snapshot(),
		"progress":      room.Progress(),
	}
}
