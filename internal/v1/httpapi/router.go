package httpapi

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/waustin14/StoryFill/internal/v1/health"
	"github.com/waustin14/StoryFill/internal/v1/metrics"
	"github.com/waustin14/StoryFill/internal/v1/middleware"
)

// AllowedOrigins parses the comma-separated origins list, falling back to
// the local web client.
func AllowedOrigins(raw string) []string {
	if raw == "" {
		return []string{"http://localhost:3000"}
	}
	var out []string
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

// Router assembles the public surface: the command API under /v1, the
// WebSocket endpoint, metrics, and health probes.
func (s *Server) Router(healthHandler *health.Handler, serveWs gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(otelgin.Middleware("storyfill"))
	router.Use(timing())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = AllowedOrigins(s.cfg.AllowedOrigins)
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", middleware.HeaderXRequestID)
	router.Use(cors.New(corsConfig))

	v1 := router.Group("/v1")
	{
		v1.POST("/rooms", s.handleCreateRoom)
		// The :code segment also carries Google-style custom actions,
		// e.g. POST /v1/rooms/ABCDEF:lock.
		v1.POST("/rooms/:code", s.handleRoomAction)
		v1.POST("/rooms/:code/join", s.handleJoinRoom)
		v1.POST("/rooms/:code/leave", s.handleLeaveRoom)
		v1.POST("/rooms/:code/start", s.handleStartGame)
		v1.POST("/rooms/:code/reveal", s.handleReveal)
		v1.POST("/rooms/:code/replay", s.handleReplay)
		v1.POST("/rooms/:code/end", s.handleEndRoom)
		v1.POST("/rooms/:code/players/:player", s.handlePlayerAction)

		v1.GET("/rooms/:code/rounds/:round_id/prompts", s.handleGetPrompts)
		v1.POST("/rooms/:code/rounds/:round_id/prompts/:prompt", s.handlePromptAction)
		v1.GET("/rooms/:code/rounds/:round_id/story", s.handleGetStory)
		v1.GET("/rooms/:code/rounds/:round_id/progress", s.handleGetProgress)
		v1.GET("/rooms/:code/rounds/:round_id/tts", s.handleGetNarration)
		v1.POST("/rooms/:code/rounds/:round_id", s.handleRoundAction)

		v1.POST("/tts/jobs/:job", s.handleJobAction)
		v1.GET("/tts/jobs/:job_id/audio", s.handleJobAudio)

		v1.GET("/shares/:token", s.handleGetShare)
		v1.GET("/templates", s.handleListTemplates)
		v1.GET("/templates/:id", s.handleGetTemplate)

		if serveWs != nil {
			v1.GET("/ws", serveWs)
		}
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	return router
}

// timing records handler latency per route template.
func timing() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.CommandDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
