package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/waustin14/StoryFill/internal/v1/auth"
	"github.com/waustin14/StoryFill/internal/v1/bus"
	"github.com/waustin14/StoryFill/internal/v1/config"
	"github.com/waustin14/StoryFill/internal/v1/game"
	"github.com/waustin14/StoryFill/internal/v1/health"
	"github.com/waustin14/StoryFill/internal/v1/history"
	"github.com/waustin14/StoryFill/internal/v1/httpapi"
	"github.com/waustin14/StoryFill/internal/v1/hub"
	"github.com/waustin14/StoryFill/internal/v1/logging"
	"github.com/waustin14/StoryFill/internal/v1/narration"
	"github.com/waustin14/StoryFill/internal/v1/ratelimit"
	"github.com/waustin14/StoryFill/internal/v1/share"
	"github.com/waustin14/StoryFill/internal/v1/store"
	"github.com/waustin14/StoryFill/internal/v1/tracing"
)

func main() {
	ctx := context.Background()

	// Load .env for local development; production relies on real env vars.
	for _, path := range []string{".env", "../../../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	if cfg.OTLPEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, "storyfill", cfg.OTLPEndpoint)
		if err != nil {
			logging.Error(ctx, "tracing disabled, collector unreachable", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	// Redis backs the cross-instance event relay and shared rate limit
	// counters. Both fall back to in-process mode when disabled or down.
	var relay *bus.Relay
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		relay, err = bus.NewRelay(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Error(ctx, "Redis unreachable, running in single-instance mode", zap.Error(err))
			relay = nil
		} else {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
			})
			logging.Info(ctx, "Redis relay initialized", zap.String("addr", cfg.RedisAddr))
		}
	}

	limiter, err := ratelimit.New(cfg, redisClient)
	if err != nil {
		logging.Fatal(ctx, "invalid rate limit configuration", zap.Error(err))
	}

	var historySvc *history.Service
	if cfg.DatabaseURL != "" {
		historySvc, err = history.Open(cfg.DatabaseURL)
		if err != nil {
			logging.Error(ctx, "history sink disabled, database unreachable", zap.Error(err))
			historySvc = nil
		}
	}

	st := store.New()
	b := bus.New(relay)
	minter := auth.NewMinter(cfg.JWTSecret)
	shares := share.NewStore(cfg.ShareTTL)
	narrationSvc := narration.NewService(
		narration.NewHTTPProvider(cfg.TTSServiceURL),
		cfg.TTSDefaultModel,
		cfg.TTSDefaultVoice,
	)
	narrationSvc.Moderate = game.DefaultModerator

	sweeper := store.NewSweeper(st, b, cfg.RoomTTL, cfg.SweepInterval, cfg.ExpiryGrace)
	sweeper.OnExpired = func(roomID string, at time.Time) {
		historySvc.RecordExpiry(context.Background(), roomID, at)
	}
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go sweeper.Run(sweepCtx)

	origins := httpapi.AllowedOrigins(cfg.AllowedOrigins)
	checkOrigin := func(r *http.Request) bool {
		if cfg.DevelopmentMode {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, allowed := range origins {
			if origin == allowed {
				return true
			}
		}
		return false
	}
	wsHub := hub.New(st, b, minter, cfg.SocketIdleTimeout, cfg.DisconnectGrace, checkOrigin)

	server := httpapi.NewServer(cfg, st, b, minter, limiter, narrationSvc, shares, historySvc)
	router := server.Router(health.NewHandler(relay), wsHub.ServeWs)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "server failed", zap.Error(err))
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopSweeper()
	wsHub.Shutdown(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "forced shutdown", zap.Error(err))
	}

	if relay != nil {
		_ = relay.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logging.Info(ctx, "server exited")
}
