// Package config validates environment configuration at startup.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	JWTSecret string
	Port      string

	// Optional variables with defaults
	GoEnv           string
	DevelopmentMode bool
	AllowedOrigins  string
	WebBaseURL      string

	// Room lifecycle
	RoomTTL           time.Duration
	DisconnectGrace   time.Duration
	PromptsPerPlayer  int
	MinPlayersToStart int
	MaxPlayersPerRoom int
	ShareTTL          time.Duration
	SocketIdleTimeout time.Duration
	SweepInterval     time.Duration
	ExpiryGrace       time.Duration

	// Redis (event bus + shared rate limit counters)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Optional Postgres history sink
	DatabaseURL string

	// Narration provider
	TTSServiceURL   string
	TTSDefaultModel string
	TTSDefaultVoice string

	// Tracing
	OTLPEndpoint string

	// Rate limits (ulule formatted: limit-period)
	RateLimitCreateRoom   string
	RateLimitJoinRoom     string
	RateLimitSubmitBurst  string
	RateLimitSubmitWindow string
	// Narration window is not expressible in the formatted syntax (3 per 10
	// minutes), so it is carried as a count + window pair.
	RateLimitNarrationCount  int
	RateLimitNarrationWindow time.Duration
}

// ValidateEnv validates all environment variables and returns a Config.
// Returns an error naming every invalid variable at once.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// Required: JWT_SECRET (minimum 32 characters)
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(cfg.JWTSecret) < 32 {
		errs = append(errs, fmt.Sprintf("JWT_SECRET must be at least 32 characters (got %d)", len(cfg.JWTSecret)))
	}

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.WebBaseURL = getEnvOrDefault("WEB_BASE_URL", "http://localhost:3000")

	cfg.RoomTTL = secondsEnv("ROOM_TTL", 3600, &errs)
	cfg.DisconnectGrace = secondsEnv("DISCONNECT_GRACE", 30, &errs)
	cfg.ShareTTL = secondsEnv("SHARE_TTL", 7*24*3600, &errs)
	cfg.SocketIdleTimeout = secondsEnv("SOCKET_IDLE_TIMEOUT", 60, &errs)
	cfg.SweepInterval = secondsEnv("SWEEP_INTERVAL", 30, &errs)
	cfg.ExpiryGrace = secondsEnv("EXPIRY_GRACE", 5, &errs)

	cfg.PromptsPerPlayer = intEnv("PROMPTS_PER_PLAYER", 3, &errs)
	cfg.MinPlayersToStart = intEnv("MIN_PLAYERS_TO_START", 2, &errs)
	cfg.MaxPlayersPerRoom = intEnv("MAX_PLAYERS_PER_ROOM", 12, &errs)

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.TTSServiceURL = getEnvOrDefault("TTS_SERVICE_URL", "http://localhost:8880")
	cfg.TTSDefaultModel = getEnvOrDefault("TTS_DEFAULT_MODEL", "kokoro")
	cfg.TTSDefaultVoice = getEnvOrDefault("TTS_DEFAULT_VOICE", "af_heart")

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	cfg.RateLimitCreateRoom = getEnvOrDefault("RATE_LIMIT_CREATE_ROOM", "10-M")
	cfg.RateLimitJoinRoom = getEnvOrDefault("RATE_LIMIT_JOIN_ROOM", "30-M")
	cfg.RateLimitSubmitBurst = getEnvOrDefault("RATE_LIMIT_SUBMIT_BURST", "1-S")
	cfg.RateLimitSubmitWindow = getEnvOrDefault("RATE_LIMIT_SUBMIT_WINDOW", "60-M")
	cfg.RateLimitNarrationCount = intEnv("RATE_LIMIT_NARRATION_COUNT", 3, &errs)
	cfg.RateLimitNarrationWindow = secondsEnv("RATE_LIMIT_NARRATION_WINDOW", 600, &errs)

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	return parts[0] != ""
}

func secondsEnv(key string, def int, errs *[]string) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return time.Duration(def) * time.Second
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		*errs = append(*errs, fmt.Sprintf("%s must be a positive number of seconds (got '%s')", key, raw))
		return time.Duration(def) * time.Second
	}
	return time.Duration(n) * time.Second
}

func intEnv(key string, def int, errs *[]string) int {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		*errs = append(*errs, fmt.Sprintf("%s must be a positive integer (got '%s')", key, raw))
		return def
	}
	return n
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"jwt_secret", redactSecret(cfg.JWTSecret),
		"port", cfg.Port,
		"go_env", cfg.GoEnv,
		"development_mode", cfg.DevelopmentMode,
		"room_ttl", cfg.RoomTTL,
		"disconnect_grace", cfg.DisconnectGrace,
		"prompts_per_player", cfg.PromptsPerPlayer,
		"min_players_to_start", cfg.MinPlayersToStart,
		"max_players_per_room", cfg.MaxPlayersPerRoom,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"database_url_set", cfg.DatabaseURL != "",
		"tts_service_url", cfg.TTSServiceURL,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
