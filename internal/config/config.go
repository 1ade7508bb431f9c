package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	LogDevelopment  bool

	// Database
	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	MigrationsPath string

	// InstanceID identifies this process in claimed_by.
	InstanceID string

	// Queue coordination
	PollInterval       time.Duration
	HeartbeatInterval  time.Duration
	DisplayTimeout     time.Duration
	StaleAfter         time.Duration
	SweepInterval      time.Duration
	CompletionDebounce time.Duration
	RecoverOnStartup   bool

	// Realtime change feed (LISTEN/NOTIFY)
	FeedMaxRetries     uint64
	FeedInitialBackoff time.Duration
	FeedMaxBackoff     time.Duration

	// Triggers per second allowed for each alert slug
	TriggerRateLimit int

	// Origins allowed to open a display WebSocket; empty allows any.
	DisplayAllowedOrigins []string
}

func Load() (*Config, error) {
	// A .env file in the working directory is optional; variables already
	// set in the environment win over it.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		LogDevelopment:  getBool("LOG_DEVELOPMENT", false),

		DatabaseURL:    dbURL,
		DBMaxConns:     int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:     int32(getInt("DB_MIN_CONNS", 2)),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),

		InstanceID: getEnv("INSTANCE_ID", defaultInstanceID()),

		PollInterval:       getDuration("POLL_INTERVAL", 5*time.Second),
		HeartbeatInterval:  getDuration("HEARTBEAT_INTERVAL", 2*time.Second),
		StaleAfter:         getDuration("STALE_AFTER", 10*time.Second),
		SweepInterval:      getDuration("SWEEP_INTERVAL", 5*time.Second),
		CompletionDebounce: getDuration("COMPLETION_DEBOUNCE", time.Second),
		RecoverOnStartup:   getBool("RECOVER_ON_STARTUP", true),

		FeedMaxRetries:     uint64(getInt("FEED_MAX_RETRIES", 5)),
		FeedInitialBackoff: getDuration("FEED_INITIAL_BACKOFF", time.Second),
		FeedMaxBackoff:     getDuration("FEED_MAX_BACKOFF", 30*time.Second),

		TriggerRateLimit: getInt("TRIGGER_RATE_LIMIT", 5),

		DisplayAllowedOrigins: getList("DISPLAY_ALLOWED_ORIGINS"),
	}

	// A display that stops reporting for DISPLAY_TIMEOUT no longer keeps its
	// item alive.
	cfg.DisplayTimeout = getDuration("DISPLAY_TIMEOUT", 3*cfg.HeartbeatInterval)

	if cfg.StaleAfter <= cfg.HeartbeatInterval {
		return nil, fmt.Errorf("STALE_AFTER (%s) must be longer than HEARTBEAT_INTERVAL (%s)",
			cfg.StaleAfter, cfg.HeartbeatInterval)
	}
	if cfg.DisplayTimeout >= cfg.StaleAfter {
		return nil, fmt.Errorf("DISPLAY_TIMEOUT (%s) must be shorter than STALE_AFTER (%s)",
			cfg.DisplayTimeout, cfg.StaleAfter)
	}
	return cfg, nil
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "alertqueue"
	}
	return host + "-" + uuid.New().String()[:8]
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
