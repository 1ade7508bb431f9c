package config_test

import (
	"testing"
	"time"

	"github.com/tnjtools/alertqueue/internal/config"
)

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/alerts")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HeartbeatInterval != 2*time.Second {
		t.Fatalf("expected 2s heartbeat, got %s", cfg.HeartbeatInterval)
	}
	if cfg.DisplayTimeout != 6*time.Second {
		t.Fatalf("expected display timeout of three heartbeats, got %s", cfg.DisplayTimeout)
	}
	if cfg.CompletionDebounce != time.Second {
		t.Fatalf("expected 1s debounce, got %s", cfg.CompletionDebounce)
	}
	if !cfg.RecoverOnStartup {
		t.Fatal("expected startup recovery enabled by default")
	}
	if cfg.InstanceID == "" {
		t.Fatal("expected a generated instance id")
	}
	if len(cfg.DisplayAllowedOrigins) != 0 {
		t.Fatalf("expected no origin restrictions, got %v", cfg.DisplayAllowedOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/alerts")
	t.Setenv("INSTANCE_ID", "studio-a")
	t.Setenv("HEARTBEAT_INTERVAL", "500ms")
	t.Setenv("STALE_AFTER", "3s")
	t.Setenv("RECOVER_ON_STARTUP", "false")
	t.Setenv("FEED_MAX_RETRIES", "2")
	t.Setenv("DISPLAY_ALLOWED_ORIGINS", "https://obs.local, http://localhost:3000 ,")
	t.Setenv("POLL_INTERVAL", "not-a-duration")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.InstanceID != "studio-a" {
		t.Fatalf("expected studio-a, got %s", cfg.InstanceID)
	}
	if cfg.HeartbeatInterval != 500*time.Millisecond || cfg.StaleAfter != 3*time.Second {
		t.Fatalf("unexpected intervals: heartbeat=%s stale=%s", cfg.HeartbeatInterval, cfg.StaleAfter)
	}
	if cfg.DisplayTimeout != 1500*time.Millisecond {
		t.Fatalf("expected display timeout to follow the heartbeat, got %s", cfg.DisplayTimeout)
	}
	if cfg.RecoverOnStartup {
		t.Fatal("expected startup recovery disabled")
	}
	if cfg.FeedMaxRetries != 2 {
		t.Fatalf("expected 2 feed retries, got %d", cfg.FeedMaxRetries)
	}
	if len(cfg.DisplayAllowedOrigins) != 2 || cfg.DisplayAllowedOrigins[1] != "http://localhost:3000" {
		t.Fatalf("unexpected origins %v", cfg.DisplayAllowedOrigins)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("expected invalid POLL_INTERVAL to fall back to 5s, got %s", cfg.PollInterval)
	}
}

func TestLoad_RejectsStaleWindowShorterThanHeartbeat(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/alerts")
	t.Setenv("HEARTBEAT_INTERVAL", "5s")
	t.Setenv("STALE_AFTER", "5s")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error when STALE_AFTER <= HEARTBEAT_INTERVAL")
	}
}

func TestLoad_RejectsDisplayTimeoutPastStaleWindow(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/alerts")
	t.Setenv("DISPLAY_TIMEOUT", "10s")
	t.Setenv("STALE_AFTER", "10s")

	if _, err := config.Load(); err == nil {
		t.Fatal("expected error when DISPLAY_TIMEOUT >= STALE_AFTER")
	}
}
