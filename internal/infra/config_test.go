package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port mismatch: got %q want 8080", cfg.Port)
	}
	if cfg.FFmpegPath != "ffmpeg" || cfg.FFprobePath != "ffprobe" {
		t.Fatalf("binary paths mismatch: %q %q", cfg.FFmpegPath, cfg.FFprobePath)
	}
	if cfg.QueueEnabled() {
		t.Fatal("queue must be off without REDIS_ADDR")
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("PollInterval mismatch: %v", cfg.PollInterval)
	}
	if cfg.MaxUploadBytes != 500<<20 {
		t.Fatalf("MaxUploadBytes mismatch: %d", cfg.MaxUploadBytes)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadConfigEnablesQueueWithRedis(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("RENDER_TIMEOUT_MINUTES", "60")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !cfg.QueueEnabled() {
		t.Fatal("queue must be on with REDIS_ADDR set")
	}
	if cfg.RenderTimeout != time.Hour {
		t.Fatalf("RenderTimeout mismatch: %v", cfg.RenderTimeout)
	}
}
