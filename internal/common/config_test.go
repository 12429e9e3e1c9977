package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if !cfg.Scheduler.Automatic {
		t.Error("expected automatic mode by default")
	}
	if cfg.Status.AutomaticPollInterval != "2s" {
		t.Errorf("expected 2s automatic poll interval, got %s", cfg.Status.AutomaticPollInterval)
	}
	if cfg.Status.ManualPollInterval != "15s" {
		t.Errorf("expected 15s manual poll interval, got %s", cfg.Status.ManualPollInterval)
	}
	if cfg.StageTimeoutDuration() != 90*time.Second {
		t.Errorf("expected 90s stage timeout, got %s", cfg.StageTimeoutDuration())
	}
	if cfg.DedupTTLDuration() != 10*time.Second {
		t.Errorf("expected 10s dedup TTL, got %s", cfg.DedupTTLDuration())
	}
	if cfg.LLM.DefaultProvider != "gemini" {
		t.Errorf("expected gemini default provider, got %s", cfg.LLM.DefaultProvider)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "penman.toml")
	content := `
[server]
port = 9090

[scheduler]
automatic = false

[dedup]
ttl = "30s"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090 from file, got %d", cfg.Server.Port)
	}
	if cfg.Scheduler.Automatic {
		t.Error("expected automatic disabled from file")
	}
	if cfg.DedupTTLDuration() != 30*time.Second {
		t.Errorf("expected 30s dedup TTL from file, got %s", cfg.DedupTTLDuration())
	}
	// Untouched values keep defaults
	if cfg.Queue.DefaultPerPage != 25 {
		t.Errorf("expected default per page 25, got %d", cfg.Queue.DefaultPerPage)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PENMAN_PORT", "7070")
	t.Setenv("PENMAN_AUTOMATIC", "false")
	t.Setenv("PENMAN_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Scheduler.Automatic {
		t.Error("expected env to disable automatic mode")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected env log level debug, got %s", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadDurations(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Dedup.TTL = "not-a-duration"

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for bad duration")
	}
}

func TestParseDurationOr(t *testing.T) {
	if got := ParseDurationOr("5s", time.Minute); got != 5*time.Second {
		t.Errorf("expected 5s, got %s", got)
	}
	if got := ParseDurationOr("", time.Minute); got != time.Minute {
		t.Errorf("expected fallback for empty value, got %s", got)
	}
	if got := ParseDurationOr("garbage", time.Minute); got != time.Minute {
		t.Errorf("expected fallback for garbage value, got %s", got)
	}
}
