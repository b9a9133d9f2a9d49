package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"roost/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
domain = "social.example.com"
`)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatalf("expected config resolved from %s", path)
	}
	if cfg.Scheduler.PollInterval != 5 {
		t.Fatalf("expected default poll interval, got %d", cfg.Scheduler.PollInterval)
	}
	if cfg.Scheduler.LockDuration != 120 {
		t.Fatalf("expected default lock duration, got %d", cfg.Scheduler.LockDuration)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected console format, got %q", cfg.Logging.Format)
	}
	if !filepath.IsAbs(cfg.Server.DataDir) {
		t.Fatalf("expected absolute data dir, got %q", cfg.Server.DataDir)
	}
}

func TestLoadRequiresDomain(t *testing.T) {
	path := writeConfig(t, `
[scheduler]
poll_interval = 1
`)

	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "server.domain") {
		t.Fatalf("expected domain error, got %v", err)
	}
}

func TestLoadRejectsLockShorterThanBudget(t *testing.T) {
	path := writeConfig(t, `
[server]
domain = "social.example.com"

[scheduler]
lock_duration = 30
handler_budget = 60
`)

	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "lock_duration") {
		t.Fatalf("expected lock duration error, got %v", err)
	}
}

func TestLoadNormalizesDomainCase(t *testing.T) {
	path := writeConfig(t, `
[server]
domain = "Social.Example.COM"
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Domain != "social.example.com" {
		t.Fatalf("expected lowercased domain, got %q", cfg.Server.Domain)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Server.Domain != "social.example.com" {
		t.Fatalf("unexpected sample domain %q", cfg.Server.Domain)
	}
}
