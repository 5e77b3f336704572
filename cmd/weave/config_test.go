package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".weave.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
concurrency: 3
node_timeout: 90s
agents_file: agents.yaml
registry: weave.db
backend:
  command: "run-agent"
on_failure:
  action: retry
  max_retries: 4
`)
	cfg, err := LoadConfig(path, true)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("concurrency = %d, want 3", cfg.Concurrency)
	}
	if time.Duration(cfg.NodeTimeout) != 90*time.Second {
		t.Errorf("node_timeout = %v, want 90s", time.Duration(cfg.NodeTimeout))
	}
	if cfg.Backend.Command != "run-agent" {
		t.Errorf("backend.command = %q", cfg.Backend.Command)
	}
	if cfg.OnFailure.Action != "retry" || cfg.OnFailure.MaxRetries != 4 {
		t.Errorf("on_failure = %+v", cfg.OnFailure)
	}
}

func TestLoadConfigMissingDefaultIsEmpty(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), ".weave.yaml"), false)
	if err != nil {
		t.Fatalf("missing default config should not error: %v", err)
	}
	if cfg.Concurrency != 0 || cfg.Backend.Command != "" {
		t.Errorf("expected zero config, got %+v", cfg)
	}
}

func TestLoadConfigMissingExplicitErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), true); err == nil {
		t.Fatal("want error for missing explicit config")
	}
}

func TestLoadConfigRejectsBadAction(t *testing.T) {
	path := writeConfig(t, "on_failure:\n  action: explode\n")
	if _, err := LoadConfig(path, true); err == nil {
		t.Fatal("want error for unknown failure action")
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, "node_timeout: soon\n")
	if _, err := LoadConfig(path, true); err == nil {
		t.Fatal("want error for unparsable duration")
	}
}
