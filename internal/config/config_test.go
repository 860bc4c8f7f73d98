package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.Command != "claude" {
		t.Errorf("Agent.Command = %q, want claude", cfg.Agent.Command)
	}
	if cfg.Git.IntegrationBranch != "main" {
		t.Errorf("IntegrationBranch = %q, want main", cfg.Git.IntegrationBranch)
	}
	if cfg.CI.FixRetries != 3 {
		t.Errorf("FixRetries = %d, want 3", cfg.CI.FixRetries)
	}
	if cfg.CIWaitTimeout() != 600*time.Second {
		t.Errorf("CIWaitTimeout = %v, want 600s", cfg.CIWaitTimeout())
	}
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	content := `
agent:
  command: codex
  timeout_minutes: 30
git:
  integration_branch: develop
ci:
  fix_retries: 5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.Command != "codex" {
		t.Errorf("Agent.Command = %q, want codex", cfg.Agent.Command)
	}
	if cfg.AgentTimeout() != 30*time.Minute {
		t.Errorf("AgentTimeout = %v, want 30m", cfg.AgentTimeout())
	}
	if cfg.Git.IntegrationBranch != "develop" {
		t.Errorf("IntegrationBranch = %q, want develop", cfg.Git.IntegrationBranch)
	}
	if cfg.CI.FixRetries != 5 {
		t.Errorf("FixRetries = %d, want 5", cfg.CI.FixRetries)
	}
	// Unset fields keep defaults.
	if cfg.CI.PollIntervalSeconds != 10 {
		t.Errorf("PollIntervalSeconds = %d, want 10", cfg.CI.PollIntervalSeconds)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("agent: [not a mapping"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error for malformed yaml")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("default config should validate, got %v", errs)
	}

	cfg.CI.FixRetries = -1
	cfg.Agent.TimeoutMinutes = -5
	errs := cfg.Validate()
	if len(errs) != 2 {
		t.Fatalf("Validate = %d errors, want 2: %v", len(errs), errs)
	}
	if errs[0].Field != "ci.fix_retries" {
		t.Errorf("first error field = %q, want ci.fix_retries", errs[0].Field)
	}
}
