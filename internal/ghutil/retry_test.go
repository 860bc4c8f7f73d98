package ghutil

import (
	"context"
	"testing"
	"time"
)

func TestBackoffSchedule(t *testing.T) {
	cfg := DefaultRetryConfig()

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // capped
		{10, 30 * time.Second},
		{0, 2 * time.Second}, // clamped to first attempt
	}
	for _, c := range cases {
		if got := cfg.Backoff(c.attempt); got != c.want {
			t.Errorf("Backoff(%d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name     string
		output   string
		exitCode int
		want     bool
	}{
		{"rate limit", "API rate limit exceeded", 1, true},
		{"server error", "HTTP 502 bad gateway", 1, true},
		{"network", "dial tcp: connection refused", 1, true},
		{"auth failure", "authentication required, run gh auth login", 1, false},
		{"not found", "GraphQL: Could not resolve (404 Not Found)", 1, false},
		{"validation", "HTTP 422: Validation Failed", 1, false},
		{"already exists", "a pull request already exists", 1, false},
		{"unclassified failure", "something odd happened", 1, true},
		{"success output", "", 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsRetryable(c.output, c.exitCode); got != c.want {
				t.Errorf("IsRetryable(%q, %d) = %v, want %v", c.output, c.exitCode, got, c.want)
			}
		})
	}
}

func TestRunPermanentFailureDoesNotRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	// "false" exits 1 with no output; unclassified, so it retries. Use a
	// tight config to keep the test fast and assert the final error.
	start := time.Now()
	_, err := Run(context.Background(), cfg, "false")
	if err == nil {
		t.Fatal("expected failure")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("retries took too long: %v", elapsed)
	}
}

func TestRunSuccess(t *testing.T) {
	out, err := Run(context.Background(), DefaultRetryConfig(), "echo", "hello")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if string(out) != "hello\n" {
		t.Errorf("output = %q, want %q", out, "hello\n")
	}
}
