// Package ghutil runs gh CLI commands with bounded exponential backoff.
package ghutil

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strings"
	"time"
)

// RetryConfig holds retry parameters for gh CLI calls.
type RetryConfig struct {
	MaxAttempts int           // default 3
	BaseDelay   time.Duration // default 2s
	MaxDelay    time.Duration // default 30s
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Backoff returns the delay before the given 1-based attempt's retry,
// doubling from BaseDelay and capped at MaxDelay.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(c.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// IsRetryable reports whether a gh CLI failure is worth retrying.
// Auth and validation errors are permanent; rate limits, network issues and
// server errors are transient.
func IsRetryable(output string, exitCode int) bool {
	lower := strings.ToLower(output)

	permanent := []string{
		"authentication", "auth", "login",
		"not found", "404",
		"422", "validation failed",
		"already exists",
	}
	for _, s := range permanent {
		if strings.Contains(lower, s) {
			return false
		}
	}

	transient := []string{
		"rate limit", "rate_limit", "403",
		"500", "502", "503", "504",
		"timeout", "timed out",
		"connection refused", "connection reset",
		"no such host", "network",
		"temporary failure",
	}
	for _, s := range transient {
		if strings.Contains(lower, s) {
			return true
		}
	}

	return exitCode != 0
}

// Run executes a command with retry, capturing combined output. Permanent
// failures return immediately; transient ones back off per cfg.
func Run(ctx context.Context, cfg RetryConfig, name string, args ...string) ([]byte, error) {
	return RunDir(ctx, cfg, "", name, args...)
}

// RunDir is Run with an explicit working directory ("" means inherit).
func RunDir(ctx context.Context, cfg RetryConfig, dir, name string, args ...string) ([]byte, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	var lastOutput []byte

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Dir = dir
		output, err := cmd.CombinedOutput()
		if err == nil {
			return output, nil
		}

		lastErr = err
		lastOutput = output

		exitCode := 1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		if !IsRetryable(string(output), exitCode) {
			return output, err
		}

		if attempt < cfg.MaxAttempts {
			delay := cfg.Backoff(attempt)
			fmt.Fprintf(os.Stderr, "[ghutil] %s failed (attempt %d/%d), retrying in %v: %s\n",
				name, attempt, cfg.MaxAttempts, delay, strings.TrimSpace(string(output)))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return lastOutput, ctx.Err()
			}
		}
	}

	return lastOutput, fmt.Errorf("%s failed after %d attempts: %w", name, cfg.MaxAttempts, lastErr)
}
