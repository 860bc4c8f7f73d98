// Package config loads implement.yaml, the per-idea engine settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the idea directory.
const FileName = "implement.yaml"

// Config represents the implement.yaml configuration.
type Config struct {
	Version string      `yaml:"version"`
	Agent   AgentConfig `yaml:"agent"`
	Git     GitConfig   `yaml:"git"`
	CI      CIConfig    `yaml:"ci"`
	Forge   ForgeConfig `yaml:"forge"`
}

// AgentConfig describes how to invoke the coding agent.
type AgentConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// TimeoutMinutes bounds a single agent invocation. Zero means no
	// timeout.
	TimeoutMinutes int `yaml:"timeout_minutes"`
}

// GitConfig holds git-related settings.
type GitConfig struct {
	IntegrationBranch string `yaml:"integration_branch"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

// CIConfig holds CI wait and auto-repair settings.
type CIConfig struct {
	WaitTimeoutSeconds  int `yaml:"wait_timeout_seconds"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	FixRetries          int `yaml:"fix_retries"`
}

// ForgeConfig holds gh invocation settings.
type ForgeConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field    string
	Message  string
	Expected string
}

func (e ValidationError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("%s: %s (expected: %s)", e.Field, e.Message, e.Expected)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the configuration used when no implement.yaml exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads and parses the configuration file. A missing file yields
// the defaults rather than an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Agent.Command == "" {
		c.Agent.Command = "claude"
	}
	if c.Git.IntegrationBranch == "" {
		c.Git.IntegrationBranch = "main"
	}
	if c.Git.TimeoutSeconds == 0 {
		c.Git.TimeoutSeconds = 60
	}
	if c.CI.WaitTimeoutSeconds == 0 {
		c.CI.WaitTimeoutSeconds = 600
	}
	if c.CI.PollIntervalSeconds == 0 {
		c.CI.PollIntervalSeconds = 10
	}
	if c.CI.FixRetries == 0 {
		c.CI.FixRetries = 3
	}
	if c.Forge.TimeoutSeconds == 0 {
		c.Forge.TimeoutSeconds = 60
	}
}

// Validate checks the configuration for out-of-range values.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.CI.FixRetries < 1 {
		errors = append(errors, ValidationError{
			Field:    "ci.fix_retries",
			Message:  fmt.Sprintf("invalid value: %d", c.CI.FixRetries),
			Expected: "at least 1",
		})
	}
	if c.CI.PollIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:    "ci.poll_interval_seconds",
			Message:  fmt.Sprintf("invalid value: %d", c.CI.PollIntervalSeconds),
			Expected: "at least 1",
		})
	}
	if c.Agent.TimeoutMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "agent.timeout_minutes",
			Message: "must not be negative",
		})
	}

	return errors
}

// AgentTimeout returns the agent invocation timeout as a duration.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Agent.TimeoutMinutes) * time.Minute
}

// GitTimeout returns the per-command git timeout.
func (c *Config) GitTimeout() time.Duration {
	return time.Duration(c.Git.TimeoutSeconds) * time.Second
}

// ForgeTimeout returns the per-command gh timeout.
func (c *Config) ForgeTimeout() time.Duration {
	return time.Duration(c.Forge.TimeoutSeconds) * time.Second
}

// CIWaitTimeout returns the total CI wait budget.
func (c *Config) CIWaitTimeout() time.Duration {
	return time.Duration(c.CI.WaitTimeoutSeconds) * time.Second
}

// CIPollInterval returns the CI polling interval.
func (c *Config) CIPollInterval() time.Duration {
	return time.Duration(c.CI.PollIntervalSeconds) * time.Second
}
