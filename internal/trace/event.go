// Package trace provides a JSONL event stream recording engine decisions.
package trace

import (
	"time"
)

// Component identifies the engine part that emitted an event.
const (
	ComponentEngine   = "engine"
	ComponentBuildFix = "buildfix"
	ComponentReview   = "review"
	ComponentRecovery = "recovery"
	ComponentAgent    = "agent"
	ComponentForge    = "forge"
)

// Severity levels.
const (
	LevelInfo     = "info"
	LevelWarn     = "warn"
	LevelError    = "error"
	LevelDecision = "decision"
)

// Event types.
const (
	TypeRunStart      = "run_start"
	TypeRunEnd        = "run_end"
	TypeTaskStart     = "task_start"
	TypeTaskEnd       = "task_end"
	TypeSliceAdvance  = "slice_advance"
	TypeFixAttempt    = "fix_attempt"
	TypeFixResult     = "fix_result"
	TypeReviewSweep   = "review_sweep"
	TypeRecoveryCheck = "recovery_check"
	TypeAgentInvoke   = "agent_invoke"
	TypePRCreate      = "pr_create"
	TypePRReady       = "pr_ready"
	TypeCIWait        = "ci_wait"
	TypeInterrupt     = "interrupt"
)

// Event is one entry in the stream.
type Event struct {
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"ts"`

	Component string `json:"component"`
	Type      string `json:"type"`
	Level     string `json:"level"`

	Slice    int `json:"slice,omitempty"`
	PRNumber int `json:"pr_number,omitempty"`

	Data     any       `json:"data,omitempty"`
	Decision *Decision `json:"decision,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Decision records a branch point: the rule applied, the observed
// conditions, and the chosen result.
type Decision struct {
	Rule       string         `json:"rule"`
	Conditions map[string]any `json:"conditions"`
	Result     string         `json:"result"`
}

// Option configures an Event.
type Option func(*Event)

// WithSlice tags the event with the current slice number.
func WithSlice(n int) Option {
	return func(e *Event) { e.Slice = n }
}

// WithPR tags the event with a pull-request number.
func WithPR(n int) Option {
	return func(e *Event) { e.PRNumber = n }
}

// WithData attaches arbitrary data.
func WithData(data any) Option {
	return func(e *Event) { e.Data = data }
}

// WithError attaches an error message.
func WithError(err error) Option {
	return func(e *Event) {
		if err != nil {
			e.Error = err.Error()
		}
	}
}

// NewEvent builds an event with the given sequence number.
func NewEvent(seq int, component, eventType, level string, opts ...Option) *Event {
	e := &Event{
		Seq:       seq,
		Timestamp: time.Now().UTC(),
		Component: component,
		Type:      eventType,
		Level:     level,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
