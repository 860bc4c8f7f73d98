package engine

import "errors"

// Sentinel errors for the fatal conditions callers must not paper over.
var (
	// ErrTaskNotCompleted: the agent run finished but the plan still
	// reports the task incomplete.
	ErrTaskNotCompleted = errors.New("task not marked complete")

	// ErrNoCIWorkflow: a task finished without establishing a CI
	// workflow definition under .github/workflows.
	ErrNoCIWorkflow = errors.New("no CI workflow definition present")

	// ErrMaxRetries: the CI build fixer exhausted its attempt budget
	// without a passing run.
	ErrMaxRetries = errors.New("max retries exceeded")

	// ErrRecoveryFailed: commit recovery could not finish the dangling
	// commit; the operator must commit manually.
	ErrRecoveryFailed = errors.New("commit recovery failed")
)
