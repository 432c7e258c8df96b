package orchestration

import (
	"errors"
	"fmt"
)

var (
	// ErrScopeViolation marks a task whose target was rejected by the scope guard.
	// It is terminal for the task and never retried.
	ErrScopeViolation = errors.New("target out of scope")

	// ErrCapabilityFailure marks a failed capability attempt, whether the capability
	// returned an error, described one in its result, or panicked.
	ErrCapabilityFailure = errors.New("capability failure")

	// ErrRunCancelled is returned by Run when the context ends before the loop terminates.
	ErrRunCancelled = errors.New("run cancelled before completion")
)

// Failure reasons attached to failed-task metrics and logs.
const (
	reasonScope     = "scope_violation"
	reasonUnknown   = "unknown_capability"
	reasonExhausted = "retries_exhausted"
)

// AttemptError describes one failed capability attempt.
type AttemptError struct {
	TaskID  string
	Attempt int
	Err     error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("task %s attempt %d: %v", e.TaskID, e.Attempt, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }
