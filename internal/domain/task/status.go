package task

import (
	"errors"
	"fmt"
)

// Status represents the execution state of an individual task.
type Status string

// ErrInvalidTransition is returned when a status change violates the task lifecycle.
var ErrInvalidTransition = errors.New("invalid task status transition")

const (
	// StatusPending indicates a task is created but not yet started.
	StatusPending Status = "PENDING"

	// StatusRunning indicates the task's capability is being invoked, including
	// while it waits for a retry.
	StatusRunning Status = "RUNNING"

	// StatusCompleted indicates a task finished successfully.
	StatusCompleted Status = "COMPLETED"

	// StatusFailed indicates a task was rejected or exhausted its retries.
	StatusFailed Status = "FAILED"
)

// String returns the string representation of the Status.
func (s Status) String() string { return string(s) }

// IsTerminal reports whether no further transitions are allowed from s.
func (s Status) IsTerminal() bool { return s == StatusCompleted || s == StatusFailed }

// IsUnfinished reports whether s still keeps a run alive.
func (s Status) IsUnfinished() bool { return s == StatusPending || s == StatusRunning }

// ParseStatus converts a string to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "PENDING", "pending":
		return StatusPending, nil
	case "RUNNING", "running":
		return StatusRunning, nil
	case "COMPLETED", "completed":
		return StatusCompleted, nil
	case "FAILED", "failed":
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("unknown task status %q", s)
	}
}

// validateTransition checks if a status transition is valid and returns an error if not.
func (s Status) validateTransition(target Status) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, s, target)
	}
	return nil
}

// isValidTransition enforces pending -> running -> {completed | failed}. A pending
// task may also fail directly when it is rejected before it starts.
func (s Status) isValidTransition(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusRunning || target == StatusFailed
	case StatusRunning:
		return target == StatusCompleted || target == StatusFailed
	case StatusCompleted, StatusFailed:
		// Terminal states - no further transitions allowed.
		return false
	default:
		return false
	}
}
