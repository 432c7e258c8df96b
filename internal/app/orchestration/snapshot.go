package orchestration

import (
	"strings"

	"github.com/ahrav/recon-armada/internal/domain/task"
)

// Snapshot is a detached copy of orchestration state after one loop iteration.
// Consumers may read or modify it freely; nothing in it aliases the running loop.
type Snapshot struct {
	Iteration  int                    `json:"iteration"`
	Tasks      []task.Task            `json:"tasks"`
	Results    map[string]task.Result `json:"results"`
	Logs       []string               `json:"logs"`
	RetryCount map[string]int         `json:"retry_count"`
}

// HasUnfinished reports whether any task in the snapshot is pending or running.
func (s Snapshot) HasUnfinished() bool {
	for _, t := range s.Tasks {
		if t.Status.IsUnfinished() {
			return true
		}
	}
	return false
}

// Task returns the task with id.
func (s Snapshot) Task(id string) (task.Task, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return task.Task{}, false
}

// CountByStatus returns how many tasks are in status.
func (s Snapshot) CountByStatus(status task.Status) int {
	n := 0
	for _, t := range s.Tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

// TasksOfType returns the tasks of typ in insertion order.
func (s Snapshot) TasksOfType(typ task.Type) []task.Task {
	var out []task.Task
	for _, t := range s.Tasks {
		if t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}

// ScopeViolations returns the log lines that record rejected targets.
func (s Snapshot) ScopeViolations() []string {
	var out []string
	for _, l := range s.Logs {
		if strings.Contains(l, task.ScopeViolationMarker) {
			out = append(out, l)
		}
	}
	return out
}
