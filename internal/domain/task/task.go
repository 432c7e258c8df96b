// Package task provides the domain model for scan tasks: their identity, lifecycle
// status, per-attempt results, the ordered store that owns them during a run, and the
// append-only audit log written alongside them.
package task

import (
	"maps"
)

// Type names the capability that executes a task (e.g. "port-scan", "dir-enum").
type Type string

// String returns the string representation of the Type.
func (t Type) String() string { return string(t) }

// Well-known task types.
const (
	TypePortScan   Type = "port-scan"
	TypeDirEnum    Type = "dir-enum"
	TypeSecretScan Type = "secret-scan"
)

// Params holds capability-specific configuration such as a port range or wordlist.
type Params map[string]string

// Clone returns a copy of p that can be handed out without aliasing.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	return maps.Clone(p)
}

// Task represents a single unit of scanning work. A task's ID is assigned once at
// creation and never changes; only its status evolves over the course of a run.
type Task struct {
	ID     string `json:"id"`
	Type   Type   `json:"type"`
	Target string `json:"target"`
	Params Params `json:"params"`
	Status Status `json:"status"`
}

// New creates a pending task.
func New(id string, typ Type, target string, params Params) Task {
	return Task{
		ID:     id,
		Type:   typ,
		Target: target,
		Params: params.Clone(),
		Status: StatusPending,
	}
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	t.Params = t.Params.Clone()
	return t
}

// IsTerminal reports whether the task has reached COMPLETED or FAILED.
func (t Task) IsTerminal() bool { return t.Status.IsTerminal() }
