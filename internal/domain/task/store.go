package task

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned when an operation references an unknown task id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrDuplicateTask is returned when appending a task whose id is already stored.
	ErrDuplicateTask = errors.New("duplicate task id")

	// ErrInvalidTask is returned when a task is missing required fields.
	ErrInvalidTask = errors.New("invalid task")
)

// Store is the ordered collection of tasks for a single run. It is the single source
// of truth for orchestration state and is owned by one writer, so it does no locking;
// every mutation is visible to the next read.
type Store struct {
	tasks []Task
	index map[string]int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Append adds a task to the end of the store. Tasks are never removed.
func (s *Store) Append(t Task) error {
	if t.ID == "" || t.Type == "" || t.Target == "" {
		return fmt.Errorf("%w: id, type and target are required (id=%q type=%q target=%q)",
			ErrInvalidTask, t.ID, t.Type, t.Target)
	}
	if _, exists := s.index[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	if t.Status == "" {
		t.Status = StatusPending
	}

	s.index[t.ID] = len(s.tasks)
	s.tasks = append(s.tasks, t.Clone())
	return nil
}

// NextPending returns the first pending task in insertion order.
func (s *Store) NextPending() (Task, bool) {
	for _, t := range s.tasks {
		if t.Status == StatusPending {
			return t.Clone(), true
		}
	}
	return Task{}, false
}

// Running returns the task currently in the running state, if any.
func (s *Store) Running() (Task, bool) {
	for _, t := range s.tasks {
		if t.Status == StatusRunning {
			return t.Clone(), true
		}
	}
	return Task{}, false
}

// Get returns a copy of the task with the given id.
func (s *Store) Get(id string) (Task, error) {
	i, ok := s.index[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return s.tasks[i].Clone(), nil
}

// SetStatus moves a task to status, enforcing the lifecycle rules. Setting the
// status a task already has is a no-op.
func (s *Store) SetStatus(id string, status Status) error {
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	current := s.tasks[i].Status
	if current == status {
		return nil
	}
	if err := current.validateTransition(status); err != nil {
		return fmt.Errorf("task %s: %w", id, err)
	}

	s.tasks[i].Status = status
	return nil
}

// HasUnfinished reports whether any task is pending or running.
func (s *Store) HasUnfinished() bool {
	for _, t := range s.tasks {
		if t.Status.IsUnfinished() {
			return true
		}
	}
	return false
}

// Len returns the number of tasks ever appended.
func (s *Store) Len() int { return len(s.tasks) }

// Snapshot returns a deep copy of all tasks in insertion order.
func (s *Store) Snapshot() []Task {
	out := make([]Task, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Clone()
	}
	return out
}
