package task

import (
	"fmt"
	"slices"
	"time"
)

// ScopeViolationMarker is embedded in every log line that records a rejected target so
// downstream summarizers can detect violations by substring.
const ScopeViolationMarker = "Scope violation"

// LogEntry is one timestamped audit event.
type LogEntry struct {
	Time    time.Time
	Message string
}

// String renders the entry as "<timestamp> - <message>".
func (e LogEntry) String() string {
	return fmt.Sprintf("%s - %s", e.Time.Format(time.RFC3339Nano), e.Message)
}

// Log is an append-only, ordered audit trail. Entries are never rewritten.
type Log struct {
	entries []LogEntry
	now     func() time.Time
}

// NewLog creates an empty log stamped by now. A nil now uses time.Now.
func NewLog(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{now: now}
}

// Appendf formats and appends an entry.
func (l *Log) Appendf(format string, args ...any) {
	l.entries = append(l.entries, LogEntry{Time: l.now(), Message: fmt.Sprintf(format, args...)})
}

// Len returns the number of entries.
func (l *Log) Len() int { return len(l.entries) }

// Entries returns a copy of the entries.
func (l *Log) Entries() []LogEntry { return slices.Clone(l.entries) }

// Lines renders every entry as a string.
func (l *Log) Lines() []string {
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.String()
	}
	return out
}
