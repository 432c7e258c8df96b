package logger

// LoggerContext accumulates attributes over the course of an operation so
// later log lines carry everything learned earlier (task id, attempt, etc).
type LoggerContext struct {
	*Logger
}

// NewLoggerContext wraps l so attributes can be added incrementally.
func NewLoggerContext(l *Logger) *LoggerContext {
	return &LoggerContext{Logger: l}
}

// Add appends key/value pairs to every subsequent record.
func (lc *LoggerContext) Add(args ...any) {
	lc.Logger = lc.Logger.With(args...)
}
