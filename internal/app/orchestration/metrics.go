package orchestration

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/recon-armada/internal/domain/task"
)

// OrchestrationMetrics defines metrics operations needed by the executor loop.
type OrchestrationMetrics interface {
	// Planning metrics.
	IncTasksPlanned(ctx context.Context, count int)

	// Task lifecycle metrics.
	IncTasksStarted(ctx context.Context, typ task.Type)
	IncTasksCompleted(ctx context.Context, typ task.Type)
	IncTasksFailed(ctx context.Context, typ task.Type, reason string)
	IncScopeViolations(ctx context.Context)

	// Attempt metrics.
	IncRetries(ctx context.Context, typ task.Type)
	ObserveAttemptDuration(ctx context.Context, typ task.Type, duration time.Duration)

	// Expansion metrics.
	IncExpansions(ctx context.Context, from, to task.Type)
}

// orchestrationMetrics implements OrchestrationMetrics.
type orchestrationMetrics struct {
	tasksPlanned    metric.Int64Counter
	tasksStarted    metric.Int64Counter
	tasksCompleted  metric.Int64Counter
	tasksFailed     metric.Int64Counter
	scopeViolations metric.Int64Counter

	retries         metric.Int64Counter
	attemptDuration metric.Float64Histogram

	expansions metric.Int64Counter
}

const namespace = "orchestrator"

// NewOrchestrationMetrics creates a new orchestration metrics instance.
func NewOrchestrationMetrics(mp metric.MeterProvider) (OrchestrationMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(orchestrationMetrics)
	var err error

	if m.tasksPlanned, err = meter.Int64Counter(
		"tasks_planned_total",
		metric.WithDescription("Total number of tasks seeded by the planner"),
	); err != nil {
		return nil, err
	}

	if m.tasksStarted, err = meter.Int64Counter(
		"tasks_started_total",
		metric.WithDescription("Total number of tasks moved to running"),
	); err != nil {
		return nil, err
	}

	if m.tasksCompleted, err = meter.Int64Counter(
		"tasks_completed_total",
		metric.WithDescription("Total number of tasks that completed successfully"),
	); err != nil {
		return nil, err
	}

	if m.tasksFailed, err = meter.Int64Counter(
		"tasks_failed_total",
		metric.WithDescription("Total number of tasks that ended in the failed state"),
	); err != nil {
		return nil, err
	}

	if m.scopeViolations, err = meter.Int64Counter(
		"scope_violations_total",
		metric.WithDescription("Total number of targets rejected by the scope guard"),
	); err != nil {
		return nil, err
	}

	if m.retries, err = meter.Int64Counter(
		"task_retries_total",
		metric.WithDescription("Total number of retry attempts"),
	); err != nil {
		return nil, err
	}

	if m.attemptDuration, err = meter.Float64Histogram(
		"attempt_duration_seconds",
		metric.WithDescription("Time taken by a single capability invocation"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.expansions, err = meter.Int64Counter(
		"task_expansions_total",
		metric.WithDescription("Total number of tasks derived by expansion rules"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *orchestrationMetrics) IncTasksPlanned(ctx context.Context, count int) {
	m.tasksPlanned.Add(ctx, int64(count))
}

func (m *orchestrationMetrics) IncTasksStarted(ctx context.Context, typ task.Type) {
	m.tasksStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", typ.String())))
}

func (m *orchestrationMetrics) IncTasksCompleted(ctx context.Context, typ task.Type) {
	m.tasksCompleted.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", typ.String())))
}

func (m *orchestrationMetrics) IncTasksFailed(ctx context.Context, typ task.Type, reason string) {
	m.tasksFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", typ.String()),
		attribute.String("reason", reason),
	))
}

func (m *orchestrationMetrics) IncScopeViolations(ctx context.Context) {
	m.scopeViolations.Add(ctx, 1)
}

func (m *orchestrationMetrics) IncRetries(ctx context.Context, typ task.Type) {
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", typ.String())))
}

func (m *orchestrationMetrics) ObserveAttemptDuration(ctx context.Context, typ task.Type, duration time.Duration) {
	m.attemptDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.String("task_type", typ.String())))
}

func (m *orchestrationMetrics) IncExpansions(ctx context.Context, from, to task.Type) {
	m.expansions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from_type", from.String()),
		attribute.String("to_type", to.String()),
	))
}
