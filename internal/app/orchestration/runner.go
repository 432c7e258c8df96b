// Package orchestration drives a run of security-scanning tasks: it seeds tasks from
// an instruction, executes them one at a time behind the scope guard with bounded
// retries, grows the task set through expansion rules, and streams a snapshot of the
// run's state after every iteration.
package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/recon-armada/internal/domain/capability"
	"github.com/ahrav/recon-armada/internal/domain/scope"
	"github.com/ahrav/recon-armada/internal/domain/task"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

// Runner starts orchestration runs. A Runner holds only immutable collaborators, so
// one Runner may start many runs, each with its own independent state.
type Runner struct {
	cfg        Config
	registry   *capability.Registry
	classifier Classifier
	rules      []ExpansionRule

	newID func() string
	now   func() time.Time

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics OrchestrationMetrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithClassifier replaces the default keyword classifier.
func WithClassifier(c Classifier) Option { return func(r *Runner) { r.classifier = c } }

// WithExpansionRules replaces the default expansion rules.
func WithExpansionRules(rules []ExpansionRule) Option {
	return func(r *Runner) { r.rules = append([]ExpansionRule(nil), rules...) }
}

// WithIDGenerator overrides task id generation.
func WithIDGenerator(fn func() string) Option { return func(r *Runner) { r.newID = fn } }

// WithClock overrides the audit log clock.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// WithTracer sets the tracer used for iteration and attempt spans.
func WithTracer(t trace.Tracer) Option { return func(r *Runner) { r.tracer = t } }

// WithMetrics sets the metrics sink.
func WithMetrics(m OrchestrationMetrics) Option { return func(r *Runner) { r.metrics = m } }

// NewRunner validates cfg and creates a Runner over registry.
func NewRunner(cfg Config, registry *capability.Registry, log *logger.Logger, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid orchestration config: %w", err)
	}
	if registry == nil {
		return nil, fmt.Errorf("capability registry is required")
	}

	r := &Runner{
		cfg:        cfg,
		registry:   registry,
		classifier: DefaultKeywordClassifier(cfg),
		rules:      DefaultExpansionRules(cfg),
		newID:      uuid.NewString,
		now:        time.Now,
		logger:     log.With("component", "orchestration.runner"),
		tracer:     noop.NewTracerProvider().Tracer("orchestration"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start seeds a new run from instruction and returns a stream of snapshots, one per
// loop iteration. The stream is lazy: the loop does not run ahead of the consumer by
// more than one iteration. It is closed after the first snapshot with no pending or
// running task, or when ctx ends. A returned stream cannot be restarted; call Start
// again for a new run.
func (r *Runner) Start(ctx context.Context, sc scope.Scope, instruction string) (<-chan Snapshot, error) {
	store := task.NewStore()
	audit := task.NewLog(r.now)

	planner := NewPlanner(r.classifier, r.cfg.DefaultTarget, r.newID)
	planned, err := planner.Seed(store, audit, instruction)
	if err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.IncTasksPlanned(ctx, planned)
	}

	exec := NewExecutor(
		r.cfg,
		scope.NewGuard(sc),
		r.registry,
		NewExpander(r.rules),
		store,
		audit,
		r.newID,
		r.logger,
		r.tracer,
		r.metrics,
	)

	r.logger.Info(ctx, "run started", "planned_tasks", planned, "scope", sc.String())

	out := make(chan Snapshot)
	go r.loop(ctx, exec, out)
	return out, nil
}

func (r *Runner) loop(ctx context.Context, exec *Executor, out chan<- Snapshot) {
	defer close(out)

	ctx, span := r.tracer.Start(ctx, "orchestration.runner.run")
	defer span.End()

	for {
		if ctx.Err() != nil {
			r.logger.Warn(ctx, "run cancelled", "error", ctx.Err())
			return
		}

		exec.Step(ctx)
		snap := exec.Snapshot()

		select {
		case out <- snap:
		case <-ctx.Done():
			r.logger.Warn(ctx, "run cancelled while emitting snapshot", "error", ctx.Err())
			return
		}

		if !snap.HasUnfinished() {
			span.SetAttributes(
				attribute.Int("iterations", snap.Iteration),
				attribute.Int("tasks", len(snap.Tasks)),
			)
			r.logger.Info(ctx, "run finished",
				"iterations", snap.Iteration,
				"tasks", len(snap.Tasks),
				"completed", snap.CountByStatus(task.StatusCompleted),
				"failed", snap.CountByStatus(task.StatusFailed),
			)
			return
		}
	}
}

// Run starts a run and drains it, returning the final snapshot. If ctx ends before
// the loop terminates it returns the last snapshot seen and ErrRunCancelled.
func (r *Runner) Run(ctx context.Context, sc scope.Scope, instruction string) (Snapshot, error) {
	steps, err := r.Start(ctx, sc, instruction)
	if err != nil {
		return Snapshot{}, err
	}

	var last Snapshot
	for snap := range steps {
		last = snap
	}
	if last.HasUnfinished() || (last.Iteration == 0 && ctx.Err() != nil) {
		return last, fmt.Errorf("%w: %w", ErrRunCancelled, context.Cause(ctx))
	}
	return last, nil
}
