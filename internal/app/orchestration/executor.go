package orchestration

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/recon-armada/internal/domain/capability"
	"github.com/ahrav/recon-armada/internal/domain/scope"
	"github.com/ahrav/recon-armada/internal/domain/task"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

// Executor is the orchestration state machine for a single run. It owns the task
// store, results, retry counters, and audit log, and is driven one iteration at a
// time by Step. An Executor is not safe for concurrent use; each run gets its own.
type Executor struct {
	cfg      Config
	guard    scope.Guard
	registry *capability.Registry
	expander *Expander

	store    *task.Store
	audit    *task.Log
	results  map[string]task.Result
	retries  map[string]int
	expanded map[string]struct{}

	iteration int
	newID     func() string
	retryWait backoff.BackOff

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics OrchestrationMetrics
}

// NewExecutor creates an Executor for one run. The store and audit log are usually
// pre-seeded by a Planner.
func NewExecutor(
	cfg Config,
	guard scope.Guard,
	registry *capability.Registry,
	expander *Expander,
	store *task.Store,
	audit *task.Log,
	newID func() string,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics OrchestrationMetrics,
) *Executor {
	return &Executor{
		cfg:       cfg,
		guard:     guard,
		registry:  registry,
		expander:  expander,
		store:     store,
		audit:     audit,
		results:   make(map[string]task.Result),
		retries:   make(map[string]int),
		expanded:  make(map[string]struct{}),
		newID:     newID,
		retryWait: newRetryBackOff(cfg.RetryDelay),
		logger:    log.With("component", "orchestration.executor"),
		tracer:    tracer,
		metrics:   metrics,
	}
}

// newRetryBackOff returns the delay policy between retry attempts, or nil when
// retries should run immediately.
func newRetryBackOff(initial time.Duration) backoff.BackOff {
	if initial <= 0 {
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = 10 * initial
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// HasUnfinished reports whether any task is still pending or running.
func (e *Executor) HasUnfinished() bool { return e.store.HasUnfinished() }

// Step runs one iteration of the loop. A task left running by a failed retry is
// resumed before any pending task is started, so at most one task is ever running.
func (e *Executor) Step(ctx context.Context) {
	e.iteration++
	ctx, span := e.tracer.Start(ctx, "orchestration.executor.step",
		trace.WithAttributes(attribute.Int("iteration", e.iteration)))
	defer span.End()

	if t, ok := e.store.Running(); ok {
		span.SetAttributes(attribute.String("task_id", t.ID), attribute.Bool("resumed", true))
		e.resume(ctx, t)
		return
	}

	t, ok := e.store.NextPending()
	if !ok {
		e.audit.Appendf("No pending tasks")
		e.logger.Debug(ctx, "no pending tasks", "iteration", e.iteration)
		return
	}
	span.SetAttributes(attribute.String("task_id", t.ID), attribute.String("task_type", t.Type.String()))
	e.start(ctx, t)
}

// start gates a pending task through the scope guard and registry, then makes the
// first attempt.
func (e *Executor) start(ctx context.Context, t task.Task) {
	logr := logger.NewLoggerContext(e.logger.With(
		"task_id", t.ID,
		"task_type", t.Type.String(),
		"target", t.Target,
	))

	if !e.guard.IsInScope(t.Target) {
		e.audit.Appendf("%s for %s (task %s)", task.ScopeViolationMarker, t.Target, t.ID)
		e.fail(ctx, t, task.ErrorResult("Target out of scope"), reasonScope)
		if e.metrics != nil {
			e.metrics.IncScopeViolations(ctx)
		}
		logr.Warn(ctx, "target rejected by scope guard", "error", ErrScopeViolation)
		return
	}

	c, err := e.registry.Lookup(t.Type)
	if err != nil {
		e.audit.Appendf("Task %s failed: unknown capability %s", t.ID, t.Type)
		e.fail(ctx, t, task.ErrorResult(fmt.Sprintf("Unknown capability: %s", t.Type)), reasonUnknown)
		logr.Error(ctx, "no capability registered for task type", "error", err)
		return
	}

	if err := e.store.SetStatus(t.ID, task.StatusRunning); err != nil {
		logr.Error(ctx, "failed to mark task running", "error", err)
		return
	}
	e.audit.Appendf("Task %s started", t.ID)
	if e.metrics != nil {
		e.metrics.IncTasksStarted(ctx, t.Type)
	}
	if e.retryWait != nil {
		e.retryWait.Reset()
	}
	logr.Info(ctx, "task started")

	outcome := e.attempt(ctx, c, t, 1)
	e.results[t.ID] = outcome.Result
	if outcome.OK() {
		e.complete(ctx, t, outcome.Result)
		return
	}

	logr.Add("attempt", 1)
	logr.Warn(ctx, "task attempt failed", "error", outcome.Err)
	e.retryOrFail(ctx, c, t)
}

// resume continues a running task whose last attempt failed.
func (e *Executor) resume(ctx context.Context, t task.Task) {
	c, err := e.registry.Lookup(t.Type)
	if err != nil {
		// Registrations are not expected to disappear mid-run, but the task must
		// still reach a terminal state.
		e.audit.Appendf("Task %s failed: unknown capability %s", t.ID, t.Type)
		e.fail(ctx, t, task.ErrorResult(fmt.Sprintf("Unknown capability: %s", t.Type)), reasonUnknown)
		return
	}
	e.retryOrFail(ctx, c, t)
}

// retryOrFail applies the bounded retry policy after a failed attempt. The counter is
// incremented first; below the limit one retry is made in this pass and a failed
// retry leaves the task running for the next pass. Reaching the limit marks the task
// failed and makes one final best-effort attempt whose result is kept for
// diagnostics. A task that always fails is therefore invoked MaxRetries+1 times.
func (e *Executor) retryOrFail(ctx context.Context, c capability.Capability, t task.Task) {
	logr := e.logger.With("task_id", t.ID, "task_type", t.Type.String())
	used := e.retries[t.ID]

	if used >= e.cfg.MaxRetries {
		e.audit.Appendf("Task %s failed permanently", t.ID)
		e.fail(ctx, t, e.results[t.ID], reasonExhausted)
		logr.Error(ctx, "task failed permanently", "retries", used)
		return
	}

	used++
	e.retries[t.ID] = used
	if e.metrics != nil {
		e.metrics.IncRetries(ctx, t.Type)
	}

	if used < e.cfg.MaxRetries {
		e.audit.Appendf("Task %s failed, retry %d", t.ID, used)
		logr.Info(ctx, "retrying task", "retry", used, "max_retries", e.cfg.MaxRetries)
		if !e.waitRetry(ctx) {
			return
		}

		outcome := e.attempt(ctx, c, t, used+1)
		e.results[t.ID] = outcome.Result
		if outcome.OK() {
			e.complete(ctx, t, outcome.Result)
			return
		}
		logr.Warn(ctx, "retry attempt failed", "retry", used, "error", outcome.Err)
		return
	}

	e.audit.Appendf("Task %s failed permanently", t.ID)
	e.fail(ctx, t, e.results[t.ID], reasonExhausted)
	logr.Error(ctx, "task failed permanently", "retries", used)

	if !e.waitRetry(ctx) {
		return
	}
	outcome := e.attempt(ctx, c, t, used+1)
	e.results[t.ID] = outcome.Result
	logr.Debug(ctx, "final attempt recorded", "succeeded", outcome.OK())
}

// waitRetry sleeps for the next backoff interval. It returns false if ctx ended first.
func (e *Executor) waitRetry(ctx context.Context) bool {
	if e.retryWait == nil {
		return true
	}
	d := e.retryWait.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// attempt invokes the capability once and classifies the outcome. Panics are
// recovered and treated like any other failure.
func (e *Executor) attempt(ctx context.Context, c capability.Capability, t task.Task, n int) task.Outcome {
	ctx, span := e.tracer.Start(ctx, "orchestration.executor.attempt",
		trace.WithAttributes(
			attribute.String("task_id", t.ID),
			attribute.String("task_type", t.Type.String()),
			attribute.String("target", t.Target),
			attribute.Int("attempt", n),
		))
	defer span.End()

	if e.cfg.CapabilityTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CapabilityTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := invoke(ctx, c, t)
	if e.metrics != nil {
		e.metrics.ObserveAttemptDuration(ctx, t.Type, time.Since(start))
	}
	res = res.Clone()

	if err == nil && res.Failed() {
		err = errors.New(res.Error)
	}
	if err == nil {
		span.SetAttributes(attribute.Int("findings.count", len(res.Findings)))
		span.SetStatus(codes.Ok, "attempt succeeded")
		return task.Succeeded(res)
	}

	outcome := task.FailedWith(res, err)
	outcome.Err = &AttemptError{TaskID: t.ID, Attempt: n, Err: fmt.Errorf("%w: %w", ErrCapabilityFailure, err)}
	span.RecordError(outcome.Err)
	span.SetStatus(codes.Error, "attempt failed")
	return outcome
}

func invoke(ctx context.Context, c capability.Capability, t task.Task) (res task.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = task.Result{}
			err = fmt.Errorf("capability panicked: %v", r)
		}
	}()
	return c.Invoke(ctx, t.Target, t.Params.Clone())
}

// complete marks t completed and evaluates expansion rules exactly once for it.
func (e *Executor) complete(ctx context.Context, t task.Task, res task.Result) {
	if err := e.store.SetStatus(t.ID, task.StatusCompleted); err != nil {
		e.logger.Error(ctx, "failed to mark task completed", "task_id", t.ID, "error", err)
		return
	}
	e.audit.Appendf("Task %s completed", t.ID)
	if e.metrics != nil {
		e.metrics.IncTasksCompleted(ctx, t.Type)
	}
	e.logger.Info(ctx, "task completed", "task_id", t.ID, "task_type", t.Type.String(), "findings", len(res.Findings))

	e.expand(ctx, t, res)
}

func (e *Executor) expand(ctx context.Context, t task.Task, res task.Result) {
	if e.expander == nil {
		return
	}
	if _, done := e.expanded[t.ID]; done {
		return
	}
	e.expanded[t.ID] = struct{}{}

	derived, fired := e.expander.Derive(t, res)
	for i, d := range derived {
		d.ID = e.newID()
		if err := e.store.Append(d); err != nil {
			e.logger.Error(ctx, "failed to append derived task", "source_task_id", t.ID, "error", err)
			continue
		}
		e.audit.Appendf("Added %s task %s for %s due to %s output matching rule %s",
			d.Type, d.ID, d.Target, t.Type, fired[i].Name)
		if e.metrics != nil {
			e.metrics.IncExpansions(ctx, t.Type, d.Type)
		}
		e.logger.Info(ctx, "task expanded",
			"source_task_id", t.ID,
			"derived_task_id", d.ID,
			"derived_type", d.Type.String(),
			"rule", fired[i].Name,
		)
	}
}

// fail moves t to failed and records res as its result.
func (e *Executor) fail(ctx context.Context, t task.Task, res task.Result, reason string) {
	e.results[t.ID] = res
	if err := e.store.SetStatus(t.ID, task.StatusFailed); err != nil {
		e.logger.Error(ctx, "failed to mark task failed", "task_id", t.ID, "error", err)
		return
	}
	if e.metrics != nil {
		e.metrics.IncTasksFailed(ctx, t.Type, reason)
	}
}

// Snapshot copies the current orchestration state.
func (e *Executor) Snapshot() Snapshot {
	results := make(map[string]task.Result, len(e.results))
	for id, r := range e.results {
		results[id] = r.Clone()
	}
	return Snapshot{
		Iteration:  e.iteration,
		Tasks:      e.store.Snapshot(),
		Results:    results,
		Logs:       e.audit.Lines(),
		RetryCount: maps.Clone(e.retries),
	}
}
