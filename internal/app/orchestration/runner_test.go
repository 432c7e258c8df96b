package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/recon-armada/internal/domain/capability"
	"github.com/ahrav/recon-armada/internal/domain/scope"
	"github.com/ahrav/recon-armada/internal/domain/task"
	"github.com/ahrav/recon-armada/pkg/common/logger"
)

// stubCapability counts invocations and returns scripted results in order; the last
// entry repeats once the script runs out.
type stubCapability struct {
	calls   atomic.Int32
	targets []string
	script  []stubResponse
}

type stubResponse struct {
	result task.Result
	err    error
	panic  bool
}

func (s *stubCapability) Invoke(_ context.Context, target string, _ task.Params) (task.Result, error) {
	n := int(s.calls.Add(1))
	s.targets = append(s.targets, target)

	resp := s.script[len(s.script)-1]
	if n <= len(s.script) {
		resp = s.script[n-1]
	}
	if resp.panic {
		panic("tool crashed")
	}
	return resp.result, resp.err
}

func succeed(output string) stubResponse {
	return stubResponse{result: task.Result{Output: output}}
}

func failWith(err error) stubResponse { return stubResponse{err: err} }

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("task-%d", n)
	}
}

func newTestRunner(t *testing.T, cfg Config, registry *capability.Registry, opts ...Option) *Runner {
	t.Helper()

	metrics, err := NewOrchestrationMetrics(metricnoop.NewMeterProvider())
	require.NoError(t, err)

	base := []Option{
		WithIDGenerator(sequentialIDs()),
		WithTracer(noop.NewTracerProvider().Tracer("test")),
		WithMetrics(metrics),
	}
	r, err := NewRunner(cfg, registry, logger.Noop(), append(base, opts...)...)
	require.NoError(t, err)
	return r
}

// singleTask classifies every instruction into one task of typ against target.
func singleTask(typ task.Type, target string) Option {
	return WithClassifier(ClassifierFunc(func(string) []InitialTask {
		return []InitialTask{{Type: typ, Target: target}}
	}))
}

func collect(t *testing.T, steps <-chan Snapshot) []Snapshot {
	t.Helper()

	var snaps []Snapshot
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-steps:
			if !ok {
				return snaps
			}
			snaps = append(snaps, s)
		case <-timeout:
			t.Fatal("run did not terminate")
			return nil
		}
	}
}

func assertRunInvariants(t *testing.T, snaps []Snapshot) {
	t.Helper()
	require.NotEmpty(t, snaps)

	for i, s := range snaps {
		assert.LessOrEqual(t, s.CountByStatus(task.StatusRunning), 1, "iteration %d", s.Iteration)
		if i < len(snaps)-1 {
			assert.True(t, s.HasUnfinished(), "only the final snapshot may be finished (iteration %d)", s.Iteration)
		}
	}
	final := snaps[len(snaps)-1]
	assert.False(t, final.HasUnfinished())

	for _, tk := range final.Tasks {
		_, ok := final.Results[tk.ID]
		assert.True(t, ok, "terminal task %s has no result", tk.ID)
	}
}

func TestRunner_PortScanExpandsToDirEnum(t *testing.T) {
	portScan := &stubCapability{script: []stubResponse{succeed("80/tcp open http\n22/tcp open ssh")}}
	dirEnum := &stubCapability{script: []stubResponse{succeed("/admin (Status: 403)")}}

	registry := capability.NewRegistry()
	registry.Register(task.TypePortScan, portScan)
	registry.Register(task.TypeDirEnum, dirEnum)

	r := newTestRunner(t, DefaultConfig(), registry)
	steps, err := r.Start(context.Background(), scope.MustNew([]string{"example.com"}, nil),
		"scan example.com for open ports")
	require.NoError(t, err)

	snaps := collect(t, steps)
	assertRunInvariants(t, snaps)

	final := snaps[len(snaps)-1]
	require.Len(t, final.Tasks, 2)

	original, derived := final.Tasks[0], final.Tasks[1]
	assert.Equal(t, task.TypePortScan, original.Type)
	assert.Equal(t, task.StatusCompleted, original.Status)
	assert.Equal(t, task.TypeDirEnum, derived.Type)
	assert.Equal(t, "example.com", derived.Target)
	assert.Equal(t, task.StatusCompleted, derived.Status)
	assert.NotEqual(t, original.ID, derived.ID)

	assert.EqualValues(t, 1, portScan.calls.Load())
	assert.EqualValues(t, 1, dirEnum.calls.Load())

	var expansions int
	for _, l := range final.Logs {
		if strings.Contains(l, "Added dir-enum task") {
			expansions++
		}
	}
	assert.Equal(t, 1, expansions)
	assert.Equal(t, "/admin (Status: 403)", final.Results[derived.ID].Output)
}

func TestRunner_ExpansionIsNotReevaluated(t *testing.T) {
	portScan := &stubCapability{script: []stubResponse{succeed("443/tcp open https")}}
	// The derived task keeps failing so the run spans several more iterations after
	// the port scan completed.
	dirEnum := &stubCapability{script: []stubResponse{failWith(errors.New("connection refused"))}}

	registry := capability.NewRegistry()
	registry.Register(task.TypePortScan, portScan)
	registry.Register(task.TypeDirEnum, dirEnum)

	r := newTestRunner(t, DefaultConfig(), registry, singleTask(task.TypePortScan, "example.com"))
	steps, err := r.Start(context.Background(), scope.MustNew([]string{"example.com"}, nil), "go")
	require.NoError(t, err)

	snaps := collect(t, steps)
	assertRunInvariants(t, snaps)

	for _, s := range snaps {
		assert.LessOrEqual(t, len(s.Tasks), 2)
	}
	final := snaps[len(snaps)-1]
	require.Len(t, final.Tasks, 2)
	assert.Equal(t, task.StatusFailed, final.Tasks[1].Status)
	assert.Greater(t, len(snaps), 2)
}

func TestRunner_NoExpansionWithoutWebService(t *testing.T) {
	portScan := &stubCapability{script: []stubResponse{succeed("22/tcp open ssh")}}
	registry := capability.NewRegistry()
	registry.Register(task.TypePortScan, portScan)

	r := newTestRunner(t, DefaultConfig(), registry, singleTask(task.TypePortScan, "example.com"))
	final, err := r.Run(context.Background(), scope.MustNew([]string{"example.com"}, nil), "go")
	require.NoError(t, err)

	require.Len(t, final.Tasks, 1)
	assert.Equal(t, task.StatusCompleted, final.Tasks[0].Status)
}

func TestRunner_ScopeViolation(t *testing.T) {
	stub := &stubCapability{script: []stubResponse{succeed("80/tcp open http")}}
	registry := capability.NewRegistry()
	registry.Register(task.TypePortScan, stub)

	r := newTestRunner(t, DefaultConfig(), registry)
	steps, err := r.Start(context.Background(), scope.MustNew([]string{"example.com"}, nil),
		"scan evil.com ports")
	require.NoError(t, err)

	snaps := collect(t, steps)
	assertRunInvariants(t, snaps)
	require.Len(t, snaps, 1, "rejection happens in the first iteration")

	final := snaps[0]
	require.Len(t, final.Tasks, 1)
	tk := final.Tasks[0]
	assert.Equal(t, "evil.com", tk.Target)
	assert.Equal(t, task.StatusFailed, tk.Status)
	assert.Equal(t, task.Result{Error: "Target out of scope", Findings: []string{}}, final.Results[tk.ID])
	assert.Len(t, final.ScopeViolations(), 1)
	assert.Contains(t, final.ScopeViolations()[0], "evil.com")
	assert.Zero(t, stub.calls.Load())
	assert.Zero(t, final.RetryCount[tk.ID])
}

func TestRunner_AlwaysFailingTaskExhaustsRetries(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		response   stubResponse
	}{
		{name: "returned error", maxRetries: 3, response: failWith(errors.New("nmap: host down"))},
		{name: "error in result", maxRetries: 3, response: stubResponse{result: task.Result{Error: "nmap is not installed"}}},
		{name: "panic", maxRetries: 3, response: stubResponse{panic: true}},
		{name: "single retry", maxRetries: 1, response: failWith(errors.New("boom"))},
		{name: "retries disabled", maxRetries: 0, response: failWith(errors.New("boom"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubCapability{script: []stubResponse{tt.response}}
			registry := capability.NewRegistry()
			registry.Register(task.TypePortScan, stub)

			cfg := DefaultConfig()
			cfg.MaxRetries = tt.maxRetries
			r := newTestRunner(t, cfg, registry, singleTask(task.TypePortScan, "example.com"))

			steps, err := r.Start(context.Background(), scope.MustNew([]string{"example.com"}, nil), "go")
			require.NoError(t, err)
			snaps := collect(t, steps)
			assertRunInvariants(t, snaps)

			final := snaps[len(snaps)-1]
			tk := final.Tasks[0]
			assert.Equal(t, task.StatusFailed, tk.Status)
			assert.EqualValues(t, tt.maxRetries+1, stub.calls.Load())
			assert.Equal(t, tt.maxRetries, final.RetryCount[tk.ID])
			assert.NotEmpty(t, final.Results[tk.ID].Error)

			// The counter never exceeds the limit and is at the limit before the
			// failed status becomes visible.
			for _, s := range snaps {
				assert.LessOrEqual(t, s.RetryCount[tk.ID], tt.maxRetries)
				if st, _ := s.Task(tk.ID); st.Status == task.StatusFailed {
					assert.Equal(t, tt.maxRetries, s.RetryCount[tk.ID])
				}
			}

			var permanent int
			for _, l := range final.Logs {
				if strings.Contains(l, "failed permanently") {
					permanent++
				}
			}
			assert.Equal(t, 1, permanent)
		})
	}
}

func TestRunner_RetryRecovers(t *testing.T) {
	stub := &stubCapability{script: []stubResponse{
		failWith(errors.New("timeout")),
		failWith(errors.New("timeout")),
		succeed("22/tcp open ssh"),
	}}
	registry := capability.NewRegistry()
	registry.Register(task.TypePortScan, stub)

	r := newTestRunner(t, DefaultConfig(), registry, singleTask(task.TypePortScan, "example.com"))
	steps, err := r.Start(context.Background(), scope.MustNew([]string{"example.com"}, nil), "go")
	require.NoError(t, err)

	snaps := collect(t, steps)
	assertRunInvariants(t, snaps)

	// Attempts 1 and 2 happen in the first pass; the task stays running until the
	// second pass retries again and succeeds.
	require.Len(t, snaps, 2)
	assert.Equal(t, task.StatusRunning, snaps[0].Tasks[0].Status)
	assert.Equal(t, "timeout", snaps[0].Results[snaps[0].Tasks[0].ID].Error)

	final := snaps[1]
	tk := final.Tasks[0]
	assert.Equal(t, task.StatusCompleted, tk.Status)
	assert.Equal(t, 2, final.RetryCount[tk.ID])
	assert.EqualValues(t, 3, stub.calls.Load())
	assert.Equal(t, "22/tcp open ssh", final.Results[tk.ID].Output)
	assert.Empty(t, final.Results[tk.ID].Error)
}

func TestRunner_FinalAttemptResultIsKept(t *testing.T) {
	stub := &stubCapability{script: []stubResponse{
		failWith(errors.New("down")),
		failWith(errors.New("down")),
		{result: task.Result{Output: "80/tcp open http", Findings: []string{"Open port detected"}}},
	}}
	registry := capability.NewRegistry()
	registry.Register(task.TypePortScan, stub)
	registry.Register(task.TypeDirEnum, &stubCapability{script: []stubResponse{succeed("")}})

	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	r := newTestRunner(t, cfg, registry, singleTask(task.TypePortScan, "example.com"))

	final, err := r.Run(context.Background(), scope.MustNew([]string{"example.com"}, nil), "go")
	require.NoError(t, err)

	// The final best-effort attempt succeeded, but the task was already failed and
	// no expansion happens.
	require.Len(t, final.Tasks, 1)
	tk := final.Tasks[0]
	assert.Equal(t, task.StatusFailed, tk.Status)
	assert.Equal(t, "80/tcp open http", final.Results[tk.ID].Output)
	assert.Equal(t, []string{"Open port detected"}, final.Results[tk.ID].Findings)
	assert.EqualValues(t, 3, stub.calls.Load())
}

func TestRunner_UnknownCapabilityFailsImmediately(t *testing.T) {
	stub := &stubCapability{script: []stubResponse{succeed("22/tcp open ssh")}}
	registry := capability.NewRegistry()
	registry.Register(task.TypePortScan, stub)

	classifier := ClassifierFunc(func(string) []InitialTask {
		return []InitialTask{
			{Type: "sql-inject", Target: "example.com"},
			{Type: task.TypePortScan, Target: "example.com"},
		}
	})
	r := newTestRunner(t, DefaultConfig(), registry, WithClassifier(classifier))

	steps, err := r.Start(context.Background(), scope.MustNew([]string{"example.com"}, nil), "go")
	require.NoError(t, err)
	snaps := collect(t, steps)
	assertRunInvariants(t, snaps)

	final := snaps[len(snaps)-1]
	require.Len(t, final.Tasks, 2)
	assert.Equal(t, task.StatusFailed, final.Tasks[0].Status)
	assert.Equal(t, "Unknown capability: sql-inject", final.Results[final.Tasks[0].ID].Error)
	assert.Zero(t, final.RetryCount[final.Tasks[0].ID])

	assert.Equal(t, task.StatusCompleted, final.Tasks[1].Status, "a failed task never aborts the run")
	assert.EqualValues(t, 1, stub.calls.Load())
}

func TestRunner_FIFOAndSingleRunning(t *testing.T) {
	stub := &stubCapability{script: []stubResponse{succeed("done")}}
	registry := capability.NewRegistry()
	registry.Register(task.TypePortScan, stub)

	classifier := ClassifierFunc(func(string) []InitialTask {
		return []InitialTask{
			{Type: task.TypePortScan, Target: "a.example.com"},
			{Type: task.TypePortScan, Target: "evil.org"},
			{Type: task.TypePortScan, Target: "b.example.com"},
		}
	})
	r := newTestRunner(t, DefaultConfig(), registry, WithClassifier(classifier))

	steps, err := r.Start(context.Background(), scope.MustNew([]string{"example.com"}, nil), "go")
	require.NoError(t, err)
	snaps := collect(t, steps)
	assertRunInvariants(t, snaps)

	assert.Equal(t, []string{"a.example.com", "b.example.com"}, stub.targets)
	require.Len(t, snaps, 3)
	assert.Equal(t, task.StatusFailed, snaps[1].Tasks[1].Status)
	assert.Equal(t, task.StatusPending, snaps[1].Tasks[2].Status)
}

func TestRunner_EmptyPlanEmitsSingleFinalSnapshot(t *testing.T) {
	r := newTestRunner(t, DefaultConfig(), capability.NewRegistry())

	steps, err := r.Start(context.Background(), scope.MustNew([]string{"example.com"}, nil), "hello there")
	require.NoError(t, err)

	snaps := collect(t, steps)
	require.Len(t, snaps, 1)
	assert.Empty(t, snaps[0].Tasks)
	assert.False(t, snaps[0].HasUnfinished())
	assert.Contains(t, snaps[0].Logs[len(snaps[0].Logs)-1], "No pending tasks")
}

func TestRunner_SnapshotsAreDetached(t *testing.T) {
	stub := &stubCapability{script: []stubResponse{
		failWith(errors.New("down")),
		failWith(errors.New("down")),
		succeed("ok"),
	}}
	registry := capability.NewRegistry()
	registry.Register(task.TypePortScan, stub)

	r := newTestRunner(t, DefaultConfig(), registry, singleTask(task.TypePortScan, "example.com"))
	steps, err := r.Start(context.Background(), scope.MustNew([]string{"example.com"}, nil), "go")
	require.NoError(t, err)

	first := <-steps
	require.True(t, first.HasUnfinished())
	id := first.Tasks[0].ID
	first.Tasks[0].Status = task.StatusFailed
	first.RetryCount[id] = 99
	first.Results[id] = task.Result{Output: "tampered"}
	first.Logs[0] = "tampered"

	rest := collect(t, steps)
	require.NotEmpty(t, rest)
	final := rest[len(rest)-1]
	assert.Equal(t, task.StatusCompleted, final.Tasks[0].Status)
	assert.Equal(t, 2, final.RetryCount[id])
	assert.Equal(t, "ok", final.Results[id].Output)
	assert.NotEqual(t, "tampered", final.Logs[0])
}

func TestRunner_TimeoutCountsAsFailure(t *testing.T) {
	var calls atomic.Int32
	slow := capability.Func(func(ctx context.Context, _ string, _ task.Params) (task.Result, error) {
		calls.Add(1)
		<-ctx.Done()
		return task.Result{}, ctx.Err()
	})
	registry := capability.NewRegistry()
	registry.Register(task.TypePortScan, slow)

	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	cfg.CapabilityTimeout = 10 * time.Millisecond
	r := newTestRunner(t, cfg, registry, singleTask(task.TypePortScan, "example.com"))

	final, err := r.Run(context.Background(), scope.MustNew([]string{"example.com"}, nil), "go")
	require.NoError(t, err)
	assert.Equal(t, task.StatusFailed, final.Tasks[0].Status)
	assert.Contains(t, final.Results[final.Tasks[0].ID].Error, context.DeadlineExceeded.Error())
	assert.EqualValues(t, 2, calls.Load())
}

func TestRunner_RetryDelayUsesBackoff(t *testing.T) {
	stub := &stubCapability{script: []stubResponse{failWith(errors.New("down")), succeed("ok")}}
	registry := capability.NewRegistry()
	registry.Register(task.TypePortScan, stub)

	cfg := DefaultConfig()
	cfg.RetryDelay = 20 * time.Millisecond
	r := newTestRunner(t, cfg, registry, singleTask(task.TypePortScan, "example.com"))

	start := time.Now()
	final, err := r.Run(context.Background(), scope.MustNew([]string{"example.com"}, nil), "go")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, final.Tasks[0].Status)
	// ExponentialBackOff randomizes by +/-50%.
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestRunner_CancelledRun(t *testing.T) {
	block := make(chan struct{})
	var once sync.Once
	slow := capability.Func(func(ctx context.Context, _ string, _ task.Params) (task.Result, error) {
		once.Do(func() { close(block) })
		<-ctx.Done()
		return task.Result{}, ctx.Err()
	})
	registry := capability.NewRegistry()
	registry.Register(task.TypePortScan, slow)

	ctx, cancel := context.WithCancel(context.Background())
	r := newTestRunner(t, DefaultConfig(), registry, singleTask(task.TypePortScan, "example.com"))

	go func() {
		<-block
		cancel()
	}()

	_, err := r.Run(ctx, scope.MustNew([]string{"example.com"}, nil), "go")
	assert.ErrorIs(t, err, ErrRunCancelled)
}

func TestRunner_EachRunHasIndependentState(t *testing.T) {
	stub := &stubCapability{script: []stubResponse{succeed("22/tcp open ssh")}}
	registry := capability.NewRegistry()
	registry.Register(task.TypePortScan, stub)

	r := newTestRunner(t, DefaultConfig(), registry, singleTask(task.TypePortScan, "example.com"))
	sc := scope.MustNew([]string{"example.com"}, nil)

	first, err := r.Run(context.Background(), sc, "go")
	require.NoError(t, err)
	second, err := r.Run(context.Background(), sc, "go")
	require.NoError(t, err)

	assert.Len(t, first.Tasks, 1)
	assert.Len(t, second.Tasks, 1)
	assert.NotEqual(t, first.Tasks[0].ID, second.Tasks[0].ID)
}

func TestNewRunner_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = -1
	_, err := NewRunner(cfg, capability.NewRegistry(), logger.Noop())
	assert.Error(t, err)

	_, err = NewRunner(DefaultConfig(), nil, logger.Noop())
	assert.Error(t, err)
}
