package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/recon-armada/internal/app/orchestration"
	"github.com/ahrav/recon-armada/internal/domain/task"
)

func snapshotWith(iteration int, logs []string, tasks ...task.Task) orchestration.Snapshot {
	return orchestration.Snapshot{
		Iteration:  iteration,
		Tasks:      tasks,
		Results:    map[string]task.Result{},
		Logs:       logs,
		RetryCount: map[string]int{},
	}
}

func withStatus(t task.Task, s task.Status) task.Task {
	t.Status = s
	return t
}

func TestRenderer_PrintsOnlyNewLogLines(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out, false, false)

	scan := task.New("t1", task.TypePortScan, "example.com", nil)
	require.NoError(t, r.Snapshot(snapshotWith(1, []string{"first"}, withStatus(scan, task.StatusRunning))))
	require.NoError(t, r.Snapshot(snapshotWith(2, []string{"first", "second"}, withStatus(scan, task.StatusCompleted))))

	text := out.String()
	assert.Equal(t, 1, strings.Count(text, "first"))
	assert.Equal(t, 1, strings.Count(text, "second"))
	assert.Contains(t, text, "Iteration 2")
	assert.Contains(t, text, "port-scan")
	assert.Contains(t, text, "COMPLETED")
}

func TestRenderer_FinalOnly(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out, false, true)

	scan := task.New("t1", task.TypePortScan, "example.com", nil)
	require.NoError(t, r.Snapshot(snapshotWith(1, []string{"started"}, withStatus(scan, task.StatusRunning))))
	assert.Empty(t, out.String())

	require.NoError(t, r.Snapshot(snapshotWith(2, []string{"started", "done"}, withStatus(scan, task.StatusCompleted))))
	assert.Contains(t, out.String(), "started")
	assert.Contains(t, out.String(), "done")
}

func TestRenderer_JSON(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out, true, false)

	scan := withStatus(task.New("t1", task.TypePortScan, "example.com", nil), task.StatusCompleted)
	require.NoError(t, r.Snapshot(snapshotWith(1, nil, scan)))

	var decoded orchestration.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, 1, decoded.Iteration)
	require.Len(t, decoded.Tasks, 1)
	assert.Equal(t, task.StatusCompleted, decoded.Tasks[0].Status)

	require.NoError(t, r.Summary(decoded, 0))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}

func TestRenderer_Summary(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out, false, false)

	ok := withStatus(task.New("t1", task.TypePortScan, "example.com", nil), task.StatusCompleted)
	bad := withStatus(task.New("t2", task.TypeDirEnum, "evil.com", nil), task.StatusFailed)
	snap := snapshotWith(2, []string{
		"2025-01-01T00:00:00Z - Scope violation for evil.com (task t2)",
	}, ok, bad)
	snap.Results["t1"] = task.Result{Output: "80/tcp open", Findings: []string{"Open port detected: 80/tcp (http)"}}
	snap.Results["t2"] = task.ErrorResult("Target out of scope")

	require.NoError(t, r.Summary(snap, 2))

	text := out.String()
	assert.Contains(t, text, "tasks: 2  completed: 1  failed: 1")
	assert.Contains(t, text, "scope violations: 1")
	assert.Contains(t, text, "Scope violation for evil.com")
	assert.Contains(t, text, "errors logged: 2")
	assert.Contains(t, text, "Open port detected: 80/tcp (http)")
	assert.Contains(t, text, "error: Target out of scope")
}
