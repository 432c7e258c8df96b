package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesJSONWithServiceAndTrace(t *testing.T) {
	var buf bytes.Buffer
	traceFn := func(context.Context) string { return "trace-1" }
	log := NewWithMetadata(&buf, LevelInfo, "recon", traceFn, Events{}, map[string]string{"run": "r1"})

	log.Debug(context.Background(), "hidden")
	log.With("component", "executor").Info(context.Background(), "task started", "task_id", "t1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "task started", rec["msg"])
	assert.Equal(t, "recon", rec["service"])
	assert.Equal(t, "r1", rec["run"])
	assert.Equal(t, "executor", rec["component"])
	assert.Equal(t, "t1", rec["task_id"])
	assert.Equal(t, "trace-1", rec["trace_id"])
	assert.Contains(t, rec["file"], "logger_test.go")
}

func TestLogger_ErrorEventFires(t *testing.T) {
	var got []Record
	events := Events{Error: func(_ context.Context, r Record) { got = append(got, r) }}
	log := NewWithEvents(&bytes.Buffer{}, LevelDebug, "recon", nil, events)

	log.Info(context.Background(), "ignored")
	log.Error(context.Background(), "boom", "task_id", "t1")

	require.Len(t, got, 1)
	assert.Equal(t, "boom", got[0].Message)
	assert.Equal(t, "t1", got[0].Attributes["task_id"])
}

func TestLoggerContext_Add(t *testing.T) {
	var buf bytes.Buffer
	lc := NewLoggerContext(New(&buf, LevelDebug, "recon", nil))
	lc.Add("attempt", 2)
	lc.Info(context.Background(), "retrying")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.EqualValues(t, 2, rec["attempt"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
