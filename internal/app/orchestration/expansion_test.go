package orchestration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/recon-armada/internal/domain/task"
)

func TestDefaultExpansionRules_WebService(t *testing.T) {
	rules := DefaultExpansionRules(DefaultConfig())
	require.Len(t, rules, 1)
	rule := rules[0]

	tests := []struct {
		name   string
		typ    task.Type
		output string
		want   bool
	}{
		{name: "http port", typ: task.TypePortScan, output: "PORT   STATE SERVICE\n80/tcp open  http", want: true},
		{name: "https alt port", typ: task.TypePortScan, output: "8443/tcp open", want: true},
		{name: "banner only", typ: task.TypePortScan, output: "9000/tcp open http", want: true},
		{name: "ssh only", typ: task.TypePortScan, output: "22/tcp open ssh", want: false},
		{name: "closed web port", typ: task.TypePortScan, output: "80/tcp closed http", want: false},
		{name: "port number inside another", typ: task.TypePortScan, output: "1080/tcp open socks", want: false},
		{name: "wrong source type", typ: task.TypeDirEnum, output: "80/tcp open http", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rule.Matches(tt.typ, tt.output))
		})
	}
}

func TestExpander_Derive(t *testing.T) {
	secrets, err := NewExpansionRule("exposed-pages", task.TypeDirEnum, task.TypeSecretScan,
		`Status: 200`, task.Params{"paths": "auto"})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.DefaultWordlist = "common.txt"
	x := NewExpander(append(DefaultExpansionRules(cfg), secrets))

	source := task.Task{ID: "t1", Type: task.TypePortScan, Target: "example.com", Status: task.StatusCompleted}
	derived, fired := x.Derive(source, task.Result{Output: "80/tcp open http"})
	require.Len(t, derived, 1)
	require.Len(t, fired, 1)
	assert.Equal(t, "web-service", fired[0].Name)
	assert.Equal(t, task.TypeDirEnum, derived[0].Type)
	assert.Equal(t, "example.com", derived[0].Target)
	assert.Equal(t, task.StatusPending, derived[0].Status)
	assert.Equal(t, "common.txt", derived[0].Params["wordlist"])
	assert.Empty(t, derived[0].ID)

	dirTask := task.Task{ID: "t2", Type: task.TypeDirEnum, Target: "example.com"}
	derived, _ = x.Derive(dirTask, task.Result{Output: "/admin (Status: 200)"})
	require.Len(t, derived, 1)
	assert.Equal(t, task.TypeSecretScan, derived[0].Type)

	derived, _ = x.Derive(dirTask, task.Result{Output: "/admin (Status: 404)"})
	assert.Empty(t, derived)
}

func TestNewExpansionRule_Validation(t *testing.T) {
	_, err := NewExpansionRule("bad", task.TypePortScan, "", `x`, nil)
	assert.Error(t, err)

	_, err = NewExpansionRule("bad", task.TypePortScan, task.TypeDirEnum, `(`, nil)
	assert.Error(t, err)
}
