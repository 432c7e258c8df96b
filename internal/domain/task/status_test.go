package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{name: "pending to running", from: StatusPending, to: StatusRunning},
		{name: "pending to failed", from: StatusPending, to: StatusFailed},
		{name: "running to completed", from: StatusRunning, to: StatusCompleted},
		{name: "running to failed", from: StatusRunning, to: StatusFailed},
		{name: "pending to completed", from: StatusPending, to: StatusCompleted, wantErr: true},
		{name: "running back to pending", from: StatusRunning, to: StatusPending, wantErr: true},
		{name: "completed is terminal", from: StatusCompleted, to: StatusRunning, wantErr: true},
		{name: "failed is terminal", from: StatusFailed, to: StatusPending, wantErr: true},
		{name: "failed cannot complete", from: StatusFailed, to: StatusCompleted, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.from.validateTransition(tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("running")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, s)

	_, err = ParseStatus("STALE")
	assert.Error(t, err)
}

func TestOutcome(t *testing.T) {
	ok := Succeeded(Result{Output: "done"})
	assert.True(t, ok.OK())
	assert.Nil(t, ok.Err)

	failed := FailedWith(Result{Output: "partial"}, assert.AnError)
	assert.False(t, failed.OK())
	assert.Equal(t, assert.AnError.Error(), failed.Result.Error)
	assert.Equal(t, "partial", failed.Result.Output)

	described := FailedWith(Result{Error: "nmap missing"}, assert.AnError)
	assert.Equal(t, "nmap missing", described.Result.Error)
}
