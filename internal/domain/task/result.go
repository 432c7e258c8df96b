package task

import "slices"

// Result is produced exactly once per attempt. Only the latest attempt's result is
// retained for a task.
type Result struct {
	Output   string   `json:"output"`
	Error    string   `json:"error,omitempty"`
	Findings []string `json:"findings"`
}

// Failed reports whether the result carries an error description.
func (r Result) Failed() bool { return r.Error != "" }

// Clone returns a deep copy of the result.
func (r Result) Clone() Result {
	r.Findings = slices.Clone(r.Findings)
	if r.Findings == nil {
		r.Findings = []string{}
	}
	return r
}

// ErrorResult builds a result that only describes a failure.
func ErrorResult(msg string) Result {
	return Result{Error: msg, Findings: []string{}}
}

// OutcomeKind tags an attempt as a success or a failure.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
)

// String returns a readable name for the kind.
func (k OutcomeKind) String() string {
	if k == OutcomeSuccess {
		return "success"
	}
	return "failure"
}

// Outcome is the tagged result of one capability attempt. Err is non-nil exactly
// when Kind is OutcomeFailure.
type Outcome struct {
	Kind   OutcomeKind
	Result Result
	Err    error
}

// Succeeded returns a success outcome for r.
func Succeeded(r Result) Outcome { return Outcome{Kind: OutcomeSuccess, Result: r} }

// FailedWith returns a failure outcome. The result's Error field is filled from err
// when the capability did not describe the failure itself.
func FailedWith(r Result, err error) Outcome {
	if r.Error == "" && err != nil {
		r.Error = err.Error()
	}
	return Outcome{Kind: OutcomeFailure, Result: r, Err: err}
}

// OK reports whether the attempt succeeded.
func (o Outcome) OK() bool { return o.Kind == OutcomeSuccess }
