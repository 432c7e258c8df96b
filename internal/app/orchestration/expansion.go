package orchestration

import (
	"errors"
	"fmt"

	regexp "github.com/wasilibs/go-re2"

	"github.com/ahrav/recon-armada/internal/domain/task"
)

// webServicePattern matches port-scan output that shows an open web port or an
// http(s) service banner.
const webServicePattern = `(?im)\b(80|443|8000|8080|8443)/tcp\s+open\b|\bopen\s+https?\b`

// ExpansionRule derives a follow-up task from the output of a successful task.
type ExpansionRule struct {
	Name        string
	SourceType  task.Type
	DerivedType task.Type
	Params      task.Params
	pattern     *regexp.Regexp
}

// NewExpansionRule compiles pattern into a rule.
func NewExpansionRule(name string, source, derived task.Type, pattern string, params task.Params) (ExpansionRule, error) {
	if source == "" || derived == "" {
		return ExpansionRule{}, errors.New("expansion rule requires source and derived types")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ExpansionRule{}, fmt.Errorf("compiling expansion rule %q: %w", name, err)
	}
	return ExpansionRule{
		Name:        name,
		SourceType:  source,
		DerivedType: derived,
		Params:      params.Clone(),
		pattern:     re,
	}, nil
}

// Pattern returns the rule's trigger expression.
func (r ExpansionRule) Pattern() string {
	if r.pattern == nil {
		return ""
	}
	return r.pattern.String()
}

// Matches reports whether the rule fires for a task of typ that produced output.
func (r ExpansionRule) Matches(typ task.Type, output string) bool {
	return r.pattern != nil && r.SourceType == typ && r.pattern.MatchString(output)
}

// DefaultExpansionRules returns the built-in rule set: a port scan that finds a web
// service triggers a directory enumeration of the same target.
func DefaultExpansionRules(cfg Config) []ExpansionRule {
	params := task.Params{}
	if cfg.DefaultWordlist != "" {
		params["wordlist"] = cfg.DefaultWordlist
	}
	rule, err := NewExpansionRule("web-service", task.TypePortScan, task.TypeDirEnum, webServicePattern, params)
	if err != nil {
		// The pattern is a compile-time constant.
		panic(err)
	}
	return []ExpansionRule{rule}
}

// Expander evaluates expansion rules against completed tasks.
type Expander struct {
	rules []ExpansionRule
}

// NewExpander creates an Expander over rules.
func NewExpander(rules []ExpansionRule) *Expander {
	return &Expander{rules: append([]ExpansionRule(nil), rules...)}
}

// Derive returns one new pending task per matching rule. The derived tasks target the
// source task's target and carry no id; the caller assigns one.
func (x *Expander) Derive(source task.Task, res task.Result) ([]task.Task, []ExpansionRule) {
	var (
		derived []task.Task
		fired   []ExpansionRule
	)
	for _, r := range x.rules {
		if !r.Matches(source.Type, res.Output) {
			continue
		}
		derived = append(derived, task.New("", r.DerivedType, source.Target, r.Params))
		fired = append(fired, r)
	}
	return derived, fired
}
