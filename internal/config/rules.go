package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahrav/recon-armada/internal/app/orchestration"
	"github.com/ahrav/recon-armada/internal/domain/task"
)

// Rules is the contents of a rules file.
type Rules struct {
	Expansion  []ExpansionRuleSpec  `yaml:"expansion_rules"`
	Classifier []ClassifierRuleSpec `yaml:"classifier_rules"`
}

// ExpansionRuleSpec describes one expansion rule.
type ExpansionRuleSpec struct {
	Name    string            `yaml:"name"`
	Source  string            `yaml:"source"`
	Derived string            `yaml:"derived"`
	Pattern string            `yaml:"pattern"`
	Params  map[string]string `yaml:"params"`
}

// ClassifierRuleSpec describes one keyword classifier rule. Every phrase must match.
type ClassifierRuleSpec struct {
	Type    string            `yaml:"type"`
	Phrases []string          `yaml:"phrases"`
	Params  map[string]string `yaml:"params"`
}

// RulesLoader loads a rules file.
type RulesLoader interface {
	Load(ctx context.Context) (*Rules, error)
}

// ExpansionRules compiles the expansion rules. An empty section yields nil so callers
// keep the defaults.
func (r *Rules) ExpansionRules() ([]orchestration.ExpansionRule, error) {
	if len(r.Expansion) == 0 {
		return nil, nil
	}

	out := make([]orchestration.ExpansionRule, 0, len(r.Expansion))
	var errs []error
	for i, spec := range r.Expansion {
		rule, err := orchestration.NewExpansionRule(
			spec.Name,
			task.Type(spec.Source),
			task.Type(spec.Derived),
			spec.Pattern,
			task.Params(spec.Params),
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("expansion rule %d (%s): %w", i, spec.Name, err))
			continue
		}
		out = append(out, rule)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// Classifier compiles the classifier rules. An empty section yields nil so callers
// keep the default classifier.
func (r *Rules) Classifier() (orchestration.Classifier, error) {
	if len(r.Classifier) == 0 {
		return nil, nil
	}

	kw := make([]orchestration.KeywordRule, 0, len(r.Classifier))
	var errs []error
	for i, spec := range r.Classifier {
		rule, err := orchestration.NewKeywordRule(task.Type(spec.Type), task.Params(spec.Params), spec.Phrases...)
		if err != nil {
			errs = append(errs, fmt.Errorf("classifier rule %d (%s): %w", i, spec.Type, err))
			continue
		}
		kw = append(kw, rule)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return orchestration.NewKeywordClassifier(kw...), nil
}
