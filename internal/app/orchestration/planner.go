package orchestration

import (
	"fmt"
	"strings"

	regexp "github.com/wasilibs/go-re2"

	"github.com/ahrav/recon-armada/internal/domain/task"
)

// InitialTask is what a classifier extracts from an instruction. Target may be empty,
// in which case the planner substitutes the configured default target.
type InitialTask struct {
	Type   task.Type
	Target string
	Params task.Params
}

// Classifier turns a free-text instruction into initial tasks. Implementations must be
// pure: same instruction, same output, no side effects.
type Classifier interface {
	Classify(instruction string) []InitialTask
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(instruction string) []InitialTask

// Classify calls f.
func (f ClassifierFunc) Classify(instruction string) []InitialTask { return f(instruction) }

// KeywordRule emits a task of Type when every one of its phrases matches the
// instruction.
type KeywordRule struct {
	Type    task.Type
	Params  task.Params
	phrases []*regexp.Regexp
}

// NewKeywordRule compiles phrases (case-insensitive) into a rule.
func NewKeywordRule(typ task.Type, params task.Params, phrases ...string) (KeywordRule, error) {
	if typ == "" || len(phrases) == 0 {
		return KeywordRule{}, fmt.Errorf("keyword rule requires a type and at least one phrase")
	}
	rule := KeywordRule{Type: typ, Params: params.Clone()}
	for _, p := range phrases {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return KeywordRule{}, fmt.Errorf("compiling phrase %q for %s: %w", p, typ, err)
		}
		rule.phrases = append(rule.phrases, re)
	}
	return rule, nil
}

func (r KeywordRule) matches(instruction string) bool {
	for _, re := range r.phrases {
		if !re.MatchString(instruction) {
			return false
		}
	}
	return true
}

// KeywordClassifier is the default trigger-phrase classifier. The target token is
// the instruction's second word ("scan example.com for open ports").
type KeywordClassifier struct {
	rules []KeywordRule
}

// NewKeywordClassifier creates a classifier over rules, evaluated in order.
func NewKeywordClassifier(rules ...KeywordRule) *KeywordClassifier {
	return &KeywordClassifier{rules: rules}
}

// DefaultKeywordClassifier recognizes port scan and directory discovery requests.
func DefaultKeywordClassifier(cfg Config) *KeywordClassifier {
	ports, err := NewKeywordRule(task.TypePortScan, task.Params{"ports": cfg.DefaultPorts}, `scan`, `ports`)
	if err != nil {
		panic(err)
	}

	wordlist := task.Params{}
	if cfg.DefaultWordlist != "" {
		wordlist["wordlist"] = cfg.DefaultWordlist
	}
	dirs, err := NewKeywordRule(task.TypeDirEnum, wordlist, `discover\s+directories`)
	if err != nil {
		panic(err)
	}

	return NewKeywordClassifier(ports, dirs)
}

// Classify implements Classifier.
func (c *KeywordClassifier) Classify(instruction string) []InitialTask {
	target := targetToken(instruction)

	var out []InitialTask
	for _, r := range c.rules {
		if !r.matches(instruction) {
			continue
		}
		out = append(out, InitialTask{Type: r.Type, Target: target, Params: r.Params.Clone()})
	}
	return out
}

func targetToken(instruction string) string {
	fields := strings.Fields(instruction)
	if len(fields) < 2 {
		return ""
	}
	return strings.TrimRight(fields[1], ",;:!?.")
}

// Planner seeds a run's task store from an instruction.
type Planner struct {
	classifier    Classifier
	defaultTarget string
	newID         func() string
}

// NewPlanner creates a Planner. newID must return ids unique within a run.
func NewPlanner(classifier Classifier, defaultTarget string, newID func() string) *Planner {
	return &Planner{classifier: classifier, defaultTarget: defaultTarget, newID: newID}
}

// Plan classifies the instruction into pending tasks with fresh ids.
func (p *Planner) Plan(instruction string) ([]task.Task, error) {
	initial := p.classifier.Classify(instruction)

	tasks := make([]task.Task, 0, len(initial))
	for i, it := range initial {
		if it.Type == "" {
			return nil, fmt.Errorf("classifier produced task %d without a type", i)
		}
		target := strings.TrimSpace(it.Target)
		if target == "" {
			target = p.defaultTarget
		}
		tasks = append(tasks, task.New(p.newID(), it.Type, target, it.Params))
	}
	return tasks, nil
}

// Seed plans the instruction, appends the tasks to store, and records the plan in
// audit. It returns the number of tasks added.
func (p *Planner) Seed(store *task.Store, audit *task.Log, instruction string) (int, error) {
	tasks, err := p.Plan(instruction)
	if err != nil {
		return 0, fmt.Errorf("planning instruction: %w", err)
	}
	for _, t := range tasks {
		if err := store.Append(t); err != nil {
			return 0, fmt.Errorf("seeding task %s: %w", t.ID, err)
		}
	}
	audit.Appendf("Planned tasks from instruction: %s", instruction)
	return len(tasks), nil
}
