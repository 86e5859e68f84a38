package schemas

import (
	"strings"
	"time"
)

// Intent is the canonical action category inferred from a step's text.
type Intent string

const (
	IntentNavigate      Intent = "navigate"
	IntentFill          Intent = "fill"
	IntentClick         Intent = "click"
	IntentSelect        Intent = "select"
	IntentCheck         Intent = "check"
	IntentUncheck       Intent = "uncheck"
	IntentAssertText    Intent = "assertText"
	IntentAssertURL     Intent = "assertUrl"
	IntentAssertVisible Intent = "assertVisible"
)

// ElementType is the optional type hint attached to an element reference.
type ElementType string

const (
	ElementButton   ElementType = "button"
	ElementLink     ElementType = "link"
	ElementInput    ElementType = "input"
	ElementDropdown ElementType = "dropdown"
	ElementCheckbox ElementType = "checkbox"
	ElementRadio    ElementType = "radio"
	ElementTextarea ElementType = "textarea"
	ElementAny      ElementType = "any"
)

// Action is the structured, executable form of one step. Actions are produced
// fresh per step text and never cached: the text may contain placeholders that
// must be resolved per occurrence.
type Action struct {
	Intent      Intent      `json:"intent"`
	Locator     string      `json:"locator,omitempty"`
	Value       string      `json:"value,omitempty"`
	ElementType ElementType `json:"element_type,omitempty"`
}

// Descriptor identifies which element a step refers to.
type Descriptor struct {
	Name string      `json:"name"`
	Type ElementType `json:"type"`
}

// Key returns the normalized registry cache key for this descriptor:
// case-folded, whitespace-collapsed, with the type hint appended so that
// "Login" the button and "Login" the link cache independently.
func (d Descriptor) Key() string {
	name := strings.ToLower(strings.Join(strings.Fields(d.Name), " "))
	typ := d.Type
	if typ == "" {
		typ = ElementAny
	}
	return name + "|" + string(typ)
}

func (d Descriptor) String() string {
	if d.Type == "" || d.Type == ElementAny {
		return d.Name
	}
	return d.Name + " (" + string(d.Type) + ")"
}

// Status is the outcome of a step, scenario, or feature.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusPending Status = "pending"
)

// Artifact is one diagnostic file captured during a failed step attempt.
type Artifact struct {
	Kind      string    `json:"kind"` // "screenshot" or "dom"
	Path      string    `json:"path"`
	Step      string    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

// StepResult records the outcome of a single executed (or skipped) step.
type StepResult struct {
	Step        Step          `json:"step"`
	Status      Status        `json:"status"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
	Diagnostics []Artifact    `json:"diagnostics,omitempty"`
	Attempts    int           `json:"attempts"`
}

// ScenarioResult aggregates the ordered step results of one scenario. Error
// is set only for failures outside any step, such as a session that could
// not be created.
type ScenarioResult struct {
	Name     string        `json:"name"`
	Tags     []string      `json:"tags,omitempty"`
	Steps    []StepResult  `json:"steps"`
	Status   Status        `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Rollup derives the scenario status from its steps: failed if any step
// failed, skipped if zero steps ran, passed otherwise.
func (s *ScenarioResult) Rollup() {
	ran := false
	for _, st := range s.Steps {
		switch st.Status {
		case StatusFailed:
			s.Status = StatusFailed
			return
		case StatusPassed:
			ran = true
		}
	}
	if !ran {
		s.Status = StatusSkipped
		return
	}
	s.Status = StatusPassed
}

// FeatureResult aggregates the scenario results of one feature file.
type FeatureResult struct {
	Name      string           `json:"name"`
	Path      string           `json:"path"`
	Scenarios []ScenarioResult `json:"scenarios"`
	Status    Status           `json:"status"`
	Duration  time.Duration    `json:"duration"`
}

// Rollup derives the feature status from its scenarios.
func (f *FeatureResult) Rollup() {
	f.Status = StatusPassed
	if len(f.Scenarios) == 0 {
		f.Status = StatusSkipped
		return
	}
	allSkipped := true
	for _, sc := range f.Scenarios {
		if sc.Status == StatusFailed {
			f.Status = StatusFailed
			return
		}
		if sc.Status != StatusSkipped {
			allSkipped = false
		}
	}
	if allSkipped {
		f.Status = StatusSkipped
	}
}

// RunResult is the top-level rollup handed to reporters.
type RunResult struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Features   []FeatureResult `json:"features"`
}

// Failed reports whether any feature in the run failed.
func (r *RunResult) Failed() bool {
	for _, f := range r.Features {
		if f.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Counts returns the number of passed, failed, and skipped scenarios.
func (r *RunResult) Counts() (passed, failed, skipped int) {
	for _, f := range r.Features {
		for _, sc := range f.Scenarios {
			switch sc.Status {
			case StatusPassed:
				passed++
			case StatusFailed:
				failed++
			case StatusSkipped:
				skipped++
			}
		}
	}
	return passed, failed, skipped
}
