package schemas

// Step is one parsed line of a scenario.
type Step struct {
	// Keyword is the Gherkin keyword without trailing whitespace
	// (e.g. "Given", "When", "Then", "And", "But").
	Keyword string `json:"keyword"`
	// Text is the step text after the keyword.
	Text string `json:"text"`
	// Line is the 1-based line number in the feature file.
	Line int `json:"line"`
}

// Scenario is a named, ordered list of steps. The same record type carries a
// feature's Background section.
type Scenario struct {
	Name  string   `json:"name"`
	Tags  []string `json:"tags,omitempty"`
	Steps []Step   `json:"steps"`
	Line  int      `json:"line"`
}

// Feature is one parsed feature file.
type Feature struct {
	Name       string     `json:"name"`
	Path       string     `json:"path"`
	Tags       []string   `json:"tags,omitempty"`
	Background *Scenario  `json:"background,omitempty"`
	Scenarios  []Scenario `json:"scenarios"`
}

// HasTag reports whether the feature or any of its scenarios carries the tag.
func (f *Feature) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	for _, sc := range f.Scenarios {
		for _, t := range sc.Tags {
			if t == tag {
				return true
			}
		}
	}
	return false
}
