package schemas

import (
	"context"
	"time"
)

// Entity is a text span tagged with a semantic role and its character offset.
type Entity struct {
	Role  string `json:"role"` // "element", "value", "page", "message"
	Start int    `json:"start"`
	Text  string `json:"text"`
}

// Classification is the result of running the intent classifier over one
// step's text. An empty or "none" intent means no intent applied.
type Classification struct {
	Intent   string   `json:"intent"`
	Entities []Entity `json:"entities"`
}

// Classifier is the injected intent classification capability. The core is
// written against this contract so the statistical model (or a trivial
// deterministic stub) is fully substitutable.
type Classifier interface {
	Classify(text string) Classification
}

// DataResolver looks up a dot-path key in the run's test data.
type DataResolver interface {
	Resolve(key string) (string, bool)
}

// Locator addresses one concrete element on a live page: the index of the
// frame it lives in (0 is the main frame) and a selector evaluated within
// that frame, piercing open shadow roots. Selectors of the form "text=..."
// match by trimmed text content.
type Locator struct {
	Frame    int    `json:"frame"`
	Selector string `json:"selector"`
}

// Candidate is one interactive element collected by the structural scan.
type Candidate struct {
	Frame       int    `json:"frame"`
	Tag         string `json:"tag"`
	Text        string `json:"text"`
	ID          string `json:"id"`
	AriaLabel   string `json:"ariaLabel"`
	Placeholder string `json:"placeholder"`
	TestID      string `json:"testId"`
}

// Frame is one same-process frame of the current page.
type Frame interface {
	// Index is the frame's position in the page's frame enumeration.
	Index() int
	// QueryVisible reports whether the selector resolves to a visible
	// element within the timeout.
	QueryVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	// ByRole finds a visible element by accessibility role and
	// case-insensitive accessible name, returning its selector.
	ByRole(ctx context.Context, role, name string, timeout time.Duration) (string, bool, error)
	// ByLabel finds a visible form control associated with a <label>
	// whose text matches name.
	ByLabel(ctx context.Context, name string, timeout time.Duration) (string, bool, error)
	// ByPlaceholder finds a visible control by placeholder text.
	ByPlaceholder(ctx context.Context, name string, timeout time.Duration) (string, bool, error)
	// Candidates collects the frame's interactive elements, piercing
	// nested shadow roots.
	Candidates(ctx context.Context) ([]Candidate, error)
}

// Page is the minimal browser surface the element resolver needs.
type Page interface {
	CurrentURL(ctx context.Context) (string, error)
	Frames(ctx context.Context) ([]Frame, error)
}
