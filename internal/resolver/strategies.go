package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/jharden0x1/steppilot/api/schemas"
	"github.com/jharden0x1/steppilot/internal/registry"
)

// similarityThreshold is the Sorensen-Dice score above which a candidate's
// attribute counts as a fuzzy match for the descriptor name.
const similarityThreshold = 0.6

// registryLookup revalidates a previously persisted selector. A cached
// selector that no longer resolves to a visible element is not trusted: the
// tier reports no match and a later tier overwrites the entry.
type registryLookup struct {
	registry *registry.Registry
	timeout  time.Duration
}

func (s *registryLookup) Name() string { return "registry" }

func (s *registryLookup) Resolve(ctx context.Context, page schemas.Page, frames []schemas.Frame, desc schemas.Descriptor) (*schemas.Locator, error) {
	url, err := page.CurrentURL(ctx)
	if err != nil {
		return nil, err
	}
	selector, ok := s.registry.Lookup(url, desc.Key())
	if !ok {
		return nil, nil
	}
	for _, f := range frames {
		visible, err := f.QueryVisible(ctx, selector, s.timeout)
		if err != nil {
			return nil, err
		}
		if visible {
			return &schemas.Locator{Frame: f.Index(), Selector: selector}, nil
		}
	}
	return nil, nil
}

// semanticLookup finds the element the way a user would name it: by
// accessibility role for buttons and links, then by label text, then by
// placeholder for form controls.
type semanticLookup struct {
	timeout time.Duration
}

func (s *semanticLookup) Name() string { return "semantic" }

func (s *semanticLookup) Resolve(ctx context.Context, _ schemas.Page, frames []schemas.Frame, desc schemas.Descriptor) (*schemas.Locator, error) {
	for _, f := range frames {
		for _, role := range rolesFor(desc.Type) {
			sel, ok, err := f.ByRole(ctx, role, desc.Name, s.timeout)
			if err != nil {
				return nil, err
			}
			if ok {
				if loc, err := s.confirm(ctx, f, sel); err != nil || loc != nil {
					return loc, err
				}
			}
		}
		if controlType(desc.Type) {
			sel, ok, err := f.ByLabel(ctx, desc.Name, s.timeout)
			if err != nil {
				return nil, err
			}
			if ok {
				if loc, err := s.confirm(ctx, f, sel); err != nil || loc != nil {
					return loc, err
				}
			}
			sel, ok, err = f.ByPlaceholder(ctx, desc.Name, s.timeout)
			if err != nil {
				return nil, err
			}
			if ok {
				if loc, err := s.confirm(ctx, f, sel); err != nil || loc != nil {
					return loc, err
				}
			}
		}
	}
	return nil, nil
}

// confirm re-evaluates a selector the lookup synthesized. The selector, not
// the element the lookup walked to, is what gets persisted and replayed, so
// it must itself resolve to a visible element before the tier reports a
// match.
func (s *semanticLookup) confirm(ctx context.Context, f schemas.Frame, sel string) (*schemas.Locator, error) {
	visible, err := f.QueryVisible(ctx, sel, s.timeout)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, nil
	}
	return &schemas.Locator{Frame: f.Index(), Selector: sel}, nil
}

func rolesFor(t schemas.ElementType) []string {
	switch t {
	case schemas.ElementButton:
		return []string{"button"}
	case schemas.ElementLink:
		return []string{"link"}
	case schemas.ElementAny, "":
		return []string{"button", "link"}
	default:
		return nil
	}
}

func controlType(t schemas.ElementType) bool {
	switch t {
	case schemas.ElementInput, schemas.ElementTextarea, schemas.ElementDropdown,
		schemas.ElementCheckbox, schemas.ElementRadio, schemas.ElementAny, "":
		return true
	default:
		return false
	}
}

// structuralScan collects every visible interactive element across frames,
// fuzzy-matches their attributes against the descriptor name, synthesizes a
// selector per matching candidate, and accepts the first one that resolves
// back to a visible element.
type structuralScan struct {
	probeTimeout time.Duration
}

func (s *structuralScan) Name() string { return "structural" }

func (s *structuralScan) Resolve(ctx context.Context, _ schemas.Page, frames []schemas.Frame, desc schemas.Descriptor) (*schemas.Locator, error) {
	for _, f := range frames {
		candidates, err := f.Candidates(ctx)
		if err != nil {
			return nil, err
		}
		for _, cand := range candidates {
			if !Matches(desc, cand) {
				continue
			}
			selector, ok := SynthesizeSelector(cand)
			if !ok {
				continue
			}
			visible, err := f.QueryVisible(ctx, selector, s.probeTimeout)
			if err != nil {
				return nil, err
			}
			if visible {
				// Candidates carry the frame they were collected in.
				return &schemas.Locator{Frame: cand.Frame, Selector: selector}, nil
			}
		}
	}
	return nil, nil
}

// Matches reports whether a candidate's text or identifying attributes match
// the descriptor name, by containment in either direction or by similarity
// above the threshold.
func Matches(desc schemas.Descriptor, cand schemas.Candidate) bool {
	if !typeCompatible(desc.Type, cand.Tag) {
		return false
	}
	name := normalize(desc.Name)
	if name == "" {
		return false
	}
	dice := metrics.NewSorensenDice()
	for _, attr := range []string{cand.Text, cand.AriaLabel, cand.Placeholder, cand.TestID, cand.ID} {
		a := normalize(attr)
		if a == "" {
			continue
		}
		if strings.Contains(a, name) || strings.Contains(name, a) {
			return true
		}
		if strutil.Similarity(a, name, dice) > similarityThreshold {
			return true
		}
	}
	return false
}

func typeCompatible(t schemas.ElementType, tag string) bool {
	switch t {
	case schemas.ElementButton:
		return tag == "button" || tag == "input" || tag == "a"
	case schemas.ElementLink:
		return tag == "a"
	case schemas.ElementInput:
		return tag == "input" || tag == "textarea"
	case schemas.ElementTextarea:
		return tag == "textarea"
	case schemas.ElementDropdown:
		return tag == "select"
	case schemas.ElementCheckbox, schemas.ElementRadio:
		return tag == "input"
	default:
		return true
	}
}

// SynthesizeSelector derives the most specific selector a candidate offers:
// test id, then element id, then trimmed text. Candidates with none of these
// cannot be addressed stably and are skipped.
func SynthesizeSelector(cand schemas.Candidate) (string, bool) {
	switch {
	case cand.TestID != "":
		return `[data-testid="` + cand.TestID + `"]`, true
	case cand.ID != "":
		return "#" + cand.ID, true
	case cand.Text != "":
		return "text=" + cand.Text, true
	}
	return "", false
}

// normalize case-folds, collapses whitespace, and treats dash and underscore
// as word separators so attribute-style names compare against prose names.
func normalize(s string) string {
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
