// Package interpreter turns one step's natural-language text into an
// executable Action. It layers three mechanisms: the injected intent
// classifier, a literal-path scan for URL-like tokens, and a navigation
// phrasing fallback for steps the classifier cannot place.
package interpreter

import (
	"regexp"
	"strings"

	"github.com/jharden0x1/steppilot/api/schemas"
	"github.com/jharden0x1/steppilot/internal/nlu"
)

// Interpreter is stateless apart from its injected collaborators and is
// safe for concurrent use.
type Interpreter struct {
	classifier schemas.Classifier
	data       schemas.DataResolver
}

func New(classifier schemas.Classifier, data schemas.DataResolver) *Interpreter {
	return &Interpreter{classifier: classifier, data: data}
}

// pathLiteral matches a /-prefixed token such as /login or /orders/42.
var pathLiteral = regexp.MustCompile(`(?:^|[\s"'])(/[\w\-./?=&%]*)`)

// navPhrasing licenses the navigation fallback when the classifier drew a
// blank but the text still reads like a navigation step.
var navPhrasing = regexp.MustCompile(`(?i)\b(?:is on|goes to|navigates? to|opens?|visits?)\b`)

// typeNouns maps a trailing noun on an element reference to its type hint.
// The noun is stripped from the element name after detection.
var typeNouns = map[string]schemas.ElementType{
	"button":   schemas.ElementButton,
	"link":     schemas.ElementLink,
	"input":    schemas.ElementInput,
	"field":    schemas.ElementInput,
	"box":      schemas.ElementInput,
	"textbox":  schemas.ElementInput,
	"dropdown": schemas.ElementDropdown,
	"select":   schemas.ElementDropdown,
	"list":     schemas.ElementDropdown,
	"checkbox": schemas.ElementCheckbox,
	"radio":    schemas.ElementRadio,
	"textarea": schemas.ElementTextarea,
}

// Interpret converts stepText into an Action. It returns ErrUnrecognized
// when no intent applies and a DataNotFoundError when a {dot.path}
// placeholder has no backing value.
func (it *Interpreter) Interpret(stepText string) (schemas.Action, error) {
	cls := it.classifier.Classify(stepText)

	// The path candidate is always computed; for navigation intents it
	// beats whatever descriptive "page" entity the classifier produced.
	path := firstPathLiteral(stepText)

	// Classifiers signal "no intent" either as an empty string or as the
	// literal "none"; both take the phrasing fallback below.
	intent := schemas.Intent(cls.Intent)
	if strings.EqualFold(cls.Intent, "none") {
		intent = ""
	}
	if intent == "" {
		if !navPhrasing.MatchString(stepText) {
			return schemas.Action{}, schemas.ErrUnrecognized
		}
		target := path
		if target == "" {
			target = "unknown"
		}
		return schemas.Action{Intent: schemas.IntentNavigate, Value: target}, nil
	}

	action := schemas.Action{Intent: intent}
	switch intent {
	case schemas.IntentNavigate:
		target := path
		if target == "" {
			if e, ok := entityByRole(cls.Entities, nlu.RolePage); ok {
				target = stripArticle(cleanSpan(e.Text))
			}
		}
		if target == "" {
			target = "unknown"
		}
		action.Value = target

	case schemas.IntentFill, schemas.IntentSelect:
		value, element, ok := twoSlots(cls.Entities)
		if !ok {
			return schemas.Action{}, schemas.ErrUnrecognized
		}
		action.Value = cleanSpan(value)
		action.Locator, action.ElementType = stripTypeNoun(cleanSpan(element), stepText)

	case schemas.IntentClick, schemas.IntentCheck, schemas.IntentUncheck, schemas.IntentAssertVisible:
		e, ok := entityByRole(cls.Entities, nlu.RoleElement)
		if !ok {
			return schemas.Action{}, schemas.ErrUnrecognized
		}
		action.Locator, action.ElementType = stripTypeNoun(cleanSpan(e.Text), stepText)

	case schemas.IntentAssertText:
		e, ok := entityByRole(cls.Entities, nlu.RoleMessage)
		if !ok {
			return schemas.Action{}, schemas.ErrUnrecognized
		}
		action.Value = cleanSpan(e.Text)

	case schemas.IntentAssertURL:
		target := path
		if target == "" {
			if e, ok := entityByRole(cls.Entities, nlu.RolePage); ok {
				target = stripArticle(cleanSpan(e.Text))
			}
		}
		if target == "" {
			return schemas.Action{}, schemas.ErrUnrecognized
		}
		action.Value = target

	default:
		return schemas.Action{}, schemas.ErrUnrecognized
	}

	var err error
	if action.Value, err = it.substitute(action.Value); err != nil {
		return schemas.Action{}, err
	}
	if action.Locator, err = it.substitute(action.Locator); err != nil {
		return schemas.Action{}, err
	}
	return action, nil
}

var placeholder = regexp.MustCompile(`\{([\w.\-]+)\}`)

// substitute replaces every {dot.path} token via the data resolver.
// Substitution happens after entity extraction so a resolved value is never
// re-parsed as step syntax.
func (it *Interpreter) substitute(s string) (string, error) {
	if it.data == nil || !strings.Contains(s, "{") {
		return s, nil
	}
	var missing error
	out := placeholder.ReplaceAllStringFunc(s, func(tok string) string {
		key := tok[1 : len(tok)-1]
		v, ok := it.data.Resolve(key)
		if !ok {
			if missing == nil {
				missing = &schemas.DataNotFoundError{Key: key}
			}
			return tok
		}
		return v
	})
	if missing != nil {
		return "", missing
	}
	return out, nil
}

func firstPathLiteral(text string) string {
	m := pathLiteral.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

func entityByRole(entities []schemas.Entity, role string) (schemas.Entity, bool) {
	for _, e := range entities {
		if e.Role == role {
			return e, true
		}
	}
	return schemas.Entity{}, false
}

// twoSlots picks the value and element spans for two-slot intents. Role tags
// win when present; otherwise the spans are ordered by start offset with the
// first taken as the value.
func twoSlots(entities []schemas.Entity) (value, element string, ok bool) {
	v, vok := entityByRole(entities, nlu.RoleValue)
	e, eok := entityByRole(entities, nlu.RoleElement)
	if vok && eok {
		return v.Text, e.Text, true
	}
	if len(entities) < 2 {
		return "", "", false
	}
	ordered := make([]schemas.Entity, len(entities))
	copy(ordered, entities)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].Start < ordered[j-1].Start; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}
	return ordered[0].Text, ordered[1].Text, true
}

// cleanSpan strips residual quoting and outer whitespace from a span.
func cleanSpan(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

func stripArticle(s string) string {
	if rest, ok := strings.CutPrefix(strings.TrimSpace(s), "the "); ok {
		return strings.TrimSpace(rest)
	}
	return s
}

// stripTypeNoun removes a trailing type noun from the element name and turns
// it into the type hint. When the name carries no noun, the word following
// the span in the full step text is consulted ("the "Save" button").
func stripTypeNoun(name, stepText string) (string, schemas.ElementType) {
	fields := strings.Fields(name)
	if len(fields) > 1 {
		last := strings.ToLower(fields[len(fields)-1])
		if typ, ok := typeNouns[last]; ok {
			return strings.Join(fields[:len(fields)-1], " "), typ
		}
	}
	if typ, ok := followingTypeNoun(name, stepText); ok {
		return name, typ
	}
	return name, schemas.ElementAny
}

// followingTypeNoun looks at the word immediately after the quoted span in
// the original step text.
func followingTypeNoun(name, stepText string) (schemas.ElementType, bool) {
	idx := strings.Index(stepText, name)
	if idx < 0 {
		return "", false
	}
	rest := stepText[idx+len(name):]
	rest = strings.TrimLeft(rest, `"' `)
	word, _, _ := strings.Cut(rest, " ")
	word = strings.ToLower(strings.Trim(word, ".,!?"))
	typ, ok := typeNouns[word]
	return typ, ok
}
