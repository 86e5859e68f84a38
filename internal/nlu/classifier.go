// Package nlu classifies natural-language step text into an intent plus
// role-tagged entities. The built-in classifier is deterministic: it matches
// trigger phrases against a fixed rule table and extracts entities from
// quoted spans, so the same step text always classifies the same way.
package nlu

import (
	"regexp"
	"strings"

	"github.com/jharden0x1/steppilot/api/schemas"
)

// Entity roles produced by the pattern classifier.
const (
	RoleElement = "element"
	RoleValue   = "value"
	RolePage    = "page"
	RoleMessage = "message"
)

type rule struct {
	trigger *regexp.Regexp
	intent  schemas.Intent
	// roles assigns a role to each quoted span, in order of appearance.
	// A single-role rule applies that role to the only expected span.
	roles []string
}

// Rule order matters: the first trigger that matches wins, so the more
// specific phrasings sit above the generic ones.
var rules = []rule{
	{regexp.MustCompile(`(?i)\bshould (?:be on|land on)\b|\burl should (?:be|contain)\b|\baddress should\b`), schemas.IntentAssertURL, []string{RolePage}},
	{regexp.MustCompile(`(?i)\bshould (?:be visible|appear|be displayed)\b`), schemas.IntentAssertVisible, []string{RoleElement}},
	{regexp.MustCompile(`(?i)\bshould (?:see|read)\b|\bsees the (?:message|text)\b`), schemas.IntentAssertText, []string{RoleMessage}},
	{regexp.MustCompile(`(?i)\bunchecks?\b|\bdeselects?\b`), schemas.IntentUncheck, []string{RoleElement}},
	{regexp.MustCompile(`(?i)\bchecks?\b|\bticks?\b`), schemas.IntentCheck, []string{RoleElement}},
	{regexp.MustCompile(`(?i)\bselects?\b|\bchooses?\b|\bpicks?\b`), schemas.IntentSelect, []string{RoleValue, RoleElement}},
	{regexp.MustCompile(`(?i)\b(?:fills?|enters?|types?|inputs?|writes?)\b`), schemas.IntentFill, []string{RoleValue, RoleElement}},
	{regexp.MustCompile(`(?i)\bclicks?\b|\bpress(?:es)?\b|\btaps?\b`), schemas.IntentClick, []string{RoleElement}},
	{regexp.MustCompile(`(?i)\b(?:navigates? to|goes to|opens?|visits?|is on|browses? to)\b`), schemas.IntentNavigate, []string{RolePage}},
}

var quoted = regexp.MustCompile(`"([^"]*)"|'([^']*)'`)

var withPhrasing = regexp.MustCompile(`(?i)["']\s+(?:\w+\s+){0,3}with\b`)

// spanRoles flips the value/element assignment for "fills the X field with Y"
// style phrasing, where the element is quoted before the value.
func spanRoles(text string, roles []string) []string {
	if len(roles) == 2 && roles[0] == RoleValue && withPhrasing.MatchString(text) {
		return []string{RoleElement, RoleValue}
	}
	return roles
}

// PatternClassifier is the built-in schemas.Classifier. It holds no state
// and is safe for concurrent use.
type PatternClassifier struct{}

// NewPatternClassifier returns the deterministic rule-based classifier.
func NewPatternClassifier() *PatternClassifier {
	return &PatternClassifier{}
}

// Classify matches text against the rule table. An empty Intent means no
// trigger phrase matched.
func (c *PatternClassifier) Classify(text string) schemas.Classification {
	for _, r := range rules {
		if !r.trigger.MatchString(text) {
			continue
		}
		return schemas.Classification{
			Intent:   string(r.intent),
			Entities: extractEntities(text, spanRoles(text, r.roles)),
		}
	}
	return schemas.Classification{}
}

// extractEntities pulls quoted spans out of text, assigning roles in order.
// When there are more spans than roles the last role is reused, so trailing
// quotes still carry a sensible tag.
func extractEntities(text string, roles []string) []schemas.Entity {
	matches := quoted.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}
	entities := make([]schemas.Entity, 0, len(matches))
	for i, m := range matches {
		// Group 1 is double-quoted, group 2 single-quoted.
		start, end := m[2], m[3]
		if start < 0 {
			start, end = m[4], m[5]
		}
		role := roles[len(roles)-1]
		if i < len(roles) {
			role = roles[i]
		}
		entities = append(entities, schemas.Entity{
			Role:  role,
			Start: start,
			Text:  strings.TrimSpace(text[start:end]),
		})
	}
	return entities
}
