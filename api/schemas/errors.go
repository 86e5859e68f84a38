package schemas

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnrecognized indicates the step text could not be classified into any
// supported intent and no fallback phrasing applied.
var ErrUnrecognized = errors.New("step could not be classified into a known intent")

// ErrUnknownAction indicates a classified intent has no registered executor.
var ErrUnknownAction = errors.New("no executor registered for intent")

// DataNotFoundError indicates a {dot.path} placeholder referenced a key that
// is absent from the test data.
type DataNotFoundError struct {
	Key string
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("test data key %q not found", e.Key)
}

// ElementNotFoundError indicates the resolver exhausted every tier across
// every frame without locating a visible element.
type ElementNotFoundError struct {
	Descriptor     Descriptor
	FramesSearched int
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %q not found after searching %d frame(s)", e.Descriptor.String(), e.FramesSearched)
}

// AssertionError indicates a text or URL expectation was not met.
type AssertionError struct {
	Kind     string // "text", "url", "visible"
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	if e.Actual == "" {
		return fmt.Sprintf("%s assertion failed: expected %q", e.Kind, e.Expected)
	}
	return fmt.Sprintf("%s assertion failed: expected %q, got %q", e.Kind, e.Expected, e.Actual)
}

// TimeoutError indicates an underlying browser operation exceeded its bound.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %q timed out after %s", e.Op, e.Timeout)
}

// IsAuthoringError reports whether err stems from the step text itself rather
// than the environment. Authoring errors are rewritten into a single uniform
// message at the orchestrator boundary and are never retried: the text does
// not change between attempts.
func IsAuthoringError(err error) bool {
	if errors.Is(err, ErrUnrecognized) || errors.Is(err, ErrUnknownAction) {
		return true
	}
	var dnf *DataNotFoundError
	return errors.As(err, &dnf)
}
