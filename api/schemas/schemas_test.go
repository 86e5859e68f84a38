package schemas_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/jharden0x1/steppilot/api/schemas"
)

func TestDescriptorKey(t *testing.T) {
	testCases := []struct {
		name string
		desc schemas.Descriptor
		want string
	}{
		{"lowercases", schemas.Descriptor{Name: "Login", Type: schemas.ElementButton}, "login|button"},
		{"collapses whitespace", schemas.Descriptor{Name: "  Add   to  Basket ", Type: schemas.ElementButton}, "add to basket|button"},
		{"empty type maps to any", schemas.Descriptor{Name: "Login"}, "login|any"},
		{"type distinguishes entries", schemas.Descriptor{Name: "Login", Type: schemas.ElementLink}, "login|link"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.desc.Key())
		})
	}
}

func TestScenarioRollup(t *testing.T) {
	testCases := []struct {
		name     string
		statuses []schemas.Status
		want     schemas.Status
	}{
		{"all passed", []schemas.Status{schemas.StatusPassed, schemas.StatusPassed}, schemas.StatusPassed},
		{"one failure wins", []schemas.Status{schemas.StatusPassed, schemas.StatusFailed, schemas.StatusSkipped}, schemas.StatusFailed},
		{"nothing ran", []schemas.Status{schemas.StatusSkipped, schemas.StatusSkipped}, schemas.StatusSkipped},
		{"no steps", nil, schemas.StatusSkipped},
		{"partial run passes", []schemas.Status{schemas.StatusPassed, schemas.StatusSkipped}, schemas.StatusPassed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sc := schemas.ScenarioResult{}
			for _, st := range tc.statuses {
				sc.Steps = append(sc.Steps, schemas.StepResult{Status: st})
			}
			sc.Rollup()
			assert.Equal(t, tc.want, sc.Status)
		})
	}
}

func TestRunResultCounts(t *testing.T) {
	run := schemas.RunResult{
		Features: []schemas.FeatureResult{
			{
				Status: schemas.StatusFailed,
				Scenarios: []schemas.ScenarioResult{
					{Status: schemas.StatusPassed},
					{Status: schemas.StatusFailed},
				},
			},
			{
				Status: schemas.StatusPassed,
				Scenarios: []schemas.ScenarioResult{
					{Status: schemas.StatusPassed},
					{Status: schemas.StatusSkipped},
				},
			},
		},
	}

	passed, failed, skipped := run.Counts()
	got := []int{passed, failed, skipped}
	if diff := cmp.Diff([]int{2, 1, 1}, got); diff != "" {
		t.Errorf("Counts() mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, run.Failed())
}

func TestFeatureRollup(t *testing.T) {
	f := schemas.FeatureResult{Scenarios: []schemas.ScenarioResult{
		{Status: schemas.StatusSkipped},
		{Status: schemas.StatusSkipped},
	}}
	f.Rollup()
	assert.Equal(t, schemas.StatusSkipped, f.Status)

	f.Scenarios = append(f.Scenarios, schemas.ScenarioResult{Status: schemas.StatusPassed})
	f.Rollup()
	assert.Equal(t, schemas.StatusPassed, f.Status)

	f.Scenarios = append(f.Scenarios, schemas.ScenarioResult{Status: schemas.StatusFailed})
	f.Rollup()
	assert.Equal(t, schemas.StatusFailed, f.Status)
}

func TestFeatureHasTag(t *testing.T) {
	f := schemas.Feature{
		Tags: []string{"@regression"},
		Scenarios: []schemas.Scenario{
			{Name: "fast path", Tags: []string{"@smoke"}},
			{Name: "slow path"},
		},
	}

	assert.True(t, f.HasTag("@regression"))
	assert.True(t, f.HasTag("@smoke"))
	assert.False(t, f.HasTag("@wip"))
}

func TestIsAuthoringError(t *testing.T) {
	assert.True(t, schemas.IsAuthoringError(schemas.ErrUnrecognized))
	assert.True(t, schemas.IsAuthoringError(fmt.Errorf("wrap: %w", schemas.ErrUnknownAction)))
	assert.True(t, schemas.IsAuthoringError(&schemas.DataNotFoundError{Key: "admin.password"}))
	assert.False(t, schemas.IsAuthoringError(&schemas.ElementNotFoundError{}))
	assert.False(t, schemas.IsAuthoringError(errors.New("browser crashed")))
}

func TestAssertionErrorMessage(t *testing.T) {
	withActual := &schemas.AssertionError{Kind: "url", Expected: "/inventory", Actual: "/login"}
	assert.Equal(t, `url assertion failed: expected "/inventory", got "/login"`, withActual.Error())

	withoutActual := &schemas.AssertionError{Kind: "text", Expected: "Welcome back"}
	assert.Equal(t, `text assertion failed: expected "Welcome back"`, withoutActual.Error())
}
