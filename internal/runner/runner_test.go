package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/jharden0x1/steppilot/api/schemas"
	"github.com/jharden0x1/steppilot/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSession records the operations the runner performs on it.
type fakeSession struct {
	mu  sync.Mutex
	url string

	clickErr      error
	urlAfterClick string

	clicks          int
	fills           []string
	selects         []string
	checked         []bool
	waitStableCalls int
	closed          bool

	textPresent bool
}

func newFakeSession(url string) *fakeSession {
	return &fakeSession{url: url, textPresent: true}
}

func (s *fakeSession) CurrentURL(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url, nil
}

func (s *fakeSession) Frames(context.Context) ([]schemas.Frame, error) { return nil, nil }

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
	return nil
}

func (s *fakeSession) WaitStable(context.Context, time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waitStableCalls++
	return nil
}

func (s *fakeSession) Click(context.Context, schemas.Locator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks++
	if s.clickErr != nil {
		return s.clickErr
	}
	if s.urlAfterClick != "" {
		s.url = s.urlAfterClick
	}
	return nil
}

func (s *fakeSession) Fill(_ context.Context, _ schemas.Locator, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills = append(s.fills, value)
	return nil
}

func (s *fakeSession) SelectOption(_ context.Context, _ schemas.Locator, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selects = append(s.selects, value)
	return nil
}

func (s *fakeSession) SetChecked(_ context.Context, _ schemas.Locator, checked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked = append(s.checked, checked)
	return nil
}

func (s *fakeSession) WaitForText(context.Context, string, time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textPresent, nil
}

func (s *fakeSession) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }
func (s *fakeSession) DOMHTML(context.Context) (string, error)    { return "<html></html>", nil }

func (s *fakeSession) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeFactory struct {
	sess Session
	err  error
}

func (f *fakeFactory) NewSession(context.Context) (Session, error) { return f.sess, f.err }

// fakeInterp maps step text to a canned action or error.
type fakeInterp struct {
	actions map[string]schemas.Action
	errs    map[string]error
}

func (f *fakeInterp) Interpret(text string) (schemas.Action, error) {
	if err, ok := f.errs[text]; ok {
		return schemas.Action{}, err
	}
	if a, ok := f.actions[text]; ok {
		return a, nil
	}
	return schemas.Action{}, schemas.ErrUnrecognized
}

type fakeResolver struct {
	loc  schemas.Locator
	err  error
	seen []schemas.Descriptor
	mu   sync.Mutex
}

func (f *fakeResolver) Resolve(_ context.Context, _ schemas.Page, desc schemas.Descriptor) (schemas.Locator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, desc)
	return f.loc, f.err
}

type fakeCapturer struct {
	mu     sync.Mutex
	stages []string
}

func (f *fakeCapturer) Capture(_ context.Context, _ Snapshotter, stepText, stage string) []schemas.Artifact {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage)
	return []schemas.Artifact{{Kind: "screenshot", Path: "/tmp/x.png", Step: stepText}}
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Runner.RetryBackoff = time.Millisecond
	cfg.Runner.ShortWait = time.Millisecond
	cfg.Runner.URLPollWindow = 50 * time.Millisecond
	cfg.Runner.StepTimeout = 5 * time.Second
	cfg.Runner.AssertTimeout = 100 * time.Millisecond
	cfg.Runner.BaseURL = "https://shop.test"
	return cfg
}

func newTestRunner(cfg *config.Config, interp Interpreter, res Resolver, sess Session, cap Capturer) *Runner {
	return New(cfg, interp, res, &fakeFactory{sess: sess}, cap, zap.NewNop())
}

const clickStep = `the user clicks the "Pay" button`

func clickInterp() *fakeInterp {
	return &fakeInterp{actions: map[string]schemas.Action{
		clickStep: {Intent: schemas.IntentClick, Locator: "Pay", ElementType: schemas.ElementButton},
	}}
}

func TestRetryAccounting(t *testing.T) {
	cfg := testConfig()
	cfg.Runner.MaxRetries = 2
	sess := newFakeSession("https://shop.test/cart")
	sess.clickErr = errors.New("element detached")
	cap := &fakeCapturer{}
	r := newTestRunner(cfg, clickInterp(), &fakeResolver{loc: schemas.Locator{Selector: "#pay"}}, sess, cap)

	res := r.runStep(context.Background(), zap.NewNop(), sess, schemas.Step{Keyword: "When", Text: clickStep})

	assert.Equal(t, schemas.StatusFailed, res.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, sess.clicks)
	assert.Equal(t, []string{"first-failure", "final-failure"}, cap.stages)
	assert.Len(t, res.Diagnostics, 2)
	assert.Contains(t, res.Error, "element detached")
}

func TestRetryAccountingNoRetries(t *testing.T) {
	cfg := testConfig()
	cfg.Runner.MaxRetries = 0
	sess := newFakeSession("https://shop.test/cart")
	sess.clickErr = errors.New("element detached")
	cap := &fakeCapturer{}
	r := newTestRunner(cfg, clickInterp(), &fakeResolver{loc: schemas.Locator{Selector: "#pay"}}, sess, cap)

	res := r.runStep(context.Background(), zap.NewNop(), sess, schemas.Step{Keyword: "When", Text: clickStep})

	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []string{"final-failure"}, cap.stages)
}

func TestUnrecognizedShortCircuits(t *testing.T) {
	cfg := testConfig()
	cfg.Runner.MaxRetries = 2
	sess := newFakeSession("https://shop.test")
	cap := &fakeCapturer{}
	r := newTestRunner(cfg, &fakeInterp{}, &fakeResolver{}, sess, cap)

	res := r.runStep(context.Background(), zap.NewNop(), sess, schemas.Step{Keyword: "When", Text: "Frobnicate the whatsit"})

	assert.Equal(t, schemas.StatusFailed, res.Status)
	assert.Equal(t, 1, res.Attempts, "authoring failures must not be retried")
	assert.Empty(t, cap.stages, "authoring failures capture no diagnostics")
	assert.Equal(t,
		`Unrecognized steps: "Frobnicate the whatsit". Please implement this step or check the step definition.`,
		res.Error)
}

func TestUnknownActionRewritten(t *testing.T) {
	cfg := testConfig()
	cfg.Runner.MaxRetries = 2
	sess := newFakeSession("https://shop.test")
	interp := &fakeInterp{actions: map[string]schemas.Action{
		"the user shuffles": {Intent: schemas.Intent("shuffle")},
	}}
	r := newTestRunner(cfg, interp, &fakeResolver{}, sess, &fakeCapturer{})

	res := r.runStep(context.Background(), zap.NewNop(), sess, schemas.Step{Text: "the user shuffles"})

	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, res.Error, "Unrecognized steps:")
}

func TestDataNotFoundKeepsDetail(t *testing.T) {
	cfg := testConfig()
	sess := newFakeSession("https://shop.test")
	interp := &fakeInterp{errs: map[string]error{
		"step": &schemas.DataNotFoundError{Key: "admin.password"},
	}}
	cap := &fakeCapturer{}
	r := newTestRunner(cfg, interp, &fakeResolver{}, sess, cap)

	res := r.runStep(context.Background(), zap.NewNop(), sess, schemas.Step{Text: "step"})

	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, cap.stages)
	assert.Contains(t, res.Error, "admin.password")
}

func TestClickRedirectBranch(t *testing.T) {
	cfg := testConfig()
	sess := newFakeSession("https://shop.test/cart")
	sess.urlAfterClick = "https://shop.test/checkout"
	r := newTestRunner(cfg, clickInterp(), &fakeResolver{loc: schemas.Locator{Selector: "#pay"}}, sess, &fakeCapturer{})

	res := r.runStep(context.Background(), zap.NewNop(), sess, schemas.Step{Text: clickStep})

	require.Equal(t, schemas.StatusPassed, res.Status)
	assert.Equal(t, 1, sess.waitStableCalls, "URL change must take the full-stability branch")
}

func TestClickSamePageBranch(t *testing.T) {
	cfg := testConfig()
	sess := newFakeSession("https://shop.test/cart")
	r := newTestRunner(cfg, clickInterp(), &fakeResolver{loc: schemas.Locator{Selector: "#pay"}}, sess, &fakeCapturer{})

	res := r.runStep(context.Background(), zap.NewNop(), sess, schemas.Step{Text: clickStep})

	require.Equal(t, schemas.StatusPassed, res.Status)
	assert.Zero(t, sess.waitStableCalls, "no URL change must take only the short window")
}

func TestFillResolvesAndFills(t *testing.T) {
	cfg := testConfig()
	sess := newFakeSession("https://shop.test/login")
	resolver := &fakeResolver{loc: schemas.Locator{Selector: `[name="password"]`}}
	interp := &fakeInterp{actions: map[string]schemas.Action{
		`Fill "secret_sauce" in "password" input`: {
			Intent:      schemas.IntentFill,
			Locator:     "password",
			Value:       "secret_sauce",
			ElementType: schemas.ElementInput,
		},
	}}
	r := newTestRunner(cfg, interp, resolver, sess, &fakeCapturer{})

	res := r.runStep(context.Background(), zap.NewNop(), sess, schemas.Step{Text: `Fill "secret_sauce" in "password" input`})

	require.Equal(t, schemas.StatusPassed, res.Status)
	assert.Equal(t, []string{"secret_sauce"}, sess.fills)
	require.Len(t, resolver.seen, 1)
	assert.Equal(t, "password", resolver.seen[0].Name)
	assert.Equal(t, schemas.ElementInput, resolver.seen[0].Type)
}

func TestBackgroundFailureSkipsScenarioSteps(t *testing.T) {
	cfg := testConfig()
	cfg.Runner.MaxRetries = 0
	sess := newFakeSession("https://shop.test")
	sess.clickErr = errors.New("nope")
	interp := &fakeInterp{actions: map[string]schemas.Action{
		clickStep:          {Intent: schemas.IntentClick, Locator: "Pay"},
		"the user is on /": {Intent: schemas.IntentNavigate, Value: "/"},
	}}
	r := newTestRunner(cfg, interp, &fakeResolver{loc: schemas.Locator{Selector: "#pay"}}, sess, &fakeCapturer{})

	feature := &schemas.Feature{
		Name:       "F",
		Background: &schemas.Scenario{Steps: []schemas.Step{{Text: clickStep}}},
		Scenarios: []schemas.Scenario{{
			Name:  "S",
			Steps: []schemas.Step{{Text: "the user is on /"}, {Text: "the user is on /"}},
		}},
	}

	res := r.runScenario(context.Background(), feature, &feature.Scenarios[0])

	require.Len(t, res.Steps, 3)
	assert.Equal(t, schemas.StatusFailed, res.Steps[0].Status)
	assert.Equal(t, schemas.StatusSkipped, res.Steps[1].Status)
	assert.Equal(t, schemas.StatusSkipped, res.Steps[2].Status)
	assert.Equal(t, schemas.StatusFailed, res.Status)
	assert.True(t, sess.closed)
}

func TestStepFailureSkipsRemainder(t *testing.T) {
	cfg := testConfig()
	cfg.Runner.MaxRetries = 0
	sess := newFakeSession("https://shop.test")
	sess.clickErr = errors.New("nope")
	interp := &fakeInterp{actions: map[string]schemas.Action{
		clickStep:          {Intent: schemas.IntentClick, Locator: "Pay"},
		"the user is on /": {Intent: schemas.IntentNavigate, Value: "/"},
	}}
	r := newTestRunner(cfg, interp, &fakeResolver{loc: schemas.Locator{Selector: "#pay"}}, sess, &fakeCapturer{})

	feature := &schemas.Feature{Name: "F", Scenarios: []schemas.Scenario{{
		Name: "S",
		Steps: []schemas.Step{
			{Text: "the user is on /"},
			{Text: clickStep},
			{Text: "the user is on /"},
		},
	}}}

	res := r.runScenario(context.Background(), feature, &feature.Scenarios[0])

	require.Len(t, res.Steps, 3)
	assert.Equal(t, schemas.StatusPassed, res.Steps[0].Status)
	assert.Equal(t, schemas.StatusFailed, res.Steps[1].Status)
	assert.Equal(t, schemas.StatusSkipped, res.Steps[2].Status)
}

func TestSessionCreationFailure(t *testing.T) {
	cfg := testConfig()
	r := New(cfg, &fakeInterp{}, &fakeResolver{}, &fakeFactory{err: fmt.Errorf("browser gone")}, &fakeCapturer{}, zap.NewNop())

	feature := &schemas.Feature{Name: "F", Scenarios: []schemas.Scenario{{
		Name:  "S",
		Steps: []schemas.Step{{Text: "a"}, {Text: "b"}},
	}}}

	res := r.runScenario(context.Background(), feature, &feature.Scenarios[0])

	assert.Equal(t, schemas.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "browser gone")
	require.Len(t, res.Steps, 2)
	for _, st := range res.Steps {
		assert.Equal(t, schemas.StatusSkipped, st.Status)
	}
}

func TestTagFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Runner.Tags = []string{"@smoke"}
	sess := newFakeSession("https://shop.test")
	interp := &fakeInterp{actions: map[string]schemas.Action{
		"the user is on /": {Intent: schemas.IntentNavigate, Value: "/"},
	}}
	r := newTestRunner(cfg, interp, &fakeResolver{}, sess, &fakeCapturer{})

	feature := &schemas.Feature{Name: "F", Scenarios: []schemas.Scenario{
		{Name: "tagged", Tags: []string{"@smoke"}, Steps: []schemas.Step{{Text: "the user is on /"}}},
		{Name: "untagged", Steps: []schemas.Step{{Text: "the user is on /"}}},
	}}

	res := r.runFeature(context.Background(), feature)

	require.Len(t, res.Scenarios, 1)
	assert.Equal(t, "tagged", res.Scenarios[0].Name)
}

func TestAssertTextFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Runner.MaxRetries = 0
	sess := newFakeSession("https://shop.test")
	sess.textPresent = false
	interp := &fakeInterp{actions: map[string]schemas.Action{
		`the user should see "Welcome"`: {Intent: schemas.IntentAssertText, Value: "Welcome"},
	}}
	r := newTestRunner(cfg, interp, &fakeResolver{}, sess, &fakeCapturer{})

	res := r.runStep(context.Background(), zap.NewNop(), sess, schemas.Step{Text: `the user should see "Welcome"`})

	assert.Equal(t, schemas.StatusFailed, res.Status)
	assert.Contains(t, res.Error, `text assertion failed`)
	assert.Contains(t, res.Error, "Welcome")
}

func TestAssertURLReportsExpectedVsActual(t *testing.T) {
	cfg := testConfig()
	cfg.Runner.MaxRetries = 0
	sess := newFakeSession("https://shop.test/cart")
	interp := &fakeInterp{actions: map[string]schemas.Action{
		`the user should be on "/dashboard"`: {Intent: schemas.IntentAssertURL, Value: "/dashboard"},
	}}
	r := newTestRunner(cfg, interp, &fakeResolver{}, sess, &fakeCapturer{})

	res := r.runStep(context.Background(), zap.NewNop(), sess, schemas.Step{Text: `the user should be on "/dashboard"`})

	assert.Equal(t, schemas.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "/dashboard")
	assert.Contains(t, res.Error, "https://shop.test/cart")
}

func TestNavigationTarget(t *testing.T) {
	cfg := testConfig()
	r := newTestRunner(cfg, &fakeInterp{}, &fakeResolver{}, newFakeSession(""), &fakeCapturer{})

	got, err := r.navigationTarget("/login")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test/login", got)

	got, err = r.navigationTarget("https://other.test/x")
	require.NoError(t, err)
	assert.Equal(t, "https://other.test/x", got)

	cfg.Runner.BaseURL = ""
	_, err = r.navigationTarget("/login")
	assert.Error(t, err)
}

func TestRunRollup(t *testing.T) {
	cfg := testConfig()
	sess := newFakeSession("https://shop.test")
	interp := &fakeInterp{actions: map[string]schemas.Action{
		"the user is on /": {Intent: schemas.IntentNavigate, Value: "/"},
	}}
	r := newTestRunner(cfg, interp, &fakeResolver{}, sess, &fakeCapturer{})

	features := []*schemas.Feature{{Name: "F", Path: "f.feature", Scenarios: []schemas.Scenario{
		{Name: "S", Steps: []schemas.Step{{Text: "the user is on /"}}},
	}}}

	result, err := r.Run(context.Background(), features)
	require.NoError(t, err)
	require.Len(t, result.Features, 1)
	assert.Equal(t, schemas.StatusPassed, result.Features[0].Status)
	assert.False(t, result.Failed())
	assert.NotEmpty(t, result.RunID)
}
