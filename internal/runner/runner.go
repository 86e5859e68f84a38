// Package runner is the execution orchestrator: it sequences background and
// scenario steps, drives interpret, resolve, perform per step with retry and
// backoff, captures diagnostics on failure, and aggregates results.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jharden0x1/steppilot/api/schemas"
	"github.com/jharden0x1/steppilot/internal/config"
)

// Session is the per-scenario browser surface the runner drives. It embeds
// schemas.Page so the element resolver can work against the same value.
type Session interface {
	schemas.Page
	Navigate(ctx context.Context, url string) error
	WaitStable(ctx context.Context, quiet time.Duration) error
	Click(ctx context.Context, loc schemas.Locator) error
	Fill(ctx context.Context, loc schemas.Locator, value string) error
	SelectOption(ctx context.Context, loc schemas.Locator, value string) error
	SetChecked(ctx context.Context, loc schemas.Locator, checked bool) error
	WaitForText(ctx context.Context, text string, timeout time.Duration) (bool, error)
	Screenshot(ctx context.Context) ([]byte, error)
	DOMHTML(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// SessionFactory creates one isolated Session per scenario.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Interpreter converts step text into an executable Action.
type Interpreter interface {
	Interpret(stepText string) (schemas.Action, error)
}

// Resolver locates the element an Action refers to.
type Resolver interface {
	Resolve(ctx context.Context, page schemas.Page, desc schemas.Descriptor) (schemas.Locator, error)
}

// Capturer records failure diagnostics for a step attempt.
type Capturer interface {
	Capture(ctx context.Context, snap Snapshotter, stepText, stage string) []schemas.Artifact
}

// Snapshotter mirrors the capture surface of a Session.
type Snapshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
	DOMHTML(ctx context.Context) (string, error)
}

// stabilizationQuiet is the network-quiet period a full stability wait
// requires after navigations and redirects.
const stabilizationQuiet = 500 * time.Millisecond

// Runner executes features scenario by scenario.
type Runner struct {
	cfg       *config.Config
	logger    *zap.Logger
	interp    Interpreter
	resolver  Resolver
	sessions  SessionFactory
	capturer  Capturer
	executors map[schemas.Intent]func(ctx context.Context, sess Session, action schemas.Action) error
}

func New(cfg *config.Config, interp Interpreter, res Resolver, sessions SessionFactory, capturer Capturer, logger *zap.Logger) *Runner {
	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		interp:   interp,
		resolver: res,
		sessions: sessions,
		capturer: capturer,
	}
	r.executors = map[schemas.Intent]func(context.Context, Session, schemas.Action) error{
		schemas.IntentNavigate:      r.execNavigate,
		schemas.IntentFill:          r.execFill,
		schemas.IntentClick:         r.execClick,
		schemas.IntentSelect:        r.execSelect,
		schemas.IntentCheck:         r.execCheck,
		schemas.IntentUncheck:       r.execUncheck,
		schemas.IntentAssertText:    r.execAssertText,
		schemas.IntentAssertURL:     r.execAssertURL,
		schemas.IntentAssertVisible: r.execAssertVisible,
	}
	return r
}

// Run executes all features and returns the aggregated result.
func (r *Runner) Run(ctx context.Context, features []*schemas.Feature) (*schemas.RunResult, error) {
	result := &schemas.RunResult{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	for _, feature := range features {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Features = append(result.Features, r.runFeature(ctx, feature))
	}
	result.FinishedAt = time.Now()

	passed, failed, skipped := result.Counts()
	r.logger.Info("Run finished.",
		zap.String("run_id", result.RunID),
		zap.Int("passed", passed),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped))
	return result, nil
}

// runFeature executes a feature's scenarios, bounded by the configured
// concurrency. Scenarios never share a session or an execution context.
func (r *Runner) runFeature(ctx context.Context, feature *schemas.Feature) schemas.FeatureResult {
	start := time.Now()
	res := schemas.FeatureResult{Name: feature.Name, Path: feature.Path}

	selected := r.selectScenarios(feature)
	results := make([]schemas.ScenarioResult, len(selected))

	var g errgroup.Group
	g.SetLimit(r.cfg.Runner.Concurrency)
	for i, scenario := range selected {
		g.Go(func() error {
			results[i] = r.runScenario(ctx, feature, scenario)
			return nil
		})
	}
	_ = g.Wait()

	res.Scenarios = results
	res.Duration = time.Since(start)
	res.Rollup()
	return res
}

// selectScenarios applies the tag filter. An empty filter selects all;
// feature-level tags apply to every scenario in the file.
func (r *Runner) selectScenarios(feature *schemas.Feature) []*schemas.Scenario {
	var out []*schemas.Scenario
	for i := range feature.Scenarios {
		sc := &feature.Scenarios[i]
		if r.tagMatch(feature, sc) {
			out = append(out, sc)
		}
	}
	return out
}

func (r *Runner) tagMatch(feature *schemas.Feature, sc *schemas.Scenario) bool {
	if len(r.cfg.Runner.Tags) == 0 {
		return true
	}
	for _, want := range r.cfg.Runner.Tags {
		for _, have := range feature.Tags {
			if have == want {
				return true
			}
		}
		for _, have := range sc.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// runScenario walks one scenario through its state machine: background steps
// first, then scenario steps. The first failed step is terminal; remaining
// steps are recorded as skipped. A background failure skips every scenario
// step but keeps the results of the background steps that ran.
func (r *Runner) runScenario(ctx context.Context, feature *schemas.Feature, scenario *schemas.Scenario) schemas.ScenarioResult {
	start := time.Now()
	res := schemas.ScenarioResult{Name: scenario.Name, Tags: scenario.Tags}
	logger := r.logger.With(zap.String("feature", feature.Name), zap.String("scenario", scenario.Name))

	sess, err := r.sessions.NewSession(ctx)
	if err != nil {
		logger.Error("Could not create browser session for scenario.", zap.Error(err))
		res.Status = schemas.StatusFailed
		res.Error = fmt.Sprintf("failed to create browser session: %v", err)
		res.Duration = time.Since(start)
		for _, step := range allSteps(feature, scenario) {
			res.Steps = append(res.Steps, skippedStep(step))
		}
		return res
	}
	defer func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to close scenario session.", zap.Error(err))
		}
	}()

	logger.Info("Scenario started.")
	failed := false
	run := func(steps []schemas.Step) {
		for _, step := range steps {
			if failed || ctx.Err() != nil {
				res.Steps = append(res.Steps, skippedStep(step))
				continue
			}
			stepRes := r.runStep(ctx, logger, sess, step)
			res.Steps = append(res.Steps, stepRes)
			if stepRes.Status == schemas.StatusFailed {
				failed = true
			}
		}
	}
	if feature.Background != nil {
		run(feature.Background.Steps)
	}
	run(scenario.Steps)

	res.Duration = time.Since(start)
	res.Rollup()
	logger.Info("Scenario finished.", zap.String("status", string(res.Status)), zap.Duration("duration", res.Duration))
	return res
}

func allSteps(feature *schemas.Feature, scenario *schemas.Scenario) []schemas.Step {
	var steps []schemas.Step
	if feature.Background != nil {
		steps = append(steps, feature.Background.Steps...)
	}
	return append(steps, scenario.Steps...)
}

func skippedStep(step schemas.Step) schemas.StepResult {
	return schemas.StepResult{Step: step, Status: schemas.StatusSkipped}
}

// runStep drives the per-step retry loop: up to MaxRetries+1 attempts, with
// diagnostics captured once on the first failed attempt and once more on
// exhaustion. Authoring failures (unclassifiable text, missing test data, an
// intent with no executor) short-circuit: the text cannot change between
// attempts, so retrying cannot succeed, and no diagnostics are captured.
func (r *Runner) runStep(ctx context.Context, logger *zap.Logger, sess Session, step schemas.Step) schemas.StepResult {
	start := time.Now()
	res := schemas.StepResult{Step: step}
	maxRetries := r.cfg.Runner.MaxRetries

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		res.Attempts++
		lastErr = r.attemptStep(ctx, sess, step)
		if lastErr == nil {
			break
		}
		if schemas.IsAuthoringError(lastErr) || ctx.Err() != nil {
			break
		}

		last := attempt == maxRetries
		logger.Warn("Step attempt failed.",
			zap.String("step", step.Text),
			zap.Int("attempt", attempt+1),
			zap.Bool("final", last),
			zap.Error(lastErr))
		if attempt == 0 && !last {
			res.Diagnostics = append(res.Diagnostics, r.capturer.Capture(ctx, sess, step.Text, "first-failure")...)
		}
		if last {
			res.Diagnostics = append(res.Diagnostics, r.capturer.Capture(ctx, sess, step.Text, "final-failure")...)
		} else if err := sleepCtx(ctx, r.cfg.Runner.RetryBackoff); err != nil {
			break
		}
	}

	res.Duration = time.Since(start)
	if lastErr != nil {
		res.Status = schemas.StatusFailed
		res.Error = surfaceError(step, lastErr)
		return res
	}
	res.Status = schemas.StatusPassed
	return res
}

// surfaceError rewrites interpretation-boundary failures into one uniform
// message; execution failures keep their original detail.
func surfaceError(step schemas.Step, err error) string {
	if schemas.IsAuthoringError(err) {
		var dnf *schemas.DataNotFoundError
		if errors.As(err, &dnf) {
			return err.Error()
		}
		return fmt.Sprintf("Unrecognized steps: %q. Please implement this step or check the step definition.", step.Text)
	}
	return err.Error()
}

// attemptStep is one interpret, resolve, perform pass bounded by the step
// timeout.
func (r *Runner) attemptStep(ctx context.Context, sess Session, step schemas.Step) error {
	stepCtx, cancel := context.WithTimeout(ctx, r.cfg.Runner.StepTimeout)
	defer cancel()

	action, err := r.interp.Interpret(step.Text)
	if err != nil {
		return err
	}
	exec, ok := r.executors[action.Intent]
	if !ok {
		return fmt.Errorf("%w: %q", schemas.ErrUnknownAction, action.Intent)
	}
	return exec(stepCtx, sess, action)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
