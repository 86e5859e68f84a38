package runner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jharden0x1/steppilot/api/schemas"
)

func (r *Runner) resolveElement(ctx context.Context, sess Session, action schemas.Action) (schemas.Locator, error) {
	desc := schemas.Descriptor{Name: action.Locator, Type: action.ElementType}
	return r.resolver.Resolve(ctx, sess, desc)
}

// execNavigate loads an absolute or base-relative target and waits for full
// page stability. A stability timeout degrades to a warning, not a failure.
func (r *Runner) execNavigate(ctx context.Context, sess Session, action schemas.Action) error {
	target, err := r.navigationTarget(action.Value)
	if err != nil {
		return err
	}
	if err := sess.Navigate(ctx, target); err != nil {
		return err
	}
	r.waitFullStability(ctx, sess, target)
	return nil
}

func (r *Runner) navigationTarget(value string) (string, error) {
	if u, err := url.Parse(value); err == nil && u.IsAbs() {
		return value, nil
	}
	base := r.cfg.Runner.BaseURL
	if base == "" {
		return "", fmt.Errorf("cannot navigate to relative target %q: no base URL configured", value)
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(value, "/"), nil
}

func (r *Runner) waitFullStability(ctx context.Context, sess Session, what string) {
	if err := sess.WaitStable(ctx, stabilizationQuiet); err != nil {
		if ctx.Err() != nil {
			return
		}
		r.logger.Warn("Page did not stabilize in time; continuing.",
			zap.String("target", what), zap.Error(err))
	}
}

// execFill writes the value and then waits the short stability window for a
// possible reactive redirect.
func (r *Runner) execFill(ctx context.Context, sess Session, action schemas.Action) error {
	loc, err := r.resolveElement(ctx, sess, action)
	if err != nil {
		return err
	}
	if err := sess.Fill(ctx, loc, action.Value); err != nil {
		return err
	}
	return sleepCtx(ctx, r.cfg.Runner.ShortWait)
}

func (r *Runner) execSelect(ctx context.Context, sess Session, action schemas.Action) error {
	loc, err := r.resolveElement(ctx, sess, action)
	if err != nil {
		return err
	}
	if err := sess.SelectOption(ctx, loc, action.Value); err != nil {
		return err
	}
	return sleepCtx(ctx, r.cfg.Runner.ShortWait)
}

// execClick records the URL, clicks, and polls briefly for a URL change. A
// change takes the redirect branch (full stability); no change takes only
// the short window.
func (r *Runner) execClick(ctx context.Context, sess Session, action schemas.Action) error {
	loc, err := r.resolveElement(ctx, sess, action)
	if err != nil {
		return err
	}
	before, err := sess.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if err := sess.Click(ctx, loc); err != nil {
		return err
	}

	if r.urlChanged(ctx, sess, before) {
		r.waitFullStability(ctx, sess, "post-click redirect")
		return nil
	}
	return sleepCtx(ctx, r.cfg.Runner.ShortWait)
}

// urlChanged polls for a URL change within the configured window.
func (r *Runner) urlChanged(ctx context.Context, sess Session, before string) bool {
	pollCtx, cancel := context.WithTimeout(ctx, r.cfg.Runner.URLPollWindow)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		current, err := sess.CurrentURL(pollCtx)
		if err == nil && current != before {
			return true
		}
		select {
		case <-pollCtx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (r *Runner) execCheck(ctx context.Context, sess Session, action schemas.Action) error {
	return r.setChecked(ctx, sess, action, true)
}

func (r *Runner) execUncheck(ctx context.Context, sess Session, action schemas.Action) error {
	return r.setChecked(ctx, sess, action, false)
}

func (r *Runner) setChecked(ctx context.Context, sess Session, action schemas.Action, checked bool) error {
	if action.ElementType == "" || action.ElementType == schemas.ElementAny {
		action.ElementType = schemas.ElementCheckbox
	}
	loc, err := r.resolveElement(ctx, sess, action)
	if err != nil {
		return err
	}
	if err := sess.SetChecked(ctx, loc, checked); err != nil {
		return err
	}
	return sleepCtx(ctx, r.cfg.Runner.ShortWait)
}

// execAssertText waits for DOM-ready, then for the literal text to appear.
func (r *Runner) execAssertText(ctx context.Context, sess Session, action schemas.Action) error {
	r.waitFullStability(ctx, sess, "assert text")
	found, err := sess.WaitForText(ctx, action.Value, r.cfg.Runner.AssertTimeout)
	if err != nil {
		return err
	}
	if !found {
		return &schemas.AssertionError{Kind: "text", Expected: action.Value}
	}
	return nil
}

// execAssertURL polls until the current URL contains the expected substring,
// case-insensitively, then re-checks stability.
func (r *Runner) execAssertURL(ctx context.Context, sess Session, action schemas.Action) error {
	want := strings.ToLower(action.Value)
	pollCtx, cancel := context.WithTimeout(ctx, r.cfg.Runner.AssertTimeout)
	defer cancel()

	var last string
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		current, err := sess.CurrentURL(pollCtx)
		if err == nil {
			last = current
			if strings.Contains(strings.ToLower(current), want) {
				r.waitFullStability(ctx, sess, "assert url")
				return nil
			}
		}
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &schemas.AssertionError{Kind: "url", Expected: action.Value, Actual: last}
		case <-ticker.C:
		}
	}
}

// execAssertVisible resolves the element; the resolver only ever returns
// visible matches, so resolution success is the assertion.
func (r *Runner) execAssertVisible(ctx context.Context, sess Session, action schemas.Action) error {
	if _, err := r.resolveElement(ctx, sess, action); err != nil {
		var notFound *schemas.ElementNotFoundError
		if errors.As(err, &notFound) {
			return &schemas.AssertionError{Kind: "visible", Expected: action.Locator}
		}
		return err
	}
	return nil
}
