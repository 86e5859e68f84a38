package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/jharden0x1/steppilot/api/schemas"
)

// frame addresses one same-origin document of the session's page by its
// position in the depth-first frame enumeration. Index 0 is the main frame.
type frame struct {
	session *Session
	index   int
}

var _ schemas.Frame = (*frame)(nil)

func (f *frame) Index() int {
	return f.index
}

// QueryVisible polls until the selector resolves to a visible element or the
// timeout passes.
func (f *frame) QueryVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	return f.pollBool(ctx, queryVisibleScript(f.index, selector), timeout)
}

// ByRole finds a visible element by accessibility role and accessible name.
func (f *frame) ByRole(ctx context.Context, role, name string, timeout time.Duration) (string, bool, error) {
	return f.pollSelector(ctx, lookupScript(f.index, "__byRole", role, name), timeout)
}

// ByLabel finds a visible form control through its <label> text.
func (f *frame) ByLabel(ctx context.Context, name string, timeout time.Duration) (string, bool, error) {
	return f.pollSelector(ctx, lookupScript(f.index, "__byLabel", name), timeout)
}

// ByPlaceholder finds a visible control by placeholder text.
func (f *frame) ByPlaceholder(ctx context.Context, name string, timeout time.Duration) (string, bool, error) {
	return f.pollSelector(ctx, lookupScript(f.index, "__byPlaceholder", name), timeout)
}

// Candidates collects the frame's visible interactive elements.
func (f *frame) Candidates(ctx context.Context) ([]schemas.Candidate, error) {
	var raw []schemas.Candidate
	if err := f.session.eval(ctx, candidatesScript(f.index), &raw); err != nil {
		return nil, fmt.Errorf("structural scan of frame %d failed: %w", f.index, err)
	}
	for i := range raw {
		raw[i].Frame = f.index
	}
	return raw, nil
}

func (f *frame) pollBool(ctx context.Context, script string, timeout time.Duration) (bool, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		ok, err := f.session.evalBool(pollCtx, script)
		if err == nil && ok {
			return true, nil
		}
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil
		case <-ticker.C:
		}
	}
}

func (f *frame) pollSelector(ctx context.Context, script string, timeout time.Duration) (string, bool, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		var sel string
		err := f.session.eval(pollCtx, script, &sel)
		if err == nil && sel != "" {
			return sel, true, nil
		}
		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			return "", false, nil
		case <-ticker.C:
		}
	}
}
