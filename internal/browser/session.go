package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jharden0x1/steppilot/api/schemas"
	"github.com/jharden0x1/steppilot/internal/config"
)

// Session is one scenario's view of the browser: a dedicated tab inside an
// isolated browsing context. It implements schemas.Page for the resolver.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	logger *zap.Logger

	netmon  *networkMonitor
	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.Page = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *zap.Logger, onClose func()) *Session {
	id := uuid.New().String()
	return &Session{
		id:      id,
		ctx:     ctx,
		cancel:  cancel,
		cfg:     cfg,
		logger:  logger.With(zap.String("session_id", id)),
		onClose: onClose,
	}
}

// attach connects CDP to the session's target and enables network tracking
// for the stabilization monitor.
func (s *Session) attach(ctx context.Context) error {
	s.netmon = newNetworkMonitor(s.ctx)

	attachCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(attachCtx, network.Enable()); err != nil {
		return fmt.Errorf("failed to attach to browser target: %w", err)
	}
	return nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Navigate loads the URL. Stabilization is a separate call so the caller
// controls how stability failures are classified.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return &schemas.TimeoutError{Op: "navigate " + url, Timeout: s.cfg.Runner.StepTimeout}
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// WaitStable waits for DOM-ready and then for the network to stay quiet for
// the given period, bounded by the configured stability timeout.
func (s *Session) WaitStable(ctx context.Context, quiet time.Duration) error {
	stabCtx, cancel := context.WithTimeout(ctx, s.cfg.Runner.StabilityTimeout)
	defer cancel()

	if err := s.run(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("page did not reach DOM-ready: %w", err)
	}
	if err := s.netmon.WaitQuiet(stabCtx, quiet); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("network did not go quiet: %w", err)
	}
	return nil
}

// CurrentURL reports the tab's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("failed to read current URL: %w", err)
	}
	return loc, nil
}

// Click clicks the located element. All interactions go through the script
// path: a cached selector may address an element inside a shadow root or a
// child frame, which chromedp's native query machinery cannot reach.
func (s *Session) Click(ctx context.Context, loc schemas.Locator) error {
	s.logger.Debug("Clicking element.", zap.Int("frame", loc.Frame), zap.String("selector", loc.Selector))

	ok, err := s.evalBool(ctx, clickScript(loc.Frame, loc.Selector))
	if err != nil {
		return fmt.Errorf("click failed for %q: %w", loc.Selector, err)
	}
	if !ok {
		return &schemas.ElementNotFoundError{Descriptor: schemas.Descriptor{Name: loc.Selector}, FramesSearched: 1}
	}
	return nil
}

// Fill replaces the located control's value.
func (s *Session) Fill(ctx context.Context, loc schemas.Locator, value string) error {
	s.logger.Debug("Filling element.", zap.Int("frame", loc.Frame), zap.String("selector", loc.Selector))

	ok, err := s.evalBool(ctx, setValueScript(loc.Frame, loc.Selector, value))
	if err != nil {
		return fmt.Errorf("fill failed for %q: %w", loc.Selector, err)
	}
	if !ok {
		return &schemas.ElementNotFoundError{Descriptor: schemas.Descriptor{Name: loc.Selector}, FramesSearched: 1}
	}
	return nil
}

// SelectOption picks a dropdown option by value or visible text.
func (s *Session) SelectOption(ctx context.Context, loc schemas.Locator, value string) error {
	ok, err := s.evalBool(ctx, selectOptionScript(loc.Frame, loc.Selector, value))
	if err != nil {
		return fmt.Errorf("select failed for %q: %w", loc.Selector, err)
	}
	if !ok {
		return fmt.Errorf("no option matching %q in %q", value, loc.Selector)
	}
	return nil
}

// SetChecked drives a checkbox or radio into the wanted state.
func (s *Session) SetChecked(ctx context.Context, loc schemas.Locator, checked bool) error {
	ok, err := s.evalBool(ctx, setCheckedScript(loc.Frame, loc.Selector, checked))
	if err != nil {
		return fmt.Errorf("check failed for %q: %w", loc.Selector, err)
	}
	if !ok {
		return &schemas.ElementNotFoundError{Descriptor: schemas.Descriptor{Name: loc.Selector}, FramesSearched: 1}
	}
	return nil
}

// WaitForText polls until the literal text appears anywhere on the page,
// including same-origin frames and open shadow roots.
func (s *Session) WaitForText(ctx context.Context, text string, timeout time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	script := containsTextScript(text)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		found, err := s.evalBool(waitCtx, script)
		if err == nil && found {
			return true, nil
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil
		case <-ticker.C:
		}
	}
}

// Screenshot captures the viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// DOMHTML returns the serialized document markup.
func (s *Session) DOMHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture DOM: %w", err)
	}
	return html, nil
}

// Frames enumerates the main document and every reachable same-origin child
// document, in a stable depth-first order.
func (s *Session) Frames(ctx context.Context) ([]schemas.Frame, error) {
	var count int
	if err := s.eval(ctx, frameCountScript(), &count); err != nil {
		return nil, fmt.Errorf("failed to enumerate frames: %w", err)
	}
	if count < 1 {
		count = 1
	}
	frames := make([]schemas.Frame, count)
	for i := 0; i < count; i++ {
		frames[i] = &frame{session: s, index: i}
	}
	return frames, nil
}

// Close tears down the tab and disposes its browsing context.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

func (s *Session) eval(ctx context.Context, script string, res interface{}) error {
	return s.run(ctx, chromedp.Evaluate(script, res))
}

func (s *Session) evalBool(ctx context.Context, script string) (bool, error) {
	var ok bool
	if err := s.eval(ctx, script, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// run executes chromedp actions under both the session lifetime and the
// caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// combineContext derives a context canceled when either input is done,
// inheriting the chromedp target from primary.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}
