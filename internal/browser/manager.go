// Package browser wraps chromedp behind the small surfaces the rest of the
// runner needs: a Manager that owns the shared browser process, and a
// Session per scenario backed by an isolated browsing context.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/jharden0x1/steppilot/internal/config"
)

// Manager owns the exec allocator and the browser controller context that
// all sessions hang off. One Manager serves the whole run.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// createMu serializes browser-context and target creation; the CDP
	// browser endpoint does not tolerate interleaved creation commands.
	createMu sync.Mutex

	mu       sync.Mutex
	shutdown bool
}

// NewManager launches the browser process and verifies it is responsive.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	opts := allocatorOptions(&cfg.Browser)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	startCtx, cancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Info("Browser process started.", zap.Bool("headless", cfg.Browser.Headless))
	return &Manager{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// allocatorOptions translates the browser configuration into chromedp
// allocator options. NoSandbox and disable-dev-shm-usage keep the browser
// alive in containers and on hardened hosts.
func allocatorOptions(cfg *config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", cfg.Headless),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.IgnoreTLSError {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// NewSession creates an isolated browsing context (own cookies and storage)
// with a fresh tab, and returns the Session wrapping it.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.createMu.Lock()
	defer m.createMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("session creation canceled: %w", err)
	}

	execCtx := m.executorContext()
	browserContextID, err := target.CreateBrowserContext().Do(execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	targetID, err := target.CreateTarget("about:blank").
		WithBrowserContextID(browserContextID).
		Do(execCtx)
	if err != nil {
		m.disposeBrowserContext(browserContextID)
		return nil, fmt.Errorf("failed to create target: %w", err)
	}

	sessionCtx, cancelSession := chromedp.NewContext(m.browserCtx, chromedp.WithTargetID(targetID))
	sess := newSession(sessionCtx, cancelSession, m.cfg, m.logger, func() {
		m.disposeBrowserContext(browserContextID)
	})

	if err := sess.attach(ctx); err != nil {
		sess.Close(context.Background())
		return nil, err
	}
	return sess, nil
}

// executorContext binds the browser-level cdp executor to the controller
// context. Raw cdproto commands like Target.createBrowserContext run against
// the browser endpoint, not a page session, and fail with ErrInvalidContext
// on a context that carries no executor.
func (m *Manager) executorContext() context.Context {
	return cdp.WithExecutor(m.browserCtx, chromedp.FromContext(m.browserCtx).Browser)
}

func (m *Manager) disposeBrowserContext(id cdp.BrowserContextID) {
	if m.browserCtx.Err() != nil {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(m.executorContext(), 5*time.Second)
	defer cancel()
	if err := target.DisposeBrowserContext(id).Do(cleanupCtx); err != nil {
		m.logger.Debug("Failed to dispose browser context.",
			zap.String("browser_context_id", string(id)), zap.Error(err))
	}
}

// Shutdown tears down the browser process. Sessions must be closed first.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return
	}
	m.shutdown = true

	m.logger.Debug("Shutting down browser process.")
	m.browserCancel()
	m.allocCancel()
}
