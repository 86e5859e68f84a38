package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// networkMonitor tracks in-flight requests on one session so stabilization
// can wait for the network to go quiet. It listens for the session's
// lifetime; network.Enable must be run on the session first.
type networkMonitor struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	last     time.Time
}

func newNetworkMonitor(sessionCtx context.Context) *networkMonitor {
	m := &networkMonitor{
		inflight: make(map[network.RequestID]struct{}),
		last:     time.Now(),
	}
	chromedp.ListenTarget(sessionCtx, m.handle)
	return m
}

func (m *networkMonitor) handle(ev interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		m.inflight[e.RequestID] = struct{}{}
		m.last = time.Now()
	case *network.EventLoadingFinished:
		delete(m.inflight, e.RequestID)
		m.last = time.Now()
	case *network.EventLoadingFailed:
		delete(m.inflight, e.RequestID)
		m.last = time.Now()
	}
}

func (m *networkMonitor) quietSince(quiet time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight) == 0 && time.Since(m.last) >= quiet
}

// WaitQuiet blocks until no request has been in flight for quiet, or ctx
// expires.
func (m *networkMonitor) WaitQuiet(ctx context.Context, quiet time.Duration) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if m.quietSince(quiet) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
