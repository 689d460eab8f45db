// File: internal/surface/chrome.go
package surface

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/hexlane/operant/internal/action"
	"github.com/hexlane/operant/internal/config"
)

// ChromeSurface drives one headless Chrome tab over CDP. It owns the
// allocator and tab contexts for its whole lifetime and serializes all
// operations behind a mutex.
type ChromeSurface struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	mu       sync.Mutex
	isClosed bool
}

var _ Surface = (*ChromeSurface)(nil)

const shutdownGracePeriod = 10 * time.Second

// NewChromeSurface launches the browser, opens one tab and applies the
// configured viewport emulation. The returned surface is ready for use.
func NewChromeSurface(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*ChromeSurface, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		// Stability flags for containerized environments.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, arg := range cfg.ExtraArgs {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &ChromeSurface{
		logger:      logger.Named("surface"),
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}

	// Create the target and apply viewport emulation up front.
	initCtx, cancel := context.WithTimeout(tabCtx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(initCtx,
		chromedp.EmulateViewport(
			int64(cfg.ViewportWidth),
			int64(cfg.ViewportHeight),
			chromedp.EmulateScale(cfg.DeviceScaleFactor),
		),
	); err != nil {
		s.release()
		return nil, fmt.Errorf("failed to initialize browser tab: %w", err)
	}

	s.logger.Info("Browsing surface initialized.",
		zap.Int("viewport_width", cfg.ViewportWidth),
		zap.Int("viewport_height", cfg.ViewportHeight),
		zap.Float64("device_scale_factor", cfg.DeviceScaleFactor),
	)
	return s, nil
}

// Attached reports whether the tab is still connected.
func (s *ChromeSurface) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return false
	}
	return s.tabCtx.Err() == nil
}

// run executes chromedp actions against the tab, respecting both the tab's
// lifetime and the caller's context.
func (s *ChromeSurface) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return action.ErrSurfaceUnavailable
	}

	runCtx, cancel := combineContext(s.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the URL, bounded by the configured navigation timeout.
func (s *ChromeSurface) Navigate(ctx context.Context, url string) error {
	navCtx := ctx
	if s.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.cfg.NavigationTimeout)
		defer cancel()
	}
	if err := s.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%w: %s: %v", action.ErrNavigationFailed, url, err)
	}
	return nil
}

// Evaluate runs a script in the current document.
func (s *ChromeSurface) Evaluate(ctx context.Context, script string, out any) error {
	return s.run(ctx, chromedp.Evaluate(script, out))
}

// EvaluateAsync runs a promise-returning script and awaits its resolution.
func (s *ChromeSurface) EvaluateAsync(ctx context.Context, script string, out any) error {
	return s.run(ctx, chromedp.Evaluate(script, out,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		},
	))
}

// CaptureScreenshot captures the current viewport as a PNG.
func (s *ChromeSurface) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Location returns the document's current URL.
func (s *ChromeSurface) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Metrics reads the CSS visual viewport via CDP and the device pixel ratio
// from the page itself.
func (s *ChromeSurface) Metrics(ctx context.Context) (Metrics, error) {
	var m Metrics
	err := s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		_, _, _, _, cssVisualViewport, _, err := page.GetLayoutMetrics().Do(c)
		if err != nil {
			return err
		}
		if cssVisualViewport != nil {
			m.Width = cssVisualViewport.ClientWidth
			m.Height = cssVisualViewport.ClientHeight
		}
		return nil
	}), chromedp.Evaluate(`window.devicePixelRatio || 1`, &m.DeviceScaleFactor))
	if err != nil {
		return Metrics{}, err
	}
	if m.DeviceScaleFactor <= 0 {
		m.DeviceScaleFactor = 1
	}
	return m, nil
}

// SetViewport re-applies viewport emulation, used if the caller reconfigures
// dimensions mid-session.
func (s *ChromeSurface) SetViewport(ctx context.Context, width, height int64, scale float64) error {
	return s.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return emulation.SetDeviceMetricsOverride(width, height, scale, false).Do(c)
	}))
}

// Close shuts down the tab and the browser process.
func (s *ChromeSurface) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browsing surface.")

	done := make(chan struct{})
	go func() {
		s.release()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(shutdownGracePeriod):
		s.logger.Warn("Timeout waiting for browser shutdown.")
		return fmt.Errorf("timed out closing browsing surface")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChromeSurface) release() {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// combineContext derives a context that is cancelled when either input is.
// The primary context contributes values (the CDP target lives there).
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
