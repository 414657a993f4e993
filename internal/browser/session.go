// File: internal/browser/session.go
// This file implements the browser session used by the decision loop. It
// wraps a headless Chrome instance driven over CDP and exposes the
// element-finding, interaction and signal-polling primitives the
// execution layer consumes. Element lookup runs in the page as a single
// script per strategy; matched elements are tagged with a transient
// reference attribute so follow-up interactions address exactly the
// element that was matched, not whatever a selector re-query would find.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/tablewise/tablepilot/api/schemas"
	"github.com/tablewise/tablepilot/internal/agent"
	"github.com/tablewise/tablepilot/internal/config"
)

// refAttr is the transient attribute used to pin matched elements.
const refAttr = "data-tp-ref"

// Session owns one browser tab for the lifetime of a run.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	refCounter int
}

var _ agent.Environment = (*Session)(nil)

// NewSession launches a browser and opens a blank tab. The caller must
// Close the session to release the browser process.
func NewSession(parent context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", cfg.Headless))
	if cfg.DisableCache {
		opts = append(opts, chromedp.Flag("disable-application-cache", true))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	for _, arg := range cfg.Args {
		name := strings.TrimPrefix(arg, "--")
		if idx := strings.Index(name, "="); idx >= 0 {
			opts = append(opts, chromedp.Flag(name[:idx], name[idx+1:]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so launch failures surface here.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	logger.Info("Browser session started", zap.Bool("headless", cfg.Headless))
	return &Session{
		cfg:         cfg,
		logger:      logger.Named("browser"),
		allocCancel: allocCancel,
		ctx:         tabCtx,
		cancel:      tabCancel,
	}, nil
}

// Close tears down the tab and the browser process.
func (s *Session) Close() {
	s.cancel()
	s.allocCancel()
	s.logger.Info("Browser session closed")
}

// run executes chromedp actions against the session tab, bounded by the
// caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(s.ctx, actions...)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentURL reports the tab's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

// Navigate loads the URL, waits for the document body, and then gives
// the page a short settle period.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navTimeout := s.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(ctx, navTimeout)
	defer navCancel()

	s.logger.Info("Navigating", zap.String("url", url))
	if err := s.run(navCtx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to %s timed out after %v", url, navTimeout)
		}
		return fmt.Errorf("navigation failed: %w", err)
	}

	if wait := s.cfg.PostLoadWait; wait > 0 {
		if err := s.run(ctx, chromedp.Sleep(wait)); err != nil {
			return err
		}
	}
	return nil
}

// Scroll moves the viewport. Accepted targets: "top", "bottom", or
// anything else for one viewport height down.
func (s *Session) Scroll(ctx context.Context, target string) error {
	var script string
	switch strings.ToLower(target) {
	case "top":
		script = `window.scrollTo({top: 0, behavior: 'instant'});`
	case "bottom":
		script = `window.scrollTo({top: document.body.scrollHeight, behavior: 'instant'});`
	default:
		script = `window.scrollBy({top: window.innerHeight, behavior: 'instant'});`
	}
	return s.run(ctx, chromedp.Evaluate(script, nil))
}

// AwaitNetworkIdle samples the page's resource count and reports idle
// once it stays unchanged for a quiet window, or false when the timeout
// expires first.
func (s *Session) AwaitNetworkIdle(ctx context.Context, timeout time.Duration) bool {
	const quietSamples = 3
	const sampleInterval = 300 * time.Millisecond

	deadline := time.Now().Add(timeout)
	last, stable := -1, 0
	for time.Now().Before(deadline) {
		var count int
		err := s.run(ctx, chromedp.Evaluate(`performance.getEntriesByType('resource').length`, &count))
		if err != nil {
			return false
		}
		if count == last {
			stable++
			if stable >= quietSamples {
				return true
			}
		} else {
			last, stable = count, 0
		}
		select {
		case <-time.After(sampleInterval):
		case <-ctx.Done():
			return false
		}
	}
	return false
}

// Screenshot captures the current viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return buf, nil
}

// queryResult is what the in-page matcher returns per element.
type queryResult struct {
	Ref     string `json:"ref"`
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
	Desc    string `json:"desc"`
}

// Query finds every element matching the spec under its declared
// strategy and pins each match with a reference attribute.
func (s *Session) Query(ctx context.Context, spec schemas.TargetSpec) ([]agent.Element, error) {
	s.refCounter++
	script, err := buildMatcherScript(spec, fmt.Sprintf("q%d", s.refCounter))
	if err != nil {
		return nil, err
	}

	var results []queryResult
	err = s.run(ctx, chromedp.Evaluate(script, &results, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(false)
	}))
	if err != nil {
		return nil, fmt.Errorf("element query failed: %w", err)
	}

	elements := make([]agent.Element, 0, len(results))
	for _, r := range results {
		elements = append(elements, &pageElement{
			session:  s,
			selector: fmt.Sprintf(`[%s=%q]`, refAttr, r.Ref),
			visible:  r.Visible,
			enabled:  r.Enabled,
			desc:     r.Desc,
		})
	}
	return elements, nil
}

// pageElement is one matched element, addressed through its pinned
// reference attribute.
type pageElement struct {
	session  *Session
	selector string
	visible  bool
	enabled  bool
	desc     string
}

var _ agent.Element = (*pageElement)(nil)

func (e *pageElement) Visible() bool    { return e.visible }
func (e *pageElement) Enabled() bool    { return e.enabled }
func (e *pageElement) Describe() string { return e.desc }

func (e *pageElement) Click(ctx context.Context) error {
	return e.session.run(ctx,
		chromedp.ScrollIntoView(e.selector, chromedp.ByQuery),
		chromedp.Click(e.selector, chromedp.ByQuery),
	)
}

func (e *pageElement) Fill(ctx context.Context, value string) error {
	clear := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.value = '';
		el.dispatchEvent(new Event('input', {bubbles: true}));
		return true;
	})()`, e.selector)
	var cleared bool
	return e.session.run(ctx,
		chromedp.ScrollIntoView(e.selector, chromedp.ByQuery),
		chromedp.Evaluate(clear, &cleared),
		chromedp.SendKeys(e.selector, value, chromedp.ByQuery),
	)
}

// SelectOption sets a <select> to the option whose value or visible
// label matches. ISO datetime values fall back to their clock-time label
// ("2024-05-01T19:00:00" matches the "7:00 PM" option) since reservation
// widgets commonly label options that way.
func (e *pageElement) SelectOption(ctx context.Context, value string) error {
	labels := []string{value}
	if label, ok := TimeLabelFromISO(value); ok {
		labels = append(labels, label)
	}

	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el || el.tagName !== 'SELECT') return 'no-select';
		const wanted = %s;
		for (const w of wanted) {
			for (const opt of el.options) {
				if (opt.value === w || opt.text.trim() === w) {
					el.value = opt.value;
					el.dispatchEvent(new Event('change', {bubbles: true}));
					return 'ok';
				}
			}
		}
		return 'no-option';
	})()`, e.selector, jsStringArray(labels))

	var status string
	if err := e.session.run(ctx, chromedp.Evaluate(script, &status)); err != nil {
		return err
	}
	switch status {
	case "ok":
		return nil
	case "no-select":
		return fmt.Errorf("element %s is not a select", e.selector)
	default:
		return fmt.Errorf("no option matching %q in %s", value, e.selector)
	}
}
