// Package browser implements the UI collaborator: a serially-accessed remote
// browser session exposed through the schemas.Driver interface. The live
// implementation drives Chrome via chromedp; tests use the scripted FakeDriver.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/waypointlabs/waypoint/api/schemas"
	"github.com/waypointlabs/waypoint/internal/config"
)

// snapshotJS extracts the interactable elements of the current page. Each
// element gets a stable numeric id for the model to reference and a CSS
// selector for replay.
const snapshotJS = `(() => {
	const sel = el => {
		if (el.id) return '#' + CSS.escape(el.id);
		const parts = [];
		while (el && el.nodeType === 1 && parts.length < 5) {
			let part = el.localName;
			const parent = el.parentElement;
			if (parent) {
				const same = Array.from(parent.children).filter(c => c.localName === el.localName);
				if (same.length > 1) part += ':nth-of-type(' + (same.indexOf(el) + 1) + ')';
			}
			parts.unshift(part);
			if (el.id) { parts[0] = '#' + CSS.escape(el.id); break; }
			el = parent;
		}
		return parts.join(' > ');
	};
	const visible = el => {
		const r = el.getBoundingClientRect();
		return r.width > 0 && r.height > 0;
	};
	const nodes = document.querySelectorAll(
		'a, button, input, select, textarea, summary, [role="button"], [role="link"], [role="treeitem"], [onclick]');
	const elements = [];
	let id = 0;
	for (const el of nodes) {
		if (!visible(el)) continue;
		elements.push({
			id: id++,
			tag: el.localName,
			text: (el.innerText || el.value || el.getAttribute('aria-label') || '').trim().slice(0, 120),
			selector: sel(el),
		});
	}
	const modal = document.querySelector('[role="dialog"], dialog[open], .modal.show, .overlay.open');
	return JSON.stringify({
		url: location.href,
		modal_open: !!(modal && visible(modal)),
		elements: elements,
	});
})()`

// closeOverlayJS clicks the usual suspects for dismissing a modal.
const closeOverlayJS = `(() => {
	const modal = document.querySelector('[role="dialog"], dialog[open], .modal.show, .overlay.open');
	if (!modal) return 'no-overlay';
	const btn = modal.querySelector(
		'[aria-label="Close"], [aria-label="close"], .close, .modal-close, button[title="Close"]');
	if (btn) { btn.click(); return 'clicked'; }
	const esc = new KeyboardEvent('keydown', {key: 'Escape', keyCode: 27, bubbles: true});
	document.dispatchEvent(esc);
	return 'escaped';
})()`

// expandAllJS opens every collapsed node the page exposes.
const expandAllJS = `(() => {
	let n = 0;
	document.querySelectorAll('details:not([open])').forEach(d => { d.open = true; n++; });
	document.querySelectorAll('[aria-expanded="false"]').forEach(el => { el.click(); n++; });
	return String(n);
})()`

// clickByTextJS activates the first visible element containing the text.
const clickByTextTemplate = `(() => {
	const needle = %s.toLowerCase();
	const nodes = document.querySelectorAll('a, button, summary, [role="button"], [role="treeitem"], [onclick], li, td, span, div');
	for (const el of nodes) {
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) continue;
		const text = (el.innerText || '').trim().toLowerCase();
		if (text && text.includes(needle) && text.length < needle.length + 80) {
			el.click();
			return 'clicked';
		}
	}
	return 'not-found';
})()`

// ChromeDriver is the live chromedp-backed Driver.
type ChromeDriver struct {
	browserCtx context.Context
	cancels    []context.CancelFunc
	cfg        config.BrowserConfig
	logger     *zap.Logger
}

// NewChromeDriver launches a browser and navigates to the canonical start URL.
func NewChromeDriver(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*ChromeDriver, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	d := &ChromeDriver{
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{cancelBrowser, cancelAlloc},
		cfg:        cfg,
		logger:     logger.Named("browser"),
	}

	if cfg.StartURL != "" {
		if err := d.navigate(ctx, cfg.StartURL); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to open start URL: %w", err)
		}
	}
	return d, nil
}

// Close tears down the browser process.
func (d *ChromeDriver) Close() {
	for _, cancel := range d.cancels {
		cancel()
	}
}

// run executes chromedp actions under the per-action timeout, honoring both
// the caller's context and the session's.
func (d *ChromeDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	opCtx, cancel := context.WithTimeout(d.browserCtx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(opCtx, actions...) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (d *ChromeDriver) settle(ctx context.Context) {
	wait := d.cfg.PostActionWait
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func (d *ChromeDriver) navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, d.cfg.NavigationTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	d.settle(ctx)
	return nil
}

// awaitPromise lets snapshot scripts return asynchronously if the page wraps
// extraction in a promise.
func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// Snapshot extracts the current page state.
func (d *ChromeDriver) Snapshot(ctx context.Context) (schemas.PageSnapshot, error) {
	var raw string
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Evaluate(snapshotJS, &raw, awaitPromise)); err != nil {
		return schemas.PageSnapshot{}, fmt.Errorf("snapshot extraction failed: %w", err)
	}
	var snap schemas.PageSnapshot
	if err := json.UnmarshalFromString(raw, &snap); err != nil {
		return schemas.PageSnapshot{}, fmt.Errorf("snapshot payload malformed: %w", err)
	}
	return snap, nil
}

// Click activates the element addressed by the CSS selector.
func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	d.logger.Debug("Clicking element", zap.String("selector", selector))
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Click(selector, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	d.settle(ctx)
	return nil
}

// ClickByText activates the first visible element containing the text.
func (d *ChromeDriver) ClickByText(ctx context.Context, text string) error {
	quoted, err := json.MarshalToString(text)
	if err != nil {
		return fmt.Errorf("failed to encode click text: %w", err)
	}
	var result string
	script := fmt.Sprintf(clickByTextTemplate, quoted)
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Evaluate(script, &result)); err != nil {
		return fmt.Errorf("click by text %q failed: %w", text, err)
	}
	if result != "clicked" {
		return fmt.Errorf("no visible element contains %q", text)
	}
	d.settle(ctx)
	return nil
}

// Type focuses the element and types the text into it.
func (d *ChromeDriver) Type(ctx context.Context, selector, text string) error {
	err := d.run(ctx, d.cfg.ActionTimeout,
		chromedp.Focus(selector, chromedp.NodeVisible),
		chromedp.SendKeys(selector, text),
	)
	if err != nil {
		return fmt.Errorf("typing into %q failed: %w", selector, err)
	}
	d.settle(ctx)
	return nil
}

// Scroll moves the viewport one page in the given direction.
func (d *ChromeDriver) Scroll(ctx context.Context, dir schemas.ScrollDirection) error {
	delta := "window.innerHeight"
	if dir == schemas.ScrollUp {
		delta = "-window.innerHeight"
	}
	var ignored interface{}
	script := fmt.Sprintf("window.scrollBy(0, %s); null", delta)
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Evaluate(script, &ignored)); err != nil {
		return fmt.Errorf("scroll %s failed: %w", dir, err)
	}
	d.settle(ctx)
	return nil
}

// Back navigates one page backwards in session history.
func (d *ChromeDriver) Back(ctx context.Context) error {
	if err := d.run(ctx, d.cfg.NavigationTimeout, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("history back failed: %w", err)
	}
	d.settle(ctx)
	return nil
}

// CloseOverlay dismisses the topmost modal/overlay, if any.
func (d *ChromeDriver) CloseOverlay(ctx context.Context) error {
	var result string
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Evaluate(closeOverlayJS, &result)); err != nil {
		return fmt.Errorf("overlay close failed: %w", err)
	}
	d.settle(ctx)
	return nil
}

// ExpandAll expands every collapsed/collapsible node on the page.
func (d *ChromeDriver) ExpandAll(ctx context.Context) error {
	var result string
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Evaluate(expandAllJS, &result)); err != nil {
		return fmt.Errorf("expand-all failed: %w", err)
	}
	d.logger.Debug("Expanded collapsible nodes", zap.String("count", result))
	d.settle(ctx)
	return nil
}

// Evaluate runs a script in the page and returns its text result.
func (d *ChromeDriver) Evaluate(ctx context.Context, script string) (string, error) {
	var result string
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.Evaluate(script, &result)); err != nil {
		return "", fmt.Errorf("script evaluation failed: %w", err)
	}
	return result, nil
}

// Screenshot captures the current viewport as PNG bytes.
func (d *ChromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, d.cfg.ActionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// Reset returns the UI to its canonical start state.
func (d *ChromeDriver) Reset(ctx context.Context) error {
	if d.cfg.StartURL == "" {
		return nil
	}
	return d.navigate(ctx, d.cfg.StartURL)
}

var _ schemas.Driver = (*ChromeDriver)(nil)
