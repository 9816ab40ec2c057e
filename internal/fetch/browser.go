package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/yacobolo/cssaudit/internal/artifact"
	"github.com/yacobolo/cssaudit/internal/audit"
)

// collectScript gathers style tag text, linked and constructed sheets and
// inline style attributes. Cross-origin sheets throw on cssRules and come
// back empty.
const collectScript = `() => {
	const read = sheet => {
		try {
			return Array.from(sheet.cssRules || []).map(r => r.cssText).join('\n');
		} catch (e) {
			return '';
		}
	};
	const styleTags = Array.from(document.querySelectorAll('style')).map(s => s.textContent || '');
	const stylesheets = Array.from(document.styleSheets)
		.filter(sheet => sheet.href)
		.map(sheet => ({ href: sheet.href, text: read(sheet) }));
	const cssom = Array.from(document.adoptedStyleSheets || []).map(read);
	const inlineStyles = Array.from(document.querySelectorAll('[style]'))
		.map(el => el.getAttribute('style') || '')
		.filter(s => s.trim() !== '');
	return { styleTags, stylesheets, cssom, inlineStyles };
}`

const linksScript = `() => Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`

// BrowserConfig configures a BrowserFetcher.
type BrowserConfig struct {
	Headless bool
	// Install downloads Chromium before the first launch.
	Install bool
	// RecordHAR records a HAR file per page and hands it to Artifacts.
	RecordHAR bool
	Artifacts artifact.Store
	Logger    *slog.Logger
}

// BrowserFetcher renders pages in headless Chromium so that CSS injected by
// scripts is seen. The browser starts on first use and is shut down by
// Close; a later fetch starts it again.
type BrowserFetcher struct {
	cfg    BrowserConfig
	logger *slog.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

// NewBrowserFetcher returns a fetcher. No browser is launched yet.
func NewBrowserFetcher(cfg BrowserConfig) *BrowserFetcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserFetcher{cfg: cfg, logger: logger}
}

func (f *BrowserFetcher) ensureBrowser() (playwright.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}
	if f.cfg.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("installing chromium: %w", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(f.cfg.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launching chromium: %w", err)
	}
	f.pw = pw
	f.browser = browser
	return browser, nil
}

// FetchPage loads rawURL, waits for the network to settle and collects the
// page's CSS.
func (f *BrowserFetcher) FetchPage(ctx context.Context, rawURL string, opts Options) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	browser, err := f.ensureBrowser()
	if err != nil {
		return nil, err
	}

	ctxOpts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
	}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight}
	}

	var harFile string
	if f.cfg.RecordHAR && f.cfg.Artifacts != nil {
		tmp, err := os.MkdirTemp("", "cssaudit-har-*")
		if err != nil {
			return nil, fmt.Errorf("creating har directory: %w", err)
		}
		defer os.RemoveAll(tmp)
		harFile = filepath.Join(tmp, "page.har")
		ctxOpts.RecordHarPath = playwright.String(harFile)
	}

	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	closed := false
	defer func() {
		if !closed {
			_ = bctx.Close()
		}
	}()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}

	resp, err := page.Goto(rawURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(opts.timeout().Milliseconds())),
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", rawURL, err)
	}
	if resp != nil && resp.Status() == 404 {
		return &Page{URL: rawURL, Status: StatusNotFound}, nil
	}

	if opts.WaitForSelector != "" {
		_, err := page.WaitForSelector(opts.WaitForSelector, playwright.PageWaitForSelectorOptions{
			Timeout: playwright.Float(float64(WaitForSelectorTimeout.Milliseconds())),
		})
		if err != nil {
			f.logger.Debug("selector did not appear", "url", rawURL, "selector", opts.WaitForSelector)
		}
	}

	result, err := page.Evaluate(collectScript)
	if err != nil {
		return nil, fmt.Errorf("collecting styles from %s: %w", rawURL, err)
	}
	css, err := decodeCollected(result)
	if err != nil {
		return nil, fmt.Errorf("collecting styles from %s: %w", rawURL, err)
	}

	out := &Page{URL: rawURL, Status: StatusSuccess, CSS: css}

	// The HAR file is written when the context closes.
	closed = true
	if err := bctx.Close(); err != nil {
		f.logger.Debug("closing browser context", "url", rawURL, "error", err)
	}
	if harFile != "" {
		out.HARPath = f.storeHAR(ctx, rawURL, harFile)
	}
	return out, nil
}

func (f *BrowserFetcher) storeHAR(ctx context.Context, pageURL, harFile string) string {
	data, err := os.ReadFile(harFile)
	if err != nil {
		f.logger.Warn("har recording missing", "url", pageURL, "error", err)
		return ""
	}
	location, err := f.cfg.Artifacts.Put(ctx, artifact.Key("har", pageURL, ".har"), "application/json", data)
	if err != nil {
		f.logger.Warn("storing har failed", "url", pageURL, "error", err)
		return ""
	}
	return location
}

// DiscoverLinks loads rawURL and returns its anchors that stay on rawURL's
// host. Only the timeout and user agent of opts apply.
func (f *BrowserFetcher) DiscoverLinks(ctx context.Context, rawURL string, opts Options) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	requested, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	browser, err := f.ensureBrowser()
	if err != nil {
		return nil, err
	}
	ctxOpts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
	}
	if opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(opts.UserAgent)
	}
	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("opening page: %w", err)
	}
	if _, err := page.Goto(rawURL, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(opts.timeout().Milliseconds())),
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return nil, fmt.Errorf("loading %s: %w", rawURL, err)
	}
	result, err := page.Evaluate(linksScript)
	if err != nil {
		return nil, fmt.Errorf("collecting links from %s: %w", rawURL, err)
	}

	base, err := url.Parse(page.URL())
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", page.URL(), err)
	}
	var hrefs []string
	if items, ok := result.([]any); ok {
		for _, item := range items {
			if s, ok := item.(string); ok {
				hrefs = append(hrefs, s)
			}
		}
	}
	return sameHostLinks(base, requested.Host, hrefs), nil
}

// Close stops the browser. It is safe to call when nothing was launched.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	if f.browser != nil {
		errs = append(errs, f.browser.Close())
		f.browser = nil
	}
	if f.pw != nil {
		errs = append(errs, f.pw.Stop())
		f.pw = nil
	}
	return errors.Join(errs...)
}

// decodeCollected converts Playwright's generic result into RawPageCSS.
func decodeCollected(v any) (audit.RawPageCSS, error) {
	var raw audit.RawPageCSS
	data, err := json.Marshal(v)
	if err != nil {
		return raw, err
	}
	err = json.Unmarshal(data, &raw)
	return raw, err
}
