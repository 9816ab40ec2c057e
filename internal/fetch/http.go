package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html"

	"github.com/yacobolo/cssaudit/internal/audit"
)

const (
	maxBodyBytes     = 10 << 20
	defaultCacheSize = 256
	defaultUserAgent = "cssaudit/1.0 (+https://github.com/yacobolo/cssaudit)"
)

// HTTPConfig configures an HTTPFetcher.
type HTTPConfig struct {
	// Insecure skips TLS verification so self-signed sites can be audited.
	Insecure bool
	// CacheSize bounds the per-scan stylesheet cache.
	CacheSize int
	// Transport overrides the HTTP transport.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// HTTPFetcher loads pages without running scripts. Stylesheets linked from
// several pages are downloaded once per scan.
type HTTPFetcher struct {
	client *http.Client
	sheets *lru.Cache[string, string]
	logger *slog.Logger
}

// NewHTTPFetcher creates a fetcher.
func NewHTTPFetcher(cfg HTTPConfig) (*HTTPFetcher, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating stylesheet cache: %w", err)
	}

	transport := cfg.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.Insecure {
			// #nosec G402 - auditing sites with self-signed certificates is a feature
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		transport = t
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPFetcher{
		client: &http.Client{Transport: transport},
		sheets: cache,
		logger: logger,
	}, nil
}

// FetchPage downloads rawURL and every stylesheet it links. A stylesheet
// that cannot be downloaded contributes empty text.
func (f *HTTPFetcher) FetchPage(ctx context.Context, rawURL string, opts Options) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	body, status, finalURL, err := f.get(ctx, rawURL, opts.UserAgent)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return &Page{URL: rawURL, Status: StatusNotFound}, nil
	}
	if status >= 400 {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", rawURL, status)
	}

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rawURL, err)
	}
	doc := parseDocument(root, finalURL)

	if opts.WaitForSelector != "" {
		f.logger.Debug("wait-for-selector has no effect without a browser", "selector", opts.WaitForSelector)
	}

	page := &Page{
		URL:    rawURL,
		Status: StatusSuccess,
		CSS: audit.RawPageCSS{
			StyleTags:    doc.styleTags,
			InlineStyles: doc.inline,
		},
	}
	for _, href := range doc.stylesheets {
		ref, err := doc.base.Parse(href)
		if err != nil {
			continue
		}
		abs := ref.String()
		page.CSS.Stylesheets = append(page.CSS.Stylesheets, audit.Stylesheet{
			Href: abs,
			Text: f.stylesheet(ctx, abs, opts.UserAgent),
		})
	}
	return page, nil
}

// stylesheet returns the text of a stylesheet, from cache when possible.
func (f *HTTPFetcher) stylesheet(ctx context.Context, href, userAgent string) string {
	if text, ok := f.sheets.Get(href); ok {
		return text
	}
	body, status, _, err := f.get(ctx, href, userAgent)
	if err != nil || status >= 400 {
		f.logger.Debug("stylesheet unavailable", "href", href, "status", status, "error", err)
		return ""
	}
	text := string(body)
	f.sheets.Add(href, text)
	return text
}

// DiscoverLinks returns the links on rawURL's page that stay on rawURL's host.
// Only the timeout and user agent of opts apply.
func (f *HTTPFetcher) DiscoverLinks(ctx context.Context, rawURL string, opts Options) ([]string, error) {
	requested, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout())
	defer cancel()

	body, status, finalURL, err := f.get(ctx, rawURL, opts.UserAgent)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", rawURL, status)
	}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", rawURL, err)
	}
	doc := parseDocument(root, finalURL)
	return sameHostLinks(doc.base, requested.Host, doc.anchors), nil
}

// Close empties the stylesheet cache so the next scan sees fresh CSS.
func (f *HTTPFetcher) Close() error {
	f.sheets.Purge()
	return nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL, userAgent string) ([]byte, int, *url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	return body, resp.StatusCode, resp.Request.URL, nil
}
