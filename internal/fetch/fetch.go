// Package fetch loads pages and collects the CSS they apply, either with a
// plain HTTP client or a headless Chromium driven by Playwright.
package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/yacobolo/cssaudit/internal/audit"
)

// DefaultTimeout bounds a single page load.
const DefaultTimeout = 60 * time.Second

// WaitForSelectorTimeout bounds the optional wait-for-selector step. Running
// out of time there is not an error.
const WaitForSelectorTimeout = 5 * time.Second

// PageStatus is the outcome of loading a page.
type PageStatus string

// Page statuses
const (
	StatusSuccess  PageStatus = "success"
	StatusNotFound PageStatus = "not_found"
)

// Options tune a single page load.
type Options struct {
	Timeout         time.Duration
	ViewportWidth   int
	ViewportHeight  int
	UserAgent       string
	WaitForSelector string
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// Page is a loaded page and the raw CSS found on it.
type Page struct {
	URL     string           `json:"url"`
	Status  PageStatus       `json:"status"`
	CSS     audit.RawPageCSS `json:"css"`
	HARPath string           `json:"harPath,omitempty"`
}

// ErrUnsupportedURL is returned for URLs that are not absolute http(s).
var ErrUnsupportedURL = errors.New("unsupported url")

// Normalize canonicalizes an absolute http(s) URL: lowercase scheme and
// host, no fragment, and "/" for an empty path.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedURL, raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// resolveSameHost resolves href against base and keeps it only when it
// points to an http(s) page on host.
func resolveSameHost(base *url.URL, host, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if !strings.EqualFold(abs.Host, host) {
		return "", false
	}
	n, err := Normalize(abs.String())
	if err != nil {
		return "", false
	}
	return n, true
}

// sameHostLinks resolves hrefs against base and keeps those on host,
// de-duplicated in first-seen order. host is the requested page's host, so a
// redirect or a <base> element pointing elsewhere does not widen the crawl.
func sameHostLinks(base *url.URL, host string, hrefs []string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, h := range hrefs {
		link, ok := resolveSameHost(base, host, h)
		if !ok || seen[link] {
			continue
		}
		seen[link] = true
		out = append(out, link)
	}
	return out
}
