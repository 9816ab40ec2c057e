package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://Example.com", "https://example.com/", false},
		{"HTTP://example.com/a#frag", "http://example.com/a", false},
		{"  https://example.com/a?b=1 ", "https://example.com/a?b=1", false},
		{"ftp://example.com/", "", true},
		{"/relative", "", true},
		{"mailto:a@example.com", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSameHostLinks(t *testing.T) {
	base, err := url.Parse("https://example.com/blog/")
	require.NoError(t, err)

	got := sameHostLinks(base, "example.com", []string{
		"post-1",
		"/about#team",
		"/about",
		"https://other.com/x",
		"#top",
		"mailto:me@example.com",
		"https://EXAMPLE.com/contact",
		"",
	})
	assert.Equal(t, []string{
		"https://example.com/blog/post-1",
		"https://example.com/about",
		"https://example.com/contact",
	}, got)
}

func TestParseDocument(t *testing.T) {
	const page = `<!doctype html><html><head>
<base href="https://cdn.example.com/site/">
<style>:root { --a: 1px; }</style>
<link rel="preload stylesheet" href="main.css">
<link rel="icon" href="favicon.ico">
</head><body style="margin: 0">
<a href="/x">x</a><div style="  "></div><p style="color: red">p</p>
</body></html>`
	root, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)
	pageURL, _ := url.Parse("https://example.com/")

	doc := parseDocument(root, pageURL)
	assert.Equal(t, "cdn.example.com", doc.base.Host)
	assert.Equal(t, []string{":root { --a: 1px; }"}, doc.styleTags)
	assert.Equal(t, []string{"main.css"}, doc.stylesheets)
	assert.Equal(t, []string{"margin: 0", "color: red"}, doc.inline)
	assert.Equal(t, []string{"/x"}, doc.anchors)
}

func newSite(t *testing.T, sheetHits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
<style>.a { color: var(--x); }</style>
<link rel="stylesheet" href="/main.css">
<link rel="stylesheet" href="/missing.css">
</head><body><p style="--inline: 1px">hi</p>
<a href="/about">about</a><a href="https://elsewhere.test/">out</a></body></html>`))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><link rel="stylesheet" href="/main.css"></head></html>`))
	})
	mux.HandleFunc("/main.css", func(w http.ResponseWriter, _ *http.Request) {
		sheetHits.Add(1)
		_, _ = w.Write([]byte(":root { --x: red; }"))
	})
	mux.HandleFunc("/missing.css", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcherFetchPage(t *testing.T) {
	var hits atomic.Int32
	srv := newSite(t, &hits)
	f, err := NewHTTPFetcher(HTTPConfig{})
	require.NoError(t, err)

	page, err := f.FetchPage(context.Background(), srv.URL+"/", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, page.Status)
	assert.Equal(t, []string{".a { color: var(--x); }"}, page.CSS.StyleTags)
	assert.Equal(t, []string{"--inline: 1px"}, page.CSS.InlineStyles)
	require.Len(t, page.CSS.Stylesheets, 2)
	assert.Equal(t, srv.URL+"/main.css", page.CSS.Stylesheets[0].Href)
	assert.Equal(t, ":root { --x: red; }", page.CSS.Stylesheets[0].Text)
	assert.Empty(t, page.CSS.Stylesheets[1].Text)
}

func TestHTTPFetcherCachesStylesheets(t *testing.T) {
	var hits atomic.Int32
	srv := newSite(t, &hits)
	f, err := NewHTTPFetcher(HTTPConfig{CacheSize: 4})
	require.NoError(t, err)

	_, err = f.FetchPage(context.Background(), srv.URL+"/", Options{})
	require.NoError(t, err)
	_, err = f.FetchPage(context.Background(), srv.URL+"/about", Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	require.NoError(t, f.Close())
	_, err = f.FetchPage(context.Background(), srv.URL+"/about", Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestHTTPFetcherStatuses(t *testing.T) {
	var hits atomic.Int32
	srv := newSite(t, &hits)
	f, err := NewHTTPFetcher(HTTPConfig{})
	require.NoError(t, err)

	page, err := f.FetchPage(context.Background(), srv.URL+"/nope", Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, page.Status)

	_, err = f.FetchPage(context.Background(), srv.URL+"/broken", Options{})
	assert.Error(t, err)

	_, err = f.FetchPage(context.Background(), "http://127.0.0.1:1/", Options{})
	assert.Error(t, err)
}

func TestHTTPFetcherDiscoverLinks(t *testing.T) {
	var hits atomic.Int32
	srv := newSite(t, &hits)
	f, err := NewHTTPFetcher(HTTPConfig{})
	require.NoError(t, err)

	links, err := f.DiscoverLinks(context.Background(), srv.URL+"/", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/about"}, links)
}

func TestHTTPFetcherDiscoverLinksUsesOptions(t *testing.T) {
	agents := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.UserAgent()
		_, _ = w.Write([]byte(`<a href="/next">next</a>`))
	}))
	t.Cleanup(srv.Close)
	f, err := NewHTTPFetcher(HTTPConfig{})
	require.NoError(t, err)

	links, err := f.DiscoverLinks(context.Background(), srv.URL+"/", Options{UserAgent: "audit-bot/2"})
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/next"}, links)
	assert.Equal(t, "audit-bot/2", <-agents)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)
	_, err = f.DiscoverLinks(context.Background(), slow.URL+"/", Options{Timeout: 50 * time.Millisecond})
	assert.Error(t, err)
}

func TestHTTPFetcherDiscoverLinksKeepsRequestedHost(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<a href="/landing">landing</a>`))
	}))
	t.Cleanup(other.Close)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, other.URL+"/", http.StatusFound)
	}))
	t.Cleanup(origin.Close)
	f, err := NewHTTPFetcher(HTTPConfig{})
	require.NoError(t, err)

	links, err := f.DiscoverLinks(context.Background(), origin.URL+"/", Options{})
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestSameHostLinksAgainstRequestedHost(t *testing.T) {
	base, err := url.Parse("https://cdn.example.net/site/")
	require.NoError(t, err)

	got := sameHostLinks(base, "example.com", []string{
		"page",
		"https://example.com/about",
	})
	assert.Equal(t, []string{"https://example.com/about"}, got)
}

func TestDecodeCollected(t *testing.T) {
	raw, err := decodeCollected(map[string]any{
		"styleTags":    []any{"a{}"},
		"stylesheets":  []any{map[string]any{"href": "https://x/a.css", "text": "b{}"}},
		"cssom":        []any{"c{}"},
		"inlineStyles": []any{"color: red"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a{}"}, raw.StyleTags)
	assert.Equal(t, "https://x/a.css", raw.Stylesheets[0].Href)
	assert.Equal(t, []string{"c{}"}, raw.CSSOM)
	assert.Equal(t, []string{"color: red"}, raw.InlineStyles)
}

func TestBrowserFetcherCloseWithoutLaunch(t *testing.T) {
	f := NewBrowserFetcher(BrowserConfig{Headless: true})
	assert.NoError(t, f.Close())
}
