package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yacobolo/cssaudit/internal/audit"
	"github.com/yacobolo/cssaudit/internal/events"
	"github.com/yacobolo/cssaudit/internal/fetch"
	"github.com/yacobolo/cssaudit/internal/metrics"
	"github.com/yacobolo/cssaudit/internal/scan"
	"github.com/yacobolo/cssaudit/internal/store"
)

// stubFetcher serves the same CSS for every page. With a gate it blocks
// each fetch until the gate closes.
type stubFetcher struct {
	css     string
	gate    chan struct{}
	started chan struct{}
}

func (f *stubFetcher) FetchPage(_ context.Context, url string, _ fetch.Options) (*fetch.Page, error) {
	if f.gate != nil {
		f.started <- struct{}{}
		<-f.gate
	}
	return &fetch.Page{URL: url, Status: fetch.StatusSuccess, CSS: audit.RawPageCSS{StyleTags: []string{f.css}}}, nil
}

func (f *stubFetcher) DiscoverLinks(context.Context, string, fetch.Options) ([]string, error) {
	return nil, nil
}

func (f *stubFetcher) Close() error { return nil }

type fixture struct {
	srv     *httptest.Server
	coord   *scan.Coordinator
	store   *store.Memory
	fetcher *stubFetcher
}

func newFixture(t *testing.T, rl RateLimit) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{store: store.NewMemory(), fetcher: &stubFetcher{css: ":root { --unused: 1px; }"}}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hub := events.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	f.coord = scan.New(scan.Config{
		Store:   f.store,
		Fetcher: f.fetcher,
		Events:  events.Multi{hub, m},
		Logger:  logger,
	})
	s := New(Config{
		Coordinator: f.coord,
		Hub:         hub,
		Metrics:     m,
		Gatherer:    reg,
		RateLimit:   rl,
		Logger:      logger,
	})
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		f.srv.Close()
		f.coord.Close()
		cancel()
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestHealthAndDashboard(t *testing.T) {
	f := newFixture(t, RateLimit{})

	resp, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	resp, body = f.do(t, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<title>cssaudit</title>")

	resp, _ = f.do(t, http.MethodGet, "/static/app.js", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartScanValidation(t *testing.T) {
	f := newFixture(t, RateLimit{RPS: 100, Burst: 100})

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"site scan without base url", "/api/scan", "", http.StatusBadRequest},
		{"empty url list", "/api/scan/urls", `{"urls":[]}`, http.StatusBadRequest},
		{"malformed body", "/api/scan/urls", `{"urls":`, http.StatusBadRequest},
		{"unknown field", "/api/scan/urls", `{"pages":["https://example.com/"]}`, http.StatusBadRequest},
		{"relative url", "/api/scan/urls", `{"urls":["/about"]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestStartScanURLsReportsDistinctCount(t *testing.T) {
	f := newFixture(t, RateLimit{})

	resp, body := f.do(t, http.MethodPost, "/api/scan/urls",
		`{"urls":["https://example.com/a","https://EXAMPLE.com/a#top"," https://example.com/a ","https://example.com/b"]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	f.coord.Wait()

	var got struct {
		Status string `json:"status"`
		URLs   int    `json:"urls"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, "started", got.Status)
	assert.Equal(t, 2, got.URLs)
}

func TestScanConflict(t *testing.T) {
	f := newFixture(t, RateLimit{RPS: 100, Burst: 100})
	f.fetcher.gate = make(chan struct{})
	f.fetcher.started = make(chan struct{}, 1)

	resp, _ := f.do(t, http.MethodPost, "/api/scan/urls", `{"urls":["https://example.com/a"]}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	<-f.fetcher.started

	resp, _ = f.do(t, http.MethodPost, "/api/scan/urls", `{"urls":["https://example.com/b"]}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/scan/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"isScanning": true`)

	close(f.fetcher.gate)
	f.coord.Wait()

	_, body = f.do(t, http.MethodGet, "/api/scan/status", "")
	assert.Contains(t, body, `"isScanning": false`)
}

func TestScanResults(t *testing.T) {
	f := newFixture(t, RateLimit{RPS: 100, Burst: 100})
	urls := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}
	require.NoError(t, f.coord.ScanURLs(context.Background(), urls))

	resp, body := f.do(t, http.MethodGet,
		"/api/scan/results?url=https://example.com/a&urls=https://example.com/b,https://example.com/c,https://example.com/zzz&offset=1&limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page scan.ResultPage
	require.NoError(t, json.Unmarshal([]byte(body), &page))
	require.Len(t, page.Results, 1)
	assert.Equal(t, "https://example.com/b", page.Results[0].URL)
	assert.Equal(t, scan.Aggregate{TotalURLs: 3, TotalErrors: 3, AverageHealthScore: 98}, page.Aggregate)

	resp, _ = f.do(t, http.MethodGet, "/api/scan/results", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/scan/results?url=https://example.com/a&limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConfigRoundTrip(t *testing.T) {
	f := newFixture(t, RateLimit{})

	resp, _ := f.do(t, http.MethodPut, "/api/config", `{"maxPages":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/api/config", `{"baseUrl":"https://example.com","maxPages":10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var settings store.Settings
	require.NoError(t, json.Unmarshal([]byte(body), &settings))
	assert.Equal(t, "https://example.com", settings.BaseURL)
	assert.Equal(t, 10, settings.MaxPages)
	assert.Equal(t, 60, settings.MonitoringIntervalMinutes)
}

func TestURLManagement(t *testing.T) {
	f := newFixture(t, RateLimit{})
	require.NoError(t, f.coord.ScanURLs(context.Background(), []string{"https://example.com/a", "https://example.com/b"}))

	resp, _ := f.do(t, http.MethodPost, "/api/urls/exclude", `{"excluded":true}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/urls/exclude", `{"url":"https://example.com/a","excluded":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"status": "excluded"`)

	resp, body = f.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats scan.Stats
	require.NoError(t, json.Unmarshal([]byte(body), &stats))
	assert.Equal(t, 2, stats.TotalURLs)
	assert.Equal(t, 1, stats.Excluded)

	resp, _ = f.do(t, http.MethodDelete, "/api/urls?url=https://example.com/zzz", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodDelete, "/api/urls", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/urls/delete", `{"urls":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/api/urls/delete", `{"urls":["https://example.com/a","https://example.com/b"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"deleted":2}`, body)

	_, body = f.do(t, http.MethodGet, "/api/urls", "")
	assert.JSONEq(t, `[]`, body)
}

func TestHistory(t *testing.T) {
	f := newFixture(t, RateLimit{})
	for range 3 {
		require.NoError(t, f.coord.ScanURLs(context.Background(), []string{"https://example.com/"}))
	}

	resp, body := f.do(t, http.MethodGet, "/api/history?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []store.HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(body), &entries))
	assert.Len(t, entries, 2)

	resp, _ = f.do(t, http.MethodGet, "/api/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMonitoringEndpoints(t *testing.T) {
	f := newFixture(t, RateLimit{})

	resp, _ := f.do(t, http.MethodPost, "/api/monitoring/start", `{"intervalMinutes":-5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/monitoring/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"monitoring":true,"intervalMinutes":60}`, body)

	resp, _ = f.do(t, http.MethodPost, "/api/monitoring/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	active, _ := f.coord.Monitoring()
	assert.False(t, active)
}

func TestRateLimitOnScanStart(t *testing.T) {
	f := newFixture(t, RateLimit{RPS: 0.001, Burst: 1})

	resp, _ := f.do(t, http.MethodPost, "/api/scan", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/scan", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "cssaudit_ratelimit_dropped_total 1")
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientIP(r))
}
