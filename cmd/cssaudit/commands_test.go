package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yacobolo/cssaudit/internal/store"
)

func testSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><head><style>:root{--a:1px}.x{margin:var(--missing)}</style></head>
<body><a href="/about">About</a></body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><head><style>.y{color:red}</style></head><body></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunScan_CrawlsAndFailsUnderThreshold(t *testing.T) {
	resetKoanf()
	srv := testSite(t)
	require.NoError(t, k.Set("scan.base-url", srv.URL))
	require.NoError(t, k.Set("fail-under", 95.0))

	var out bytes.Buffer
	err := runScan(t.Context(), nil, &out, quietLogger())

	// (88 + 100) / 2 = 94
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.code)
	assert.Contains(t, out.String(), "Undefined CSS variable --missing")
	assert.Contains(t, out.String(), "on 2 pages")
}

func TestRunScan_TargetedJSON(t *testing.T) {
	resetKoanf()
	srv := testSite(t)
	require.NoError(t, k.Set("output-format", "json"))

	var out bytes.Buffer
	require.NoError(t, runScan(t.Context(), []string{srv.URL + "/about"}, &out, quietLogger()))

	var records []store.URLRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, srv.URL+"/about", records[0].URL)
	assert.Equal(t, store.StatusSuccess, records[0].Status)
	assert.Equal(t, 100, records[0].HealthScore)
}

func TestRunScan_MissingBaseURL(t *testing.T) {
	resetKoanf()
	err := runScan(t.Context(), nil, io.Discard, quietLogger())
	require.Error(t, err)
}

func TestRunScan_UnknownStore(t *testing.T) {
	resetKoanf()
	require.NoError(t, k.Set("store.driver", "redis"))
	err := runScan(t.Context(), []string{"https://example.com"}, io.Discard, quietLogger())
	require.ErrorContains(t, err, "unknown store driver")
}

func TestRunAnalyze(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tokens.css"), []byte(":root{--brand:red}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.css"), []byte(".btn{color:var(--brand)}"), 0o644))
	pattern := filepath.Join(dir, "*.css")

	t.Run("json", func(t *testing.T) {
		resetKoanf()
		require.NoError(t, k.Set("output-format", "json"))

		var out bytes.Buffer
		require.NoError(t, runAnalyze([]string{pattern}, &out))

		var report struct {
			Summary struct {
				HealthScore int `json:"health_score"`
				TotalIssues int `json:"total_issues"`
			} `json:"summary"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &report))
		assert.Equal(t, 100, report.Summary.HealthScore)
		assert.Equal(t, 0, report.Summary.TotalIssues)
	})

	t.Run("fail under", func(t *testing.T) {
		resetKoanf()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.css"), []byte(".x{"), 0o644))
		require.NoError(t, k.Set("fail-under", 90.0))
		require.NoError(t, k.Set("quiet", true))

		var out bytes.Buffer
		err := runAnalyze([]string{pattern}, &out)
		var ee *exitError
		require.ErrorAs(t, err, &ee)
		assert.Empty(t, out.String())
	})

	t.Run("no files", func(t *testing.T) {
		resetKoanf()
		err := runAnalyze([]string{filepath.Join(t.TempDir(), "*.css")}, io.Discard)
		require.Error(t, err)
	})
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "cssaudit dev\n", out.String())
}
