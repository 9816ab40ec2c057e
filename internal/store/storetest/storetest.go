// Package storetest holds behaviour tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yacobolo/cssaudit/internal/audit"
	"github.com/yacobolo/cssaudit/internal/store"
)

// Run exercises s against the Store contract. newStore must return an
// empty store; it is called once per subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("missing url", func(t *testing.T) { testMissingURL(t, newStore(t)) })
	t.Run("update creates and mutates", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("update error aborts", func(t *testing.T) { testUpdateAbort(t, newStore(t)) })
	t.Run("snapshot retention", func(t *testing.T) { testSnapshotRetention(t, newStore(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("settings", func(t *testing.T) { testSettings(t, newStore(t)) })
	t.Run("history", func(t *testing.T) { testHistory(t, newStore(t)) })
}

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func analysis(url string, i int) audit.PageAnalysis {
	diags := make([]audit.Diagnostic, i%3)
	for j := range diags {
		diags[j] = audit.Diagnostic{ID: fmt.Sprintf("%d-%d", i, j), Kind: audit.KindUnusedVariable, Severity: audit.SeverityLow, Message: "m"}
	}
	score, status := audit.Score(diags)
	return audit.PageAnalysis{URL: url, Timestamp: base.Add(time.Duration(i) * time.Minute), Errors: diags, HealthScore: score, Status: status}
}

func testMissingURL(t *testing.T, s store.Store) {
	_, err := s.GetURL(context.Background(), "https://example.com/nope")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.DeleteURL(context.Background(), "https://example.com/nope"), store.ErrNotFound)
}

func testUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	const u = "https://example.com/docs/intro"

	rec, err := s.UpdateURL(ctx, u, func(rec *store.URLRecord, exists bool) error {
		assert.False(t, exists)
		rec.ApplyAnalysis(analysis(u, 2), "har/1.har")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "example.com", rec.Domain)
	assert.Equal(t, "/docs/intro", rec.Path)
	assert.Equal(t, 1, rec.ScanCount)
	assert.Equal(t, store.StatusSuccess, rec.Status)
	assert.Equal(t, 2, rec.ErrorCount)

	rec, err = s.UpdateURL(ctx, u, func(rec *store.URLRecord, exists bool) error {
		assert.True(t, exists)
		rec.SetExcluded(true)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, rec.Excluded)
	assert.Equal(t, store.StatusExcluded, rec.Status)

	got, err := s.GetURL(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, rec.URL, got.URL)
	assert.True(t, got.Excluded)
	assert.Equal(t, 1, got.ScanCount)
	assert.Equal(t, "har/1.har", got.HARPath)
	require.Len(t, got.Errors, 2)
	assert.Equal(t, audit.KindUnusedVariable, got.Errors[0].Kind)
	require.Len(t, got.AnalysisHistory, 1)
	assert.True(t, base.Add(2*time.Minute).Equal(got.AnalysisHistory[0].Timestamp))

	list, err := s.ListURLs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func testUpdateAbort(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := s.UpdateURL(ctx, "https://example.com/", func(*store.URLRecord, bool) error { return boom })
	require.ErrorIs(t, err, boom)

	_, err = s.GetURL(ctx, "https://example.com/")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testSnapshotRetention(t *testing.T, s store.Store) {
	ctx := context.Background()
	const u = "https://example.com/"
	for i := 0; i < 60; i++ {
		_, err := s.UpdateURL(ctx, u, func(rec *store.URLRecord, _ bool) error {
			rec.ApplyAnalysis(analysis(u, i), "")
			return nil
		})
		require.NoError(t, err)
	}

	rec, err := s.GetURL(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, 60, rec.ScanCount)
	require.Len(t, rec.AnalysisHistory, store.MaxSnapshots)
	for i, snap := range rec.AnalysisHistory {
		want := base.Add(time.Duration(i+10) * time.Minute)
		assert.True(t, want.Equal(snap.Timestamp), "snapshot %d: got %s want %s", i, snap.Timestamp, want)
	}
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, u := range []string{"https://a.test/", "https://a.test/1", "https://a.test/2"} {
		_, err := s.UpdateURL(ctx, u, func(*store.URLRecord, bool) error { return nil })
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteURL(ctx, "https://a.test/"))
	n, err := s.DeleteURLs(ctx, []string{"https://a.test/1", "https://a.test/unknown"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := s.ListURLs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "https://a.test/2", list[0].URL)
}

func testSettings(t *testing.T, s store.Store) {
	ctx := context.Background()

	got, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.DefaultSettings().MaxPages, got.MaxPages)

	seed := store.DefaultSettings()
	seed.BaseURL = "https://seed.test"
	require.NoError(t, s.SeedSettings(ctx, seed))

	baseURL := "https://example.com"
	maxPages := 10
	selector := "#app"
	got, err = s.UpdateSettings(ctx, store.SettingsPatch{
		BaseURL:  &baseURL,
		MaxPages: &maxPages,
		Fetch:    &store.FetchSettingsPatch{WaitForSelector: &selector},
	})
	require.NoError(t, err)
	assert.Equal(t, baseURL, got.BaseURL)
	assert.Equal(t, 10, got.MaxPages)
	assert.Equal(t, "#app", got.Fetch.WaitForSelector)
	assert.Equal(t, 60000, got.Fetch.TimeoutMs)

	other := store.DefaultSettings()
	other.BaseURL = "https://ignored.test"
	require.NoError(t, s.SeedSettings(ctx, other))

	got, err = s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, baseURL, got.BaseURL)

	bad := 0
	_, err = s.UpdateSettings(ctx, store.SettingsPatch{MaxPages: &bad})
	require.ErrorIs(t, err, store.ErrInvalidSettings)

	got, err = s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, got.MaxPages)
}

func testHistory(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := 0; i < store.MaxHistory+5; i++ {
		require.NoError(t, s.AppendHistory(ctx, store.HistoryEntry{
			ID:          fmt.Sprintf("run-%03d", i),
			Timestamp:   base.Add(time.Duration(i) * time.Hour),
			URLsScanned: i,
		}))
	}

	all, err := s.ListHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, store.MaxHistory)
	assert.Equal(t, "run-104", all[0].ID)
	assert.Equal(t, "run-005", all[len(all)-1].ID)

	recent, err := s.ListHistory(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, []string{"run-104", "run-103", "run-102"}, []string{recent[0].ID, recent[1].ID, recent[2].ID})
}
