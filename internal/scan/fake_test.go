package scan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yacobolo/cssaudit/internal/audit"
	"github.com/yacobolo/cssaudit/internal/events"
	"github.com/yacobolo/cssaudit/internal/fetch"
	"github.com/yacobolo/cssaudit/internal/store"
)

// fakePage scripts the fetcher's answer for one URL.
type fakePage struct {
	css      string
	notFound bool
	err      error
	panics   bool
}

type fakeFetcher struct {
	mu         sync.Mutex
	pages      map[string]fakePage
	links      map[string][]string
	fetched    []string
	discovered []string
	discoverOp []fetch.Options
	closes     int

	// When gate is set, FetchPage announces itself on started and waits.
	gate    chan struct{}
	started chan string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]fakePage{}, links: map[string][]string{}}
}

func (f *fakeFetcher) FetchPage(ctx context.Context, url string, _ fetch.Options) (*fetch.Page, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	p := f.pages[url]
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if gate != nil {
		started <- url
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	switch {
	case p.panics:
		panic("fetcher exploded")
	case p.err != nil:
		return nil, p.err
	case p.notFound:
		return &fetch.Page{URL: url, Status: fetch.StatusNotFound}, nil
	}
	return &fetch.Page{
		URL:    url,
		Status: fetch.StatusSuccess,
		CSS:    audit.RawPageCSS{StyleTags: []string{p.css}},
	}, nil
}

func (f *fakeFetcher) DiscoverLinks(_ context.Context, url string, opts fetch.Options) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discovered = append(f.discovered, url)
	f.discoverOp = append(f.discoverOp, opts)
	return f.links[url], nil
}

func (f *fakeFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeFetcher) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func (f *fakeFetcher) Discovered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.discovered...)
}

func (f *fakeFetcher) DiscoverOptions() []fetch.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetch.Options(nil), f.discoverOp...)
}

func (f *fakeFetcher) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// failingStore fails every UpdateURL.
type failingStore struct {
	store.Store
}

func (failingStore) UpdateURL(context.Context, string, store.UpdateFunc) (store.URLRecord, error) {
	return store.URLRecord{}, errors.New("disk full")
}

type harness struct {
	coord   *Coordinator
	store   *store.Memory
	fetcher *fakeFetcher
	events  *events.Recorder
}

func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		store:   store.NewMemory(),
		fetcher: newFakeFetcher(),
		events:  &events.Recorder{},
	}
	cfg := Config{
		Store:    h.store,
		Fetcher:  h.fetcher,
		Analyzer: audit.NewAnalyzer(),
		Events:   h.events,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(&cfg)
	}
	h.coord = New(cfg)
	t.Cleanup(h.coord.Close)
	return h
}

func (h *harness) setBaseURL(t *testing.T, base string, maxPages int) {
	t.Helper()
	_, err := h.store.UpdateSettings(context.Background(), store.SettingsPatch{
		BaseURL:  &base,
		MaxPages: &maxPages,
	})
	require.NoError(t, err)
}

// seed stores an analyzed record with the given score and error count.
func (h *harness) seed(t *testing.T, url string, score, errs int) {
	t.Helper()
	diags := make([]audit.Diagnostic, errs)
	for i := range diags {
		diags[i] = audit.Diagnostic{Kind: audit.KindUnusedVariable, Severity: audit.SeverityLow}
	}
	_, err := h.store.UpdateURL(context.Background(), url, func(rec *store.URLRecord, _ bool) error {
		rec.ApplyAnalysis(audit.PageAnalysis{
			URL:         url,
			Timestamp:   time.Now(),
			Errors:      diags,
			HealthScore: score,
			Status:      audit.StatusFor(score),
		}, "")
		return nil
	})
	require.NoError(t, err)
}
