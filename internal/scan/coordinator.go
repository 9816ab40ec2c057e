// Package scan runs site audits: it discovers pages, fetches and analyzes
// them one at a time, persists the results and reports progress as events.
// At most one scan runs at a time per Coordinator.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/yacobolo/cssaudit/internal/audit"
	"github.com/yacobolo/cssaudit/internal/events"
	"github.com/yacobolo/cssaudit/internal/fetch"
	"github.com/yacobolo/cssaudit/internal/store"
)

// Scan kinds
const (
	KindFull     = "full"
	KindTargeted = "targeted"
)

// PageFetcher loads pages for the coordinator. Close releases whatever the
// fetcher acquired; it is called after every scan run.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string, opts fetch.Options) (*fetch.Page, error)
	DiscoverLinks(ctx context.Context, url string, opts fetch.Options) ([]string, error)
	Close() error
}

// Config wires a Coordinator.
type Config struct {
	Store    store.Store
	Fetcher  PageFetcher
	Analyzer *audit.Analyzer
	Events   events.Emitter
	// Ignore holds gitignore-style URL path rules applied on top of the
	// exclude patterns in settings.
	Ignore *ignore.GitIgnore
	Logger *slog.Logger
	// MonitorUnit is the length of one monitoring interval step. Defaults to
	// a minute.
	MonitorUnit time.Duration
	Now         func() time.Time
}

// Coordinator owns the single-flight scan gate and the monitoring loop.
// Everything durable lives in the Store.
type Coordinator struct {
	store    store.Store
	fetcher  PageFetcher
	analyzer *audit.Analyzer
	events   events.Emitter
	ignore   *ignore.GitIgnore
	logger   *slog.Logger
	unit     time.Duration
	now      func() time.Time

	scanning atomic.Bool
	wg       sync.WaitGroup

	monMu sync.Mutex
	mon   *monitor
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		store:    cfg.Store,
		fetcher:  cfg.Fetcher,
		analyzer: cfg.Analyzer,
		events:   cfg.Events,
		ignore:   cfg.Ignore,
		logger:   cfg.Logger,
		unit:     cfg.MonitorUnit,
		now:      cfg.Now,
	}
	if c.analyzer == nil {
		c.analyzer = audit.NewAnalyzer()
	}
	if c.events == nil {
		c.events = events.Discard
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.unit <= 0 {
		c.unit = time.Minute
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// IsScanning reports whether a scan is in flight.
func (c *Coordinator) IsScanning() bool {
	return c.scanning.Load()
}

// Scan discovers and scans the whole site. When a scan is already running
// the call does nothing and returns nil.
func (c *Coordinator) Scan(ctx context.Context) error {
	if !c.scanning.CompareAndSwap(false, true) {
		c.logger.Info("scan already in progress, skipping")
		return nil
	}
	return c.run(ctx, KindFull, nil)
}

// ScanURLs scans exactly the given URLs without discovery. It fails with
// ErrScanInProgress when a scan is already running.
func (c *Coordinator) ScanURLs(ctx context.Context, urls []string) error {
	list, err := normalizeURLs(urls)
	if err != nil {
		return err
	}
	if !c.scanning.CompareAndSwap(false, true) {
		return ErrScanInProgress
	}
	return c.run(ctx, KindTargeted, list)
}

// StartScan begins a whole-site scan in the background. Configuration and
// the scan gate are checked before returning, so callers learn about
// ErrConfigurationMissing and ErrScanInProgress synchronously.
func (c *Coordinator) StartScan(ctx context.Context) error {
	settings, err := c.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if settings.BaseURL == "" {
		return ErrConfigurationMissing
	}
	if !c.scanning.CompareAndSwap(false, true) {
		return ErrScanInProgress
	}
	c.background(ctx, KindFull, nil)
	return nil
}

// StartScanURLs begins an explicit scan in the background and returns the
// number of distinct URLs it will scan.
func (c *Coordinator) StartScanURLs(ctx context.Context, urls []string) (int, error) {
	list, err := normalizeURLs(urls)
	if err != nil {
		return 0, err
	}
	if !c.scanning.CompareAndSwap(false, true) {
		return 0, ErrScanInProgress
	}
	c.background(ctx, KindTargeted, list)
	return len(list), nil
}

func (c *Coordinator) background(ctx context.Context, kind string, urls []string) {
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.run(ctx, kind, urls); err != nil {
			c.logger.Error("scan failed", "kind", kind, "error", err)
		}
	}()
}

// Wait blocks until background scans and the monitoring loop have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close stops monitoring and waits for running work. Settings keep the
// monitoring flag so a restart resumes it.
func (c *Coordinator) Close() {
	c.monMu.Lock()
	if c.mon != nil {
		c.mon.cancel()
		c.mon = nil
	}
	c.monMu.Unlock()
	c.Wait()
}

// summary accumulates the outcome of one run.
type summary struct {
	store.HistorySummary
	scanned     int
	totalErrors int
	healthSum   int
	analyzed    int
}

// run executes one scan. The caller must hold the scan gate; run releases
// it and the fetcher's resources on every exit path.
func (c *Coordinator) run(ctx context.Context, kind string, urls []string) (err error) {
	started := c.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panicked: %v", r)
			c.emit(events.ScanFailed, events.ScanFailedData{Message: err.Error()})
		}
		if cerr := c.fetcher.Close(); cerr != nil {
			c.logger.Warn("releasing fetcher", "error", cerr)
		}
		c.scanning.Store(false)
	}()

	c.emit(events.ScanStarted, events.ScanStartedData{Kind: kind, URLs: urls})
	c.logger.Info("scan started", "kind", kind)

	settings, err := c.store.GetSettings(ctx)
	if err != nil {
		return c.fail(fmt.Errorf("loading settings: %w", err))
	}
	excl := newExclusions(settings.ExcludePatterns, c.ignore)
	opts := fetchOptions(settings.Fetch)

	if kind == KindFull {
		if settings.BaseURL == "" {
			return c.fail(ErrConfigurationMissing)
		}
		urls, err = c.discover(ctx, settings.BaseURL, settings.MaxPages, excl, opts)
		if err != nil {
			return c.fail(fmt.Errorf("discovering pages: %w", err))
		}
	}

	sum := summary{HistorySummary: store.HistorySummary{
		Kind:             kind,
		ErrorsBySeverity: map[audit.Severity]int{},
	}}

	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			return c.fail(err)
		}
		skip, err := c.isExcluded(ctx, u, excl)
		if err != nil {
			return c.fail(err)
		}
		if skip {
			sum.Skipped++
			c.logger.Debug("skipping excluded url", "url", u)
			continue
		}

		c.emit(events.ScanProgress, events.ProgressData{Current: i + 1, Total: len(urls), CurrentURL: u})
		if err := c.scanOne(ctx, u, opts, &sum); err != nil {
			return c.fail(err)
		}
	}

	duration := c.now().Sub(started)
	if sum.analyzed > 0 {
		sum.AverageHealthScore = roundTenth(float64(sum.healthSum) / float64(sum.analyzed))
	}
	entry := store.HistoryEntry{
		ID:          uuid.NewString(),
		Timestamp:   started,
		URLsScanned: sum.scanned,
		TotalErrors: sum.totalErrors,
		DurationMs:  duration.Milliseconds(),
		Summary:     sum.HistorySummary,
	}
	if err := c.store.AppendHistory(ctx, entry); err != nil {
		return c.fail(fmt.Errorf("saving scan history: %w", err))
	}
	finished := c.now()
	if _, err := c.store.UpdateSettings(ctx, store.SettingsPatch{LastScan: &finished}); err != nil {
		return c.fail(fmt.Errorf("saving last scan time: %w", err))
	}

	c.emit(events.ScanCompleted, events.ScanCompletedData{
		URLsScanned: entry.URLsScanned,
		TotalErrors: entry.TotalErrors,
		DurationMs:  entry.DurationMs,
	})
	c.logger.Info("scan completed",
		"kind", kind,
		"urls", entry.URLsScanned,
		"errors", entry.TotalErrors,
		"duration_ms", entry.DurationMs,
	)
	return nil
}

// scanOne fetches, analyzes and stores a single URL. Fetch problems are
// recorded on the URL; only store failures are returned.
func (c *Coordinator) scanOne(ctx context.Context, u string, opts fetch.Options, sum *summary) error {
	page, err := c.fetcher.FetchPage(ctx, u, opts)
	if err != nil {
		c.logger.Warn("fetch failed", "url", u, "error", err)
		sum.scanned++
		sum.Failed++
		return c.recordFailure(ctx, u, store.StatusError, err.Error())
	}
	if page.Status == fetch.StatusNotFound {
		c.logger.Info("page not found", "url", u)
		sum.scanned++
		sum.NotFound++
		return c.recordFailure(ctx, u, store.StatusNotFound, "page not found")
	}

	analysis := c.analyzer.Analyze(u, audit.Extract(page.CSS))
	if _, err := c.store.UpdateURL(ctx, u, func(rec *store.URLRecord, _ bool) error {
		rec.ApplyAnalysis(analysis, page.HARPath)
		return nil
	}); err != nil {
		return fmt.Errorf("saving %s: %w", u, err)
	}

	sum.scanned++
	sum.analyzed++
	sum.totalErrors += len(analysis.Errors)
	sum.healthSum += analysis.HealthScore
	for sev, n := range audit.CountBySeverity(analysis.Errors) {
		sum.ErrorsBySeverity[sev] += n
	}
	switch analysis.Status {
	case audit.HealthHealthy:
		sum.Healthy++
	case audit.HealthWarning:
		sum.Warning++
	default:
		sum.Critical++
	}

	c.emit(events.PageAnalyzed, events.PageAnalyzedData{
		URL:         u,
		ErrorCount:  len(analysis.Errors),
		HealthScore: analysis.HealthScore,
		Status:      analysis.Status,
	})
	return nil
}

func (c *Coordinator) recordFailure(ctx context.Context, u string, status store.URLStatus, msg string) error {
	at := c.now()
	if _, err := c.store.UpdateURL(ctx, u, func(rec *store.URLRecord, _ bool) error {
		rec.MarkFailed(status, at)
		return nil
	}); err != nil {
		return fmt.Errorf("saving %s: %w", u, err)
	}
	c.emit(events.PageFailed, events.PageFailedData{URL: u, Status: string(status), Message: msg})
	return nil
}

func (c *Coordinator) isExcluded(ctx context.Context, u string, excl exclusions) (bool, error) {
	if excl.Match(u) {
		return true, nil
	}
	rec, err := c.store.GetURL(ctx, u)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading %s: %w", u, err)
	}
	return rec.Excluded, nil
}

func (c *Coordinator) fail(err error) error {
	c.emit(events.ScanFailed, events.ScanFailedData{Message: err.Error()})
	c.logger.Error("scan aborted", "error", err)
	return err
}

func (c *Coordinator) emit(t events.Type, data any) {
	c.events.Emit(events.New(t, data))
}

func fetchOptions(s store.FetchSettings) fetch.Options {
	return fetch.Options{
		Timeout:         time.Duration(s.TimeoutMs) * time.Millisecond,
		ViewportWidth:   s.ViewportWidth,
		ViewportHeight:  s.ViewportHeight,
		UserAgent:       s.UserAgent,
		WaitForSelector: s.WaitForSelector,
	}
}

// normalizeURLs canonicalizes and de-duplicates urls, keeping order.
func normalizeURLs(urls []string) ([]string, error) {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := fetch.Normalize(raw)
		if err != nil {
			return nil, err
		}
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoURLs
	}
	return out, nil
}
