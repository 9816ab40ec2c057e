package scan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/yacobolo/cssaudit/internal/audit"
	"github.com/yacobolo/cssaudit/internal/events"
	"github.com/yacobolo/cssaudit/internal/fetch"
	"github.com/yacobolo/cssaudit/internal/store"
)

// Status is the scan state exposed for polling.
type Status struct {
	IsScanning                bool      `json:"isScanning"`
	Monitoring                bool      `json:"monitoring"`
	MonitoringIntervalMinutes int       `json:"monitoringIntervalMinutes,omitempty"`
	LastScan                  time.Time `json:"lastScan,omitzero"`
}

// Status returns the current scan state.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	settings, err := c.store.GetSettings(ctx)
	if err != nil {
		return Status{}, err
	}
	monitoring, interval := c.Monitoring()
	return Status{
		IsScanning:                c.IsScanning(),
		Monitoring:                monitoring,
		MonitoringIntervalMinutes: interval,
		LastScan:                  settings.LastScan,
	}, nil
}

// Stats summarizes every stored URL.
type Stats struct {
	TotalURLs          int       `json:"totalUrls"`
	Pending            int       `json:"pending"`
	Success            int       `json:"success"`
	Errored            int       `json:"error"`
	NotFound           int       `json:"notFound"`
	Excluded           int       `json:"excluded"`
	Healthy            int       `json:"healthy"`
	Warning            int       `json:"warning"`
	Critical           int       `json:"critical"`
	TotalErrors        int       `json:"totalErrors"`
	AverageHealthScore float64   `json:"averageHealthScore"`
	IsScanning         bool      `json:"isScanning"`
	Monitoring         bool      `json:"monitoring"`
	LastScan           time.Time `json:"lastScan,omitzero"`
}

// Stats counts URLs by status and health. The average health score covers
// analyzed URLs that are not excluded.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	records, err := c.store.ListURLs(ctx)
	if err != nil {
		return Stats{}, err
	}
	status, err := c.Status(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		TotalURLs:  len(records),
		IsScanning: status.IsScanning,
		Monitoring: status.Monitoring,
		LastScan:   status.LastScan,
	}
	healthSum, scored := 0, 0
	for _, rec := range records {
		if rec.Excluded {
			st.Excluded++
			continue
		}
		st.TotalErrors += rec.ErrorCount
		switch rec.Status {
		case store.StatusPending:
			st.Pending++
		case store.StatusError:
			st.Errored++
		case store.StatusNotFound:
			st.NotFound++
		case store.StatusSuccess:
			st.Success++
			healthSum += rec.HealthScore
			scored++
			switch audit.StatusFor(rec.HealthScore) {
			case audit.HealthHealthy:
				st.Healthy++
			case audit.HealthWarning:
				st.Warning++
			default:
				st.Critical++
			}
		}
	}
	if scored > 0 {
		st.AverageHealthScore = roundTenth(float64(healthSum) / float64(scored))
	}
	return st, nil
}

// Aggregate totals a filtered result set.
type Aggregate struct {
	TotalURLs          int     `json:"totalUrls"`
	TotalErrors        int     `json:"totalErrors"`
	AverageHealthScore float64 `json:"averageHealthScore"`
}

// ResultPage is one page of results plus the aggregate over all of them.
type ResultPage struct {
	Results   []store.URLRecord `json:"results"`
	Offset    int               `json:"offset"`
	Limit     int               `json:"limit"`
	Aggregate Aggregate         `json:"aggregate"`
}

// Results returns the stored records for urls in request order, skipping
// URLs that were never scanned. The aggregate covers the whole filtered
// set, not just the returned page. limit <= 0 returns everything from
// offset.
func (c *Coordinator) Results(ctx context.Context, urls []string, offset, limit int) (ResultPage, error) {
	if offset < 0 {
		offset = 0
	}
	seen := make(map[string]bool, len(urls))
	var found []store.URLRecord
	for _, raw := range urls {
		u, err := fetch.Normalize(raw)
		if err != nil || seen[u] {
			continue
		}
		seen[u] = true
		rec, err := c.store.GetURL(ctx, u)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return ResultPage{}, err
		}
		found = append(found, rec)
	}

	agg := Aggregate{TotalURLs: len(found)}
	healthSum := 0
	for _, rec := range found {
		agg.TotalErrors += rec.ErrorCount
		healthSum += rec.HealthScore
	}
	if len(found) > 0 {
		agg.AverageHealthScore = roundTenth(float64(healthSum) / float64(len(found)))
	}

	start := min(offset, len(found))
	end := len(found)
	if limit > 0 {
		end = min(start+limit, len(found))
	}
	page := append([]store.URLRecord{}, found[start:end]...)
	return ResultPage{Results: page, Offset: offset, Limit: limit, Aggregate: agg}, nil
}

// ListURLs returns every stored record.
func (c *Coordinator) ListURLs(ctx context.Context) ([]store.URLRecord, error) {
	return c.store.ListURLs(ctx)
}

// SetURLExcluded marks a URL as excluded from scans, or includes it again.
// Unknown URLs get a record so the exclusion holds before their first scan.
func (c *Coordinator) SetURLExcluded(ctx context.Context, rawURL string, excluded bool) (store.URLRecord, error) {
	u, err := fetch.Normalize(rawURL)
	if err != nil {
		return store.URLRecord{}, err
	}
	rec, err := c.store.UpdateURL(ctx, u, func(rec *store.URLRecord, _ bool) error {
		rec.SetExcluded(excluded)
		return nil
	})
	if err != nil {
		return store.URLRecord{}, fmt.Errorf("updating %s: %w", u, err)
	}
	c.emit(events.URLExcluded, events.URLExcludedData{URL: u, Excluded: excluded})
	return rec, nil
}

// DeleteURL removes one record. Unknown URLs yield store.ErrNotFound.
func (c *Coordinator) DeleteURL(ctx context.Context, rawURL string) error {
	u, err := fetch.Normalize(rawURL)
	if err != nil {
		return err
	}
	if err := c.store.DeleteURL(ctx, u); err != nil {
		return err
	}
	c.emit(events.URLsDeleted, events.URLsDeletedData{URLs: []string{u}})
	return nil
}

// DeleteURLs removes the listed records and reports how many existed.
func (c *Coordinator) DeleteURLs(ctx context.Context, urls []string) (int, error) {
	list, err := normalizeURLs(urls)
	if err != nil {
		return 0, err
	}
	n, err := c.store.DeleteURLs(ctx, list)
	if err != nil {
		return 0, err
	}
	c.emit(events.URLsDeleted, events.URLsDeletedData{URLs: list})
	return n, nil
}

// History returns up to limit past runs, newest first.
func (c *Coordinator) History(ctx context.Context, limit int) ([]store.HistoryEntry, error) {
	return c.store.ListHistory(ctx, limit)
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// Settings returns the stored scan settings.
func (c *Coordinator) Settings(ctx context.Context) (store.Settings, error) {
	return c.store.GetSettings(ctx)
}

// UpdateSettings merges patch into the stored settings. Turning the
// monitoring flag on or off starts or stops monitoring to match.
func (c *Coordinator) UpdateSettings(ctx context.Context, patch store.SettingsPatch) (store.Settings, error) {
	updated, err := c.store.UpdateSettings(ctx, patch)
	if err != nil {
		return store.Settings{}, err
	}
	if patch.MonitoringEnabled == nil {
		return updated, nil
	}
	if *patch.MonitoringEnabled {
		err = c.StartMonitoring(ctx, updated.MonitoringIntervalMinutes)
	} else {
		err = c.StopMonitoring(ctx)
	}
	if err != nil {
		return store.Settings{}, err
	}
	return c.store.GetSettings(ctx)
}
