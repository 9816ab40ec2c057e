package store

import (
	"net/url"
	"time"

	"github.com/yacobolo/cssaudit/internal/audit"
)

// Retention limits.
const (
	MaxSnapshots = 50
	MaxHistory   = 100
)

// URLStatus is the outcome of the most recent scan of a URL.
type URLStatus string

// URL statuses
const (
	StatusPending  URLStatus = "pending"
	StatusSuccess  URLStatus = "success"
	StatusError    URLStatus = "error"
	StatusNotFound URLStatus = "not_found"
	StatusExcluded URLStatus = "excluded"
)

// Snapshot is a compact record of one analysis of a URL.
type Snapshot struct {
	Timestamp   time.Time              `json:"timestamp"`
	HealthScore int                    `json:"healthScore"`
	Status      audit.Health           `json:"status"`
	ErrorCount  int                    `json:"errorCount"`
	BySeverity  map[audit.Severity]int `json:"bySeverity,omitempty"`
}

// URLRecord is everything known about one scanned URL.
type URLRecord struct {
	URL             string             `json:"url"`
	Domain          string             `json:"domain"`
	Path            string             `json:"path"`
	FirstSeen       time.Time          `json:"firstSeen"`
	LastScanned     time.Time          `json:"lastScanned,omitzero"`
	ScanCount       int                `json:"scanCount"`
	Status          URLStatus          `json:"status"`
	Excluded        bool               `json:"excluded"`
	Errors          []audit.Diagnostic `json:"errors"`
	ErrorCount      int                `json:"errorCount"`
	HealthScore     int                `json:"healthScore"`
	AnalysisHistory []Snapshot         `json:"analysisHistory"`
	HARPath         string             `json:"harPath,omitempty"`
}

// NewURLRecord creates a pending record for rawURL.
func NewURLRecord(rawURL string, now time.Time) URLRecord {
	rec := URLRecord{
		URL:             rawURL,
		FirstSeen:       now,
		Status:          StatusPending,
		Errors:          []audit.Diagnostic{},
		AnalysisHistory: []Snapshot{},
	}
	if u, err := url.Parse(rawURL); err == nil {
		rec.Domain = u.Hostname()
		rec.Path = u.EscapedPath()
		if rec.Path == "" {
			rec.Path = "/"
		}
	}
	return rec
}

// ApplyAnalysis stores the latest analysis on the record and appends a
// snapshot, evicting the oldest ones past MaxSnapshots. An excluded record
// keeps its excluded status.
func (r *URLRecord) ApplyAnalysis(page audit.PageAnalysis, harPath string) {
	r.LastScanned = page.Timestamp
	r.ScanCount++
	r.Errors = append([]audit.Diagnostic{}, page.Errors...)
	r.ErrorCount = len(page.Errors)
	r.HealthScore = page.HealthScore
	r.HARPath = harPath
	if !r.Excluded {
		r.Status = StatusSuccess
	}
	r.AppendSnapshot(Snapshot{
		Timestamp:   page.Timestamp,
		HealthScore: page.HealthScore,
		Status:      page.Status,
		ErrorCount:  len(page.Errors),
		BySeverity:  audit.CountBySeverity(page.Errors),
	})
}

// MarkFailed records a scan that produced no analysis. Diagnostics from the
// previous analysis are cleared so the failure contributes zero errors.
func (r *URLRecord) MarkFailed(status URLStatus, at time.Time) {
	r.LastScanned = at
	r.ScanCount++
	r.Errors = []audit.Diagnostic{}
	r.ErrorCount = 0
	if !r.Excluded {
		r.Status = status
	}
}

// SetExcluded flips the exclusion flag. A re-included URL is pending until
// its next scan.
func (r *URLRecord) SetExcluded(excluded bool) {
	r.Excluded = excluded
	if excluded {
		r.Status = StatusExcluded
	} else if r.Status == StatusExcluded {
		r.Status = StatusPending
	}
}

// AppendSnapshot adds s and keeps only the newest MaxSnapshots entries.
func (r *URLRecord) AppendSnapshot(s Snapshot) {
	r.AnalysisHistory = append(r.AnalysisHistory, s)
	if over := len(r.AnalysisHistory) - MaxSnapshots; over > 0 {
		r.AnalysisHistory = append([]Snapshot(nil), r.AnalysisHistory[over:]...)
	}
}

// Clone returns a deep copy of the record.
func (r URLRecord) Clone() URLRecord {
	c := r
	c.Errors = append([]audit.Diagnostic{}, r.Errors...)
	c.AnalysisHistory = make([]Snapshot, len(r.AnalysisHistory))
	for i, s := range r.AnalysisHistory {
		c.AnalysisHistory[i] = s
		if s.BySeverity != nil {
			m := make(map[audit.Severity]int, len(s.BySeverity))
			for k, v := range s.BySeverity {
				m[k] = v
			}
			c.AnalysisHistory[i].BySeverity = m
		}
	}
	return c
}

// HistorySummary breaks a scan run down by outcome.
type HistorySummary struct {
	Kind               string                 `json:"kind"`
	Healthy            int                    `json:"healthy"`
	Warning            int                    `json:"warning"`
	Critical           int                    `json:"critical"`
	Failed             int                    `json:"failed"`
	NotFound           int                    `json:"notFound"`
	Skipped            int                    `json:"skipped"`
	AverageHealthScore float64                `json:"averageHealthScore"`
	ErrorsBySeverity   map[audit.Severity]int `json:"errorsBySeverity"`
}

// HistoryEntry describes one completed scan run.
type HistoryEntry struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	URLsScanned int            `json:"urlsScanned"`
	TotalErrors int            `json:"totalErrors"`
	DurationMs  int64          `json:"durationMs"`
	Summary     HistorySummary `json:"summary"`
}
