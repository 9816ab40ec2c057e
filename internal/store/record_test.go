package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yacobolo/cssaudit/internal/audit"
)

func TestNewURLRecord(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		url        string
		wantDomain string
		wantPath   string
	}{
		{name: "root without slash", url: "https://example.com", wantDomain: "example.com", wantPath: "/"},
		{name: "path with port", url: "http://localhost:8080/a/b?x=1", wantDomain: "localhost", wantPath: "/a/b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewURLRecord(tt.url, now)
			require.Equal(t, tt.wantDomain, rec.Domain)
			require.Equal(t, tt.wantPath, rec.Path)
			require.Equal(t, StatusPending, rec.Status)
			require.Equal(t, now, rec.FirstSeen)
		})
	}
}

func TestURLRecord_ExcludedSurvivesAnalysis(t *testing.T) {
	rec := NewURLRecord("https://example.com/", time.Now())
	rec.SetExcluded(true)
	rec.ApplyAnalysis(audit.PageAnalysis{HealthScore: 100, Status: audit.HealthHealthy}, "")
	assert.Equal(t, StatusExcluded, rec.Status)

	rec.SetExcluded(false)
	assert.Equal(t, StatusPending, rec.Status)
}

func TestURLRecord_MarkFailedClearsErrors(t *testing.T) {
	rec := NewURLRecord("https://example.com/", time.Now())
	rec.ApplyAnalysis(audit.PageAnalysis{Errors: []audit.Diagnostic{{Severity: audit.SeverityHigh}}, HealthScore: 90}, "")
	rec.MarkFailed(StatusNotFound, time.Now())

	assert.Equal(t, StatusNotFound, rec.Status)
	assert.Equal(t, 0, rec.ErrorCount)
	assert.Empty(t, rec.Errors)
	assert.Equal(t, 2, rec.ScanCount)
	assert.Len(t, rec.AnalysisHistory, 1)
}

func TestSettingsApply_DoesNotAlias(t *testing.T) {
	s := DefaultSettings()
	s.ExcludePatterns = []string{"/admin/**"}
	patterns := []string{"/tmp/**"}
	out := s.Apply(SettingsPatch{ExcludePatterns: &patterns})
	patterns[0] = "changed"

	assert.Equal(t, []string{"/tmp/**"}, out.ExcludePatterns)
	assert.Equal(t, []string{"/admin/**"}, s.ExcludePatterns)
}

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Settings) {}},
		{name: "https base", mutate: func(s *Settings) { s.BaseURL = "https://example.com" }},
		{name: "relative base", mutate: func(s *Settings) { s.BaseURL = "/about" }, wantErr: true},
		{name: "ftp base", mutate: func(s *Settings) { s.BaseURL = "ftp://example.com" }, wantErr: true},
		{name: "zero pages", mutate: func(s *Settings) { s.MaxPages = 0 }, wantErr: true},
		{name: "zero interval", mutate: func(s *Settings) { s.MonitoringIntervalMinutes = 0 }, wantErr: true},
		{name: "glob pattern", mutate: func(s *Settings) { s.ExcludePatterns = []string{"/blog/**"} }},
		{name: "bad pattern", mutate: func(s *Settings) { s.ExcludePatterns = []string{"/blog/[a"} }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidSettings)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
