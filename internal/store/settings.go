package store

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// FetchSettings controls how pages are loaded.
type FetchSettings struct {
	TimeoutMs       int    `json:"timeoutMs"`
	ViewportWidth   int    `json:"viewportWidth"`
	ViewportHeight  int    `json:"viewportHeight"`
	UserAgent       string `json:"userAgent,omitempty"`
	WaitForSelector string `json:"waitForSelector,omitempty"`
}

// Settings is the persisted scan configuration.
type Settings struct {
	BaseURL                   string        `json:"baseUrl"`
	MaxPages                  int           `json:"maxPages"`
	ExcludePatterns           []string      `json:"excludePatterns"`
	MonitoringIntervalMinutes int           `json:"monitoringIntervalMinutes"`
	MonitoringEnabled         bool          `json:"monitoringEnabled"`
	LastScan                  time.Time     `json:"lastScan,omitzero"`
	Fetch                     FetchSettings `json:"fetch"`
}

// DefaultSettings returns the configuration used before anything is stored.
func DefaultSettings() Settings {
	return Settings{
		MaxPages:                  50,
		ExcludePatterns:           []string{},
		MonitoringIntervalMinutes: 60,
		Fetch: FetchSettings{
			TimeoutMs:      60000,
			ViewportWidth:  1920,
			ViewportHeight: 1080,
		},
	}
}

// FetchSettingsPatch updates only the non-nil fields of FetchSettings.
type FetchSettingsPatch struct {
	TimeoutMs       *int    `json:"timeoutMs,omitempty"`
	ViewportWidth   *int    `json:"viewportWidth,omitempty"`
	ViewportHeight  *int    `json:"viewportHeight,omitempty"`
	UserAgent       *string `json:"userAgent,omitempty"`
	WaitForSelector *string `json:"waitForSelector,omitempty"`
}

// SettingsPatch is a partial update of Settings.
type SettingsPatch struct {
	BaseURL                   *string             `json:"baseUrl,omitempty"`
	MaxPages                  *int                `json:"maxPages,omitempty"`
	ExcludePatterns           *[]string           `json:"excludePatterns,omitempty"`
	MonitoringIntervalMinutes *int                `json:"monitoringIntervalMinutes,omitempty"`
	MonitoringEnabled         *bool               `json:"monitoringEnabled,omitempty"`
	LastScan                  *time.Time          `json:"lastScan,omitempty"`
	Fetch                     *FetchSettingsPatch `json:"fetch,omitempty"`
}

// Apply merges p into a copy of s.
func (s Settings) Apply(p SettingsPatch) Settings {
	out := s
	out.ExcludePatterns = append([]string{}, s.ExcludePatterns...)
	if p.BaseURL != nil {
		out.BaseURL = *p.BaseURL
	}
	if p.MaxPages != nil {
		out.MaxPages = *p.MaxPages
	}
	if p.ExcludePatterns != nil {
		out.ExcludePatterns = append([]string{}, (*p.ExcludePatterns)...)
	}
	if p.MonitoringIntervalMinutes != nil {
		out.MonitoringIntervalMinutes = *p.MonitoringIntervalMinutes
	}
	if p.MonitoringEnabled != nil {
		out.MonitoringEnabled = *p.MonitoringEnabled
	}
	if p.LastScan != nil {
		out.LastScan = *p.LastScan
	}
	if f := p.Fetch; f != nil {
		if f.TimeoutMs != nil {
			out.Fetch.TimeoutMs = *f.TimeoutMs
		}
		if f.ViewportWidth != nil {
			out.Fetch.ViewportWidth = *f.ViewportWidth
		}
		if f.ViewportHeight != nil {
			out.Fetch.ViewportHeight = *f.ViewportHeight
		}
		if f.UserAgent != nil {
			out.Fetch.UserAgent = *f.UserAgent
		}
		if f.WaitForSelector != nil {
			out.Fetch.WaitForSelector = *f.WaitForSelector
		}
	}
	return out
}

// ErrInvalidSettings wraps every validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Validate checks settings that would make a scan impossible.
func (s Settings) Validate() error {
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: baseUrl must be an absolute http(s) URL", ErrInvalidSettings)
		}
	}
	if s.MaxPages < 1 {
		return fmt.Errorf("%w: maxPages must be at least 1", ErrInvalidSettings)
	}
	if s.MonitoringIntervalMinutes < 1 {
		return fmt.Errorf("%w: monitoringIntervalMinutes must be at least 1", ErrInvalidSettings)
	}
	for _, p := range s.ExcludePatterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("%w: invalid exclude pattern %q", ErrInvalidSettings, p)
		}
	}
	if s.Fetch.TimeoutMs < 0 {
		return fmt.Errorf("%w: fetch.timeoutMs must not be negative", ErrInvalidSettings)
	}
	return nil
}
