package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is a Store kept entirely in process memory.
type Memory struct {
	mu       sync.Mutex
	records  map[string]URLRecord
	settings *Settings
	history  []HistoryEntry
	now      func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]URLRecord),
		now:     time.Now,
	}
}

var _ Store = (*Memory)(nil)

// GetURL returns a copy of the record for url.
func (m *Memory) GetURL(_ context.Context, url string) (URLRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[url]
	if !ok {
		return URLRecord{}, fmt.Errorf("url %s: %w", url, ErrNotFound)
	}
	return rec.Clone(), nil
}

// ListURLs returns every record ordered by URL.
func (m *Memory) ListURLs(_ context.Context) ([]URLRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]URLRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

// UpdateURL applies fn to the record for url while holding the store lock.
func (m *Memory) UpdateURL(_ context.Context, url string, fn UpdateFunc) (URLRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, exists := m.records[url]
	if exists {
		rec = rec.Clone()
	} else {
		rec = NewURLRecord(url, m.now())
	}
	if err := fn(&rec, exists); err != nil {
		return URLRecord{}, err
	}
	m.records[url] = rec
	return rec.Clone(), nil
}

// DeleteURL removes one record.
func (m *Memory) DeleteURL(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[url]; !ok {
		return fmt.Errorf("url %s: %w", url, ErrNotFound)
	}
	delete(m.records, url)
	return nil
}

// DeleteURLs removes every listed record that exists and reports how many went.
func (m *Memory) DeleteURLs(_ context.Context, urls []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range urls {
		if _, ok := m.records[u]; ok {
			delete(m.records, u)
			n++
		}
	}
	return n, nil
}

// GetSettings returns stored settings, or the defaults.
func (m *Memory) GetSettings(_ context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentSettings(), nil
}

func (m *Memory) currentSettings() Settings {
	if m.settings == nil {
		return DefaultSettings()
	}
	return m.settings.Apply(SettingsPatch{})
}

// UpdateSettings merges patch into the stored settings.
func (m *Memory) UpdateSettings(_ context.Context, patch SettingsPatch) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.currentSettings().Apply(patch)
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	m.settings = &next
	return next.Apply(SettingsPatch{}), nil
}

// SeedSettings stores s when nothing is stored yet.
func (m *Memory) SeedSettings(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings != nil {
		return nil
	}
	seeded := s.Apply(SettingsPatch{})
	m.settings = &seeded
	return nil
}

// AppendHistory adds entry and evicts the oldest past MaxHistory.
func (m *Memory) AppendHistory(_ context.Context, entry HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, entry)
	if over := len(m.history) - MaxHistory; over > 0 {
		m.history = append([]HistoryEntry(nil), m.history[over:]...)
	}
	return nil
}

// ListHistory returns up to limit entries, newest first.
func (m *Memory) ListHistory(_ context.Context, limit int) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]HistoryEntry, 0, n)
	for i := len(m.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.history[i])
	}
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
