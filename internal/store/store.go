// Package store persists URL records, scan settings and scan history.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a URL record does not exist.
var ErrNotFound = errors.New("not found")

// UpdateFunc mutates rec in place. exists is false when rec is a freshly
// created record. Returning an error aborts the update.
type UpdateFunc func(rec *URLRecord, exists bool) error

// Store is the persistence capability used by the scan coordinator and the API.
type Store interface {
	GetURL(ctx context.Context, url string) (URLRecord, error)
	ListURLs(ctx context.Context) ([]URLRecord, error)
	// UpdateURL performs an atomic read-modify-write of one record, creating
	// it when absent.
	UpdateURL(ctx context.Context, url string, fn UpdateFunc) (URLRecord, error)
	DeleteURL(ctx context.Context, url string) error
	DeleteURLs(ctx context.Context, urls []string) (int, error)

	GetSettings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, patch SettingsPatch) (Settings, error)
	// SeedSettings stores s only when no settings have been stored yet.
	SeedSettings(ctx context.Context, s Settings) error

	AppendHistory(ctx context.Context, entry HistoryEntry) error
	// ListHistory returns up to limit entries, newest first. limit <= 0
	// returns everything retained.
	ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error)

	Close() error
}
