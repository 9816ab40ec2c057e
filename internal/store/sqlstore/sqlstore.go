// Package sqlstore implements store.Store on database/sql, backed by either
// SQLite (pure Go, WASM based) or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/yacobolo/cssaudit/internal/audit"
	"github.com/yacobolo/cssaudit/internal/store"
)

// Store is a SQL backed store.Store.
type Store struct {
	db      *sql.DB
	dialect dialect
	// writeMu serializes read-modify-write cycles in this process. On
	// PostgreSQL the row lock additionally covers other processes.
	writeMu sync.Mutex
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to driver ("sqlite" or "postgres") at dsn and ensures the
// schema exists. For SQLite, dsn is a file path, a file: URI or ":memory:".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		d        dialect
		connStr  = dsn
		inMemory bool
	)
	switch driver {
	case "sqlite", "sqlite3", "":
		d = sqliteDialect
		var err error
		connStr, inMemory, err = sqliteConnString(dsn, "cssaudit-"+uuid.NewString())
		if err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	case "postgres", "postgresql":
		d = postgresDialect
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(d.driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d == sqliteDialect {
		if inMemory {
			// Every connection would otherwise see its own empty database.
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
		} else {
			db.SetMaxOpenConns(runtime.NumCPU() + 1)
			db.SetMaxIdleConns(2)
			if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, dialect: d, now: time.Now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) q(query string) string {
	return s.dialect.rebind(query)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetURL loads one record.
func (s *Store) GetURL(ctx context.Context, url string) (store.URLRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT data FROM url_records WHERE url = ?`), url).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return store.URLRecord{}, fmt.Errorf("url %s: %w", url, store.ErrNotFound)
	}
	if err != nil {
		return store.URLRecord{}, fmt.Errorf("failed to load url %s: %w", url, err)
	}
	return decodeRecord(data)
}

// ListURLs loads every record ordered by URL.
func (s *Store) ListURLs(ctx context.Context) ([]store.URLRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM url_records ORDER BY url`)
	if err != nil {
		return nil, fmt.Errorf("failed to list urls: %w", err)
	}
	defer rows.Close()

	out := []store.URLRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan url row: %w", err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateURL runs fn inside a transaction holding the write lock.
func (s *Store) UpdateURL(ctx context.Context, url string, fn store.UpdateFunc) (store.URLRecord, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.URLRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var (
		rec    store.URLRecord
		data   string
		exists = true
	)
	err = tx.QueryRowContext(ctx, s.q(`SELECT data FROM url_records WHERE url = ?`+s.dialect.lockClause), url).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists = false
		rec = store.NewURLRecord(url, s.now())
	case err != nil:
		return store.URLRecord{}, fmt.Errorf("failed to load url %s: %w", url, err)
	default:
		if rec, err = decodeRecord(data); err != nil {
			return store.URLRecord{}, err
		}
	}

	if err := fn(&rec, exists); err != nil {
		return store.URLRecord{}, err
	}

	encoded, err := json.Marshal(rec)
	if err != nil {
		return store.URLRecord{}, fmt.Errorf("failed to encode url record: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO url_records (url, status, is_excluded, health_score, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (url) DO UPDATE SET
			status = excluded.status,
			is_excluded = excluded.is_excluded,
			health_score = excluded.health_score,
			data = excluded.data
	`), rec.URL, string(rec.Status), boolInt(rec.Excluded), rec.HealthScore, string(encoded))
	if err != nil {
		return store.URLRecord{}, fmt.Errorf("failed to upsert url %s: %w", url, err)
	}

	if err := tx.Commit(); err != nil {
		return store.URLRecord{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rec, nil
}

// DeleteURL removes one record.
func (s *Store) DeleteURL(ctx context.Context, url string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM url_records WHERE url = ?`), url)
	if err != nil {
		return fmt.Errorf("failed to delete url %s: %w", url, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("url %s: %w", url, store.ErrNotFound)
	}
	return nil
}

// DeleteURLs removes the listed records in one transaction.
func (s *Store) DeleteURLs(ctx context.Context, urls []string) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, s.q(`DELETE FROM url_records WHERE url = ?`))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	total := 0
	for _, u := range urls {
		res, err := stmt.ExecContext(ctx, u)
		if err != nil {
			return 0, fmt.Errorf("failed to delete url %s: %w", u, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return total, nil
}

const settingsRowID = 1

// GetSettings loads stored settings, or the defaults when none are stored.
func (s *Store) GetSettings(ctx context.Context) (store.Settings, error) {
	return s.loadSettings(ctx, s.db)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) loadSettings(ctx context.Context, q queryRower) (store.Settings, error) {
	var data string
	err := q.QueryRowContext(ctx, s.q(`SELECT data FROM settings WHERE id = ?`), settingsRowID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DefaultSettings(), nil
	}
	if err != nil {
		return store.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	settings := store.DefaultSettings()
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return store.Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return settings, nil
}

func (s *Store) saveSettings(ctx context.Context, tx *sql.Tx, settings store.Settings) error {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO settings (id, data) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`), settingsRowID, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// UpdateSettings merges patch into the stored settings.
func (s *Store) UpdateSettings(ctx context.Context, patch store.SettingsPatch) (store.Settings, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Settings{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := s.loadSettings(ctx, tx)
	if err != nil {
		return store.Settings{}, err
	}
	next := current.Apply(patch)
	if err := next.Validate(); err != nil {
		return store.Settings{}, err
	}
	if err := s.saveSettings(ctx, tx, next); err != nil {
		return store.Settings{}, err
	}
	if err := tx.Commit(); err != nil {
		return store.Settings{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

// SeedSettings stores settings only when the settings row is absent.
func (s *Store) SeedSettings(ctx context.Context, settings store.Settings) error {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO settings (id, data) VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING
	`), settingsRowID, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to seed settings: %w", err)
	}
	return nil
}

// AppendHistory inserts entry and evicts entries past store.MaxHistory.
func (s *Store) AppendHistory(ctx context.Context, entry store.HistoryEntry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM scan_history`).Scan(&seq); err != nil {
		return fmt.Errorf("failed to allocate history sequence: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO scan_history (seq, id, data) VALUES (?, ?, ?)`), seq, entry.ID, string(encoded)); err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM scan_history WHERE seq <= ?`), seq-store.MaxHistory); err != nil {
		return fmt.Errorf("failed to evict history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListHistory returns up to limit entries, newest first.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]store.HistoryEntry, error) {
	if limit <= 0 || limit > store.MaxHistory {
		limit = store.MaxHistory
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT data FROM scan_history ORDER BY seq DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	out := []store.HistoryEntry{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		var entry store.HistoryEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode history entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func decodeRecord(data string) (store.URLRecord, error) {
	var rec store.URLRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return store.URLRecord{}, fmt.Errorf("failed to decode url record: %w", err)
	}
	if rec.Errors == nil {
		rec.Errors = []audit.Diagnostic{}
	}
	if rec.AnalysisHistory == nil {
		rec.AnalysisHistory = []store.Snapshot{}
	}
	return rec, nil
}
