package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yacobolo/cssaudit/internal/artifact"
	"github.com/yacobolo/cssaudit/internal/audit"
	"github.com/yacobolo/cssaudit/internal/events"
	"github.com/yacobolo/cssaudit/internal/fetch"
	"github.com/yacobolo/cssaudit/internal/scan"
	"github.com/yacobolo/cssaudit/internal/store"
	"github.com/yacobolo/cssaudit/internal/store/sqlstore"
)

// openStore opens the configured store and seeds it with the settings built
// from configuration.
func openStore(ctx context.Context) (store.Store, error) {
	driver := getStringWithFallback("store", "store.driver", "memory")

	var st store.Store
	switch driver {
	case "memory":
		st = store.NewMemory()
	case "sqlite", "postgres":
		dsn := getStringWithFallback("dsn", "store.dsn", "")
		if driver == "sqlite" && dsn == "" {
			dsn = "cssaudit.db"
		}
		s, err := sqlstore.Open(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		st = s
	default:
		return nil, fmt.Errorf("unknown store driver %q (memory, sqlite, postgres)", driver)
	}

	settings := buildSettings()
	if err := settings.Validate(); err != nil {
		st.Close()
		return nil, err
	}
	if err := st.SeedSettings(ctx, settings); err != nil {
		st.Close()
		return nil, fmt.Errorf("seeding settings: %w", err)
	}
	return st, nil
}

// openArtifacts returns where HAR recordings go: S3 when a bucket is
// configured, a local directory otherwise. Nil when recording is off.
func openArtifacts(ctx context.Context) (artifact.Store, error) {
	if !getBoolWithFallback("har", "fetch.har.enabled", false) {
		return nil, nil
	}

	var s3cfg artifact.S3Config
	if err := k.Unmarshal("artifacts.s3", &s3cfg); err != nil {
		return nil, fmt.Errorf("reading artifacts.s3: %w", err)
	}
	if s3cfg.Bucket != "" {
		s3, err := artifact.NewS3(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	local, err := artifact.NewLocal(getStringWithFallback("har-dir", "fetch.har.dir", "har"))
	if err != nil {
		return nil, err
	}
	return local, nil
}

// newFetcher builds the page fetcher for the configured mode.
func newFetcher(ctx context.Context, logger *slog.Logger) (scan.PageFetcher, error) {
	mode := getStringWithFallback("mode", "fetch.mode", "http")
	switch mode {
	case "http":
		f, err := fetch.NewHTTPFetcher(fetch.HTTPConfig{
			Insecure:  getBoolWithFallback("insecure", "fetch.insecure", false),
			CacheSize: getIntWithFallback("cache-size", "fetch.cache-size", 0),
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		return f, nil
	case "browser":
		artifacts, err := openArtifacts(ctx)
		if err != nil {
			return nil, err
		}
		return fetch.NewBrowserFetcher(fetch.BrowserConfig{
			Headless:  getBoolWithFallback("headless", "fetch.headless", true),
			Install:   getBoolWithFallback("install-browser", "fetch.install", false),
			RecordHAR: artifacts != nil,
			Artifacts: artifacts,
			Logger:    logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown fetch mode %q (http, browser)", mode)
	}
}

func newAnalyzer() *audit.Analyzer {
	if allow := k.Strings("scan.allowlist"); len(allow) > 0 {
		return audit.NewAnalyzer(audit.WithAllowlist(allow))
	}
	return audit.NewAnalyzer()
}

// newCoordinator wires a coordinator over st. The caller owns st and the
// coordinator.
func newCoordinator(ctx context.Context, st store.Store, emitter events.Emitter, logger *slog.Logger) (*scan.Coordinator, error) {
	fetcher, err := newFetcher(ctx, logger)
	if err != nil {
		return nil, err
	}
	gi, err := scan.LoadIgnoreFile(getStringWithFallback("ignore-file", "scan.ignore-file", ".cssauditignore"))
	if err != nil {
		return nil, err
	}
	return scan.New(scan.Config{
		Store:    st,
		Fetcher:  fetcher,
		Analyzer: newAnalyzer(),
		Events:   emitter,
		Ignore:   gi,
		Logger:   logger,
	}), nil
}
