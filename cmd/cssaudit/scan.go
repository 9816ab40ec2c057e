package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/yacobolo/cssaudit/internal/audit"
	"github.com/yacobolo/cssaudit/internal/events"
	"github.com/yacobolo/cssaudit/internal/fetch"
	"github.com/yacobolo/cssaudit/internal/store"
)

var scanCmd = &cobra.Command{
	Use:   "scan [urls...]",
	Short: "Audit a site once and print the results",
	Long: `Crawl the configured base URL (or scan exactly the URLs given as
arguments), analyze every page's CSS and print the diagnostics.
With --fail-under the command exits 1 when the average health score is
below the threshold.`,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(cmd.Context(), args, os.Stdout, newLogger(os.Stderr))
	},
}

func init() {
	f := scanCmd.Flags()
	f.String("store", "memory", "Store driver: memory|sqlite|postgres")
	f.String("dsn", "", "Store DSN (sqlite path or postgres URL)")
	f.String("base-url", "", "Site to crawl when no URLs are given")
	f.Int("max-pages", 50, "Maximum pages discovered")
	f.StringSlice("exclude", nil, "URL path patterns to skip (doublestar)")
	f.String("ignore-file", ".cssauditignore", "gitignore-style URL path rules")
	f.String("mode", "http", "Fetch mode: http|browser")
	f.Duration("timeout", fetch.DefaultTimeout, "Page load timeout")
	f.Bool("insecure", false, "Skip TLS verification")
	f.String("output-format", "", "Output format: issues|json")
	f.Float64("fail-under", 0, "Exit 1 when the average health score is below this value")
	f.Bool("suggestions", false, "Show how to fix each issue")
}

func runScan(ctx context.Context, urls []string, w io.Writer, logger *slog.Logger) error {
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	progress := events.EmitterFunc(func(e events.Event) {
		switch d := e.Data.(type) {
		case events.PageAnalyzedData:
			logger.Info("page analyzed", "url", d.URL, "health", d.HealthScore, "errors", d.ErrorCount)
		case events.PageFailedData:
			logger.Warn("page failed", "url", d.URL, "status", d.Status, "error", d.Message)
		case events.ScanCompletedData:
			logger.Info("scan completed", "urls", d.URLsScanned, "errors", d.TotalErrors, "duration_ms", d.DurationMs)
		}
	})

	coord, err := newCoordinator(ctx, st, progress, logger)
	if err != nil {
		return err
	}
	defer coord.Close()

	var records []store.URLRecord
	if len(urls) > 0 {
		if err := coord.ScanURLs(ctx, urls); err != nil {
			return err
		}
		page, err := coord.Results(ctx, urls, 0, len(urls))
		if err != nil {
			return err
		}
		records = page.Results
	} else {
		if base := k.String("base-url"); base != "" {
			if _, err := coord.UpdateSettings(ctx, store.SettingsPatch{BaseURL: &base}); err != nil {
				return err
			}
		}
		if err := coord.Scan(ctx); err != nil {
			return err
		}
		if records, err = coord.ListURLs(ctx); err != nil {
			return err
		}
	}

	pages := analyzedPages(records)
	if err := writeScanOutput(w, records, pages); err != nil {
		return err
	}

	threshold := getFloat64WithFallback("fail-under", "scan.fail-under", 0)
	if avg := audit.AverageScore(pages); threshold > 0 && avg < threshold {
		return &exitError{code: 1, err: fmt.Errorf("average health %.1f is below %.1f", avg, threshold)}
	}
	return nil
}

// analyzedPages converts successfully scanned records back into analyses.
func analyzedPages(records []store.URLRecord) []audit.PageAnalysis {
	var pages []audit.PageAnalysis
	for _, rec := range records {
		if rec.Status != store.StatusSuccess {
			continue
		}
		pages = append(pages, audit.PageAnalysis{
			URL:         rec.URL,
			Timestamp:   rec.LastScanned,
			Errors:      rec.Errors,
			HealthScore: rec.HealthScore,
			Status:      audit.StatusFor(rec.HealthScore),
		})
	}
	return pages
}

func writeScanOutput(w io.Writer, records []store.URLRecord, pages []audit.PageAnalysis) error {
	if getStringWithFallback("output-format", "scan.output-format", "issues") == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if getBoolWithFallback("quiet", "quiet", false) {
		return nil
	}

	reporter := audit.NewReporter(w, audit.ReporterConfig{
		UseColors:        getBoolWithFallback("color", "color", false),
		PrintSuggestions: getBoolWithFallback("suggestions", "scan.suggestions", false),
		PrintKind:        true,
	})
	for _, p := range pages {
		reporter.PrintPage(p)
	}
	for _, rec := range records {
		switch rec.Status {
		case store.StatusError, store.StatusNotFound:
			fmt.Fprintf(w, "%s [%s]\n", rec.URL, rec.Status)
		}
	}
	reporter.PrintSummary(pages)
	return nil
}
