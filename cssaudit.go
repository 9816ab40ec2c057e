// Package cssaudit finds CSS health problems: unresolved, unused and
// duplicated custom properties, overly specific selectors and stylesheets
// that fail to parse. Each problem lowers a 0-100 health score.
//
// # Auditing stylesheets on disk
//
//	result, err := cssaudit.Analyze(cssaudit.Config{
//		Patterns: []string{"web/styles/**/*.css"},
//	})
//	if err != nil {
//		return err
//	}
//	fmt.Println(result.Analysis.HealthScore)
//
// # Auditing a CSS string
//
//	page := cssaudit.AnalyzeCSS("inline", ":root{--a:1px}.x{margin:var(--b)}", nil)
//
// # Auditing a live site
//
// The cssaudit CLI crawls a site, analyzes every page's rendered CSS and
// serves the results over HTTP and WebSocket:
//
//	go install github.com/yacobolo/cssaudit/cmd/cssaudit@latest
//	cssaudit serve --base-url https://example.com
package cssaudit

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yacobolo/cssaudit/internal/audit"
)

// Re-exported result types.
type (
	Diagnostic      = audit.Diagnostic
	PageAnalysis    = audit.PageAnalysis
	VariablesReport = audit.VariablesReport
	Severity        = audit.Severity
	Health          = audit.Health
)

// ErrNoFiles is returned when the patterns match no stylesheet.
var ErrNoFiles = errors.New("no CSS files matched")

// DefaultPatterns is used when Config.Patterns is empty.
var DefaultPatterns = []string{"**/*.css"}

// Config controls an audit of stylesheets on disk.
type Config struct {
	Patterns []string // doublestar globs, relative to the working directory
	// Allowlist lists variable prefixes that may be referenced without a
	// declaration. Nil means the built-in WordPress prefixes.
	Allowlist []string
	Verbose   bool
}

// FileResult describes one stylesheet that took part in an audit.
type FileResult struct {
	Path        string `json:"path"`
	Bytes       int    `json:"bytes"`
	Diagnostics int    `json:"diagnostics"`
}

// Result is the outcome of Analyze. Custom properties are resolved across
// all files together; selectors are checked file by file.
type Result struct {
	Files     []FileResult
	Variables VariablesReport
	Analysis  PageAnalysis
	Stats     ScanStats
}

// AnalyzeCSS audits a single CSS text. A nil allowlist selects the
// built-in prefixes.
func AnalyzeCSS(name, css string, allowlist []string) PageAnalysis {
	return newAnalyzer(allowlist).Analyze(name, audit.BundleFromCSS(css))
}

// Analyze audits every stylesheet matched by cfg.Patterns.
func Analyze(cfg Config) (*Result, error) {
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	files, stats, err := expandGlobPatternsWithStats(patterns)
	if err != nil {
		return nil, fmt.Errorf("expand patterns: %w", err)
	}
	if cfg.Verbose && stats.FilesSkipped > 0 {
		fmt.Fprintf(os.Stderr, "✓ Found %d stylesheets (skipped %d ignored files)\n", stats.FilesScanned, stats.FilesSkipped)
	}

	a := newAnalyzer(cfg.Allowlist)
	result := &Result{Stats: stats}

	var combined strings.Builder
	var selectorDiags []Diagnostic
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			// unreadable files are counted as skipped
			result.Stats.FilesScanned--
			result.Stats.FilesSkipped++
			continue
		}
		text := string(data)
		combined.WriteString(text)
		combined.WriteString("\n")

		diags := a.SelectorDiagnostics(text)
		for i := range diags {
			diags[i].Message = GetRelativePath(path) + ": " + diags[i].Message
		}
		selectorDiags = append(selectorDiags, diags...)
		result.Files = append(result.Files, FileResult{
			Path:        GetRelativePath(path),
			Bytes:       len(data),
			Diagnostics: len(diags),
		})
	}
	if len(result.Files) == 0 {
		return nil, ErrNoFiles
	}

	result.Variables = audit.AnalyzeVariables(combined.String())
	diags := append(a.VariableDiagnostics(result.Variables), selectorDiags...)
	if diags == nil {
		diags = []Diagnostic{}
	}
	score, status := audit.Score(diags)
	result.Analysis = PageAnalysis{
		URL:         strings.Join(patterns, " "),
		Timestamp:   time.Now(),
		Errors:      diags,
		HealthScore: score,
		Status:      status,
	}
	return result, nil
}

func newAnalyzer(allowlist []string) *audit.Analyzer {
	if allowlist == nil {
		return audit.NewAnalyzer()
	}
	return audit.NewAnalyzer(audit.WithAllowlist(allowlist))
}
