package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yacobolo/cssaudit"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [patterns...]",
	Short: "Audit local CSS files",
	Long: `Analyze stylesheets on disk. Patterns are doublestar globs; files
ignored by .gitignore are skipped. Custom properties are resolved across
all matched files.`,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		return loadConfig(cmd)
	},
	RunE: func(_ *cobra.Command, args []string) error {
		return runAnalyze(args, os.Stdout)
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.String("output-format", "", "Output format: issues|summary|full|json|markdown")
	f.Float64("fail-under", 0, "Exit 1 when the health score is below this value")
	f.Bool("suggestions", false, "Show how to fix each issue")
	f.Bool("print-kind", true, "Show the diagnostic type after each issue")
}

func runAnalyze(patterns []string, w io.Writer) error {
	if len(patterns) == 0 {
		patterns = getStringsWithFallback("paths", "analyze.paths", cssaudit.DefaultPatterns)
	}

	var allowlist []string
	if allow := k.Strings("scan.allowlist"); len(allow) > 0 {
		allowlist = allow
	}

	result, err := cssaudit.Analyze(cssaudit.Config{
		Patterns:  patterns,
		Allowlist: allowlist,
		Verbose:   getBoolWithFallback("verbose", "verbose", false),
	})
	if err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}

	quiet := getBoolWithFallback("quiet", "quiet", false)
	format := cssaudit.DetermineOutputFormat(getStringWithFallback("output-format", "analyze.output-format", ""), quiet)
	if !quiet {
		err := cssaudit.WriteOutput(w, result, format, cssaudit.ReportConfig{
			ForceColors:      getBoolWithFallback("color", "color", false),
			PrintSuggestions: getBoolWithFallback("suggestions", "analyze.suggestions", false),
			PrintKind:        getBoolWithFallback("print-kind", "analyze.print-kind", true),
		})
		if err != nil {
			return err
		}
	}

	threshold := getFloat64WithFallback("fail-under", "analyze.fail-under", 0)
	if score := float64(result.Analysis.HealthScore); threshold > 0 && score < threshold {
		return &exitError{code: 1, err: fmt.Errorf("health %.0f is below %.1f", score, threshold)}
	}
	return nil
}
