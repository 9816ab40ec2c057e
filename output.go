package cssaudit

import (
	"fmt"
	"io"

	"github.com/yacobolo/cssaudit/internal/audit"
)

// OutputFormat selects how a Result is rendered.
type OutputFormat string

// Output formats
const (
	OutputIssues   OutputFormat = "issues"
	OutputSummary  OutputFormat = "summary"
	OutputFull     OutputFormat = "full"
	OutputJSON     OutputFormat = "json"
	OutputMarkdown OutputFormat = "markdown"
)

// ReportConfig controls terminal rendering.
type ReportConfig struct {
	ForceColors      bool
	PrintSuggestions bool
	PrintKind        bool
}

// DetermineOutputFormat selects the appropriate output format based on flags
func DetermineOutputFormat(formatFlag string, quiet bool) OutputFormat {
	// Explicit quiet flag wins (exit code only)
	if quiet {
		return OutputIssues
	}

	switch formatFlag {
	case "issues":
		return OutputIssues
	case "summary":
		return OutputSummary
	case "full":
		return OutputFull
	case "json":
		return OutputJSON
	case "markdown", "md":
		return OutputMarkdown
	}

	return DetermineDefaultOutputFormat()
}

// DetermineDefaultOutputFormat returns the default output format: issues
// only, the same everywhere.
func DetermineDefaultOutputFormat() OutputFormat {
	return OutputIssues
}

// WriteOutput writes the audit result in the specified format
func WriteOutput(w io.Writer, result *Result, format OutputFormat, config ReportConfig) error {
	pages := []PageAnalysis{result.Analysis}

	switch format {
	case OutputIssues:
		reporter := newReporter(w, config)
		reporter.PrintPage(result.Analysis)
		reporter.PrintSummary(pages)

	case OutputSummary:
		verbose := audit.NewVerboseReporter(w, audit.ShouldUseColors(config.ForceColors))
		printFiles(w, result)
		verbose.PrintStatistics(pages)
		verbose.PrintHealth(pages)
		verbose.PrintVariables(result.Variables)

	case OutputFull:
		reporter := newReporter(w, config)
		reporter.PrintPage(result.Analysis)
		reporter.PrintSummary(pages)

		verbose := audit.NewVerboseReporter(w, reporter.UseColors())
		printFiles(w, result)
		verbose.PrintStatistics(pages)
		verbose.PrintHealth(pages)
		verbose.PrintVariables(result.Variables)

	case OutputJSON:
		return WriteJSON(w, result)

	case OutputMarkdown:
		return WriteMarkdown(w, result)

	default:
		return fmt.Errorf("unknown output format %q", format)
	}
	return nil
}

func newReporter(w io.Writer, config ReportConfig) *audit.Reporter {
	return audit.NewReporter(w, audit.ReporterConfig{
		UseColors:        config.ForceColors,
		PrintSuggestions: config.PrintSuggestions,
		PrintKind:        config.PrintKind,
	})
}

func printFiles(w io.Writer, result *Result) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Files Discovered: %d\n", result.Stats.FilesDiscovered)
	fmt.Fprintf(w, "Files Analyzed:   %d\n", result.Stats.FilesScanned)
	fmt.Fprintf(w, "Files Skipped:    %d\n", result.Stats.FilesSkipped)
}
