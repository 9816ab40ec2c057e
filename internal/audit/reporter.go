package audit

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ReporterConfig controls terminal output.
type ReporterConfig struct {
	UseColors        bool
	PrintSuggestions bool
	PrintKind        bool
}

// Reporter prints page analyses to a terminal
type Reporter struct {
	w                io.Writer
	useColors        bool
	printSuggestions bool
	printKind        bool
}

// NewReporter creates a new reporter with the given configuration
func NewReporter(w io.Writer, config ReporterConfig) *Reporter {
	return &Reporter{
		w:                w,
		useColors:        ShouldUseColors(config.UseColors),
		printSuggestions: config.PrintSuggestions,
		printKind:        config.PrintKind,
	}
}

// ShouldUseColors determines if colors should be enabled
func ShouldUseColors(force bool) bool {
	// Explicit flag wins
	if force {
		return true
	}

	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	// FORCE_COLOR is set by GitHub Actions and friends
	if os.Getenv("FORCE_COLOR") != "" || os.Getenv("GITHUB_ACTIONS") == "true" {
		return true
	}

	// Auto-detect TTY
	if fileInfo, err := os.Stdout.Stat(); err == nil && (fileInfo.Mode()&os.ModeCharDevice) != 0 {
		return true
	}

	return false
}

// SortDiagnostics orders diagnostics by severity, then kind, then message.
func SortDiagnostics(diags []Diagnostic) {
	rank := make(map[Severity]int, len(Severities))
	for i, s := range Severities {
		rank[s] = i
	}
	sort.SliceStable(diags, func(i, j int) bool {
		if diags[i].Severity != diags[j].Severity {
			return rank[diags[i].Severity] < rank[diags[j].Severity]
		}
		if diags[i].Kind != diags[j].Kind {
			return diags[i].Kind < diags[j].Kind
		}
		return diags[i].Message < diags[j].Message
	})
}

// PrintPage outputs one page's header line followed by its diagnostics
func (r *Reporter) PrintPage(page PageAnalysis) {
	header := fmt.Sprintf("%s [%s %d/100]", page.URL, page.Status, page.HealthScore)
	fmt.Fprintln(r.w, RenderStyle(StyleCyan, page.URL, r.useColors)+
		RenderStyle(healthStyle(page.Status), strings.TrimPrefix(header, page.URL), r.useColors))

	diags := append([]Diagnostic(nil), page.Errors...)
	SortDiagnostics(diags)
	for _, d := range diags {
		r.printDiagnostic(d)
	}
}

// printDiagnostic formats a single diagnostic line
func (r *Reporter) printDiagnostic(d Diagnostic) {
	label := fmt.Sprintf("%-8s", d.Severity)

	kindSuffix := ""
	if r.printKind {
		kindSuffix = fmt.Sprintf(" (%s)", d.Kind)
	}

	fmt.Fprintf(r.w, "  %s %s%s\n",
		RenderStyle(severityStyle(d.Severity), label, r.useColors),
		d.Message,
		RenderStyle(StyleGray, kindSuffix, r.useColors))

	if r.printSuggestions && d.Suggestion != "" {
		fmt.Fprintf(r.w, "  %s %s\n", strings.Repeat(" ", len(label)), RenderStyle(StyleGray, "→ "+d.Suggestion, r.useColors))
	}
}

// PrintSummary outputs the diagnostic count summary across pages
func (r *Reporter) PrintSummary(pages []PageAnalysis) {
	var all []Diagnostic
	for _, p := range pages {
		all = append(all, p.Errors...)
	}
	counts := CountBySeverity(all)

	fmt.Fprintln(r.w, "")

	var parts []string
	for _, s := range Severities {
		if counts[s] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[s], s))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(r.w, "%s on %s (%s):\n",
			pluralizeCount(len(all), "issue", "issues"),
			pluralizeCount(len(pages), "page", "pages"),
			strings.Join(parts, ", "))
	} else {
		fmt.Fprintf(r.w, "%s on %s:\n",
			pluralizeCount(len(all), "issue", "issues"),
			pluralizeCount(len(pages), "page", "pages"))
	}

	kindCounts := make(map[Kind]int)
	for _, d := range all {
		kindCounts[d.Kind]++
	}
	kinds := make([]string, 0, len(kindCounts))
	for k := range kindCounts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(r.w, "* %s: %d\n", k, kindCounts[Kind(k)])
	}

	if len(all) > 0 && !r.printSuggestions {
		fmt.Fprintln(r.w, "")
		fmt.Fprintln(r.w, RenderStyle(StyleGray, "Hint: Run with --suggestions to see how to fix each issue", r.useColors))
	}
}

// pluralizeCount returns a formatted string with count and singular/plural form
func pluralizeCount(count int, singular, plural string) string {
	if count == 1 {
		return fmt.Sprintf("%d %s", count, singular)
	}
	return fmt.Sprintf("%d %s", count, plural)
}

// UseColors returns whether colors are enabled
func (r *Reporter) UseColors() bool {
	return r.useColors
}
