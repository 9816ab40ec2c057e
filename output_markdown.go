package cssaudit

import (
	"fmt"
	"io"
	"strings"

	"github.com/yacobolo/cssaudit/internal/audit"
)

// WriteMarkdown writes the audit result as a Markdown report
func WriteMarkdown(w io.Writer, result *Result) error {
	var b strings.Builder
	a := result.Analysis

	b.WriteString("# CSS Audit Report\n\n")
	fmt.Fprintf(&b, "**Health:** %d/100 (%s)  \n", a.HealthScore, a.Status)
	fmt.Fprintf(&b, "**Files analyzed:** %d  \n", result.Stats.FilesScanned)
	fmt.Fprintf(&b, "**Issues:** %d\n\n", len(a.Errors))

	counts := audit.CountBySeverity(a.Errors)
	b.WriteString("| Severity | Count |\n|---|---|\n")
	for _, s := range audit.Severities {
		fmt.Fprintf(&b, "| %s | %d |\n", s, counts[s])
	}

	b.WriteString("\n## Custom Properties\n\n")
	fmt.Fprintf(&b, "- Declared: %d\n", len(result.Variables.Declared))
	fmt.Fprintf(&b, "- Referenced: %d\n", len(result.Variables.Used))
	fmt.Fprintf(&b, "- Unused: %d\n", len(result.Variables.Unused))
	fmt.Fprintf(&b, "- Unresolved: %d\n", len(result.Variables.Unresolved))
	fmt.Fprintf(&b, "- Duplicate groups: %d\n", len(result.Variables.Duplicates))

	if len(a.Errors) > 0 {
		issues := append([]Diagnostic{}, a.Errors...)
		audit.SortDiagnostics(issues)

		b.WriteString("\n## Issues\n\n")
		b.WriteString("| Severity | Type | Message | Suggestion |\n|---|---|---|---|\n")
		for _, d := range issues {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				d.Severity, d.Kind, escapeCell(d.Message), escapeCell(d.Suggestion))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
