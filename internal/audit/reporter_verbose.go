package audit

import (
	"fmt"
	"io"
)

// VerboseReporter prints aggregate statistics for a set of pages
type VerboseReporter struct {
	w         io.Writer
	useColors bool
}

// NewVerboseReporter creates a verbose reporter
func NewVerboseReporter(w io.Writer, useColors bool) *VerboseReporter {
	return &VerboseReporter{
		w:         w,
		useColors: useColors,
	}
}

// PrintStatistics outputs page and diagnostic totals
func (r *VerboseReporter) PrintStatistics(pages []PageAnalysis) {
	var healthy, warning, critical, total int
	for _, p := range pages {
		total += len(p.Errors)
		switch p.Status {
		case HealthHealthy:
			healthy++
		case HealthWarning:
			warning++
		default:
			critical++
		}
	}

	fmt.Fprintln(r.w, "")
	fmt.Fprintln(r.w, RenderStyle(StyleCyan, "CSS Health Statistics", r.useColors))
	fmt.Fprintln(r.w, "---------------------")

	fmt.Fprintf(r.w, "Pages Analyzed:   %d\n", len(pages))
	fmt.Fprintf(r.w, "Healthy:          %d\n", healthy)
	fmt.Fprintf(r.w, "Warning:          %d\n", warning)
	fmt.Fprintf(r.w, "Critical:         %d\n", critical)
	fmt.Fprintf(r.w, "Total Issues:     %d\n", total)
}

// PrintHealth shows the average health score as a bar
func (r *VerboseReporter) PrintHealth(pages []PageAnalysis) {
	fmt.Fprintln(r.w, "")
	fmt.Fprintln(r.w, RenderStyle(StyleCyan, "Average Health", r.useColors))
	fmt.Fprintln(r.w, "--------------")
	avg := AverageScore(pages)
	fmt.Fprint(r.w, RenderStyle(healthStyle(StatusFor(int(avg+0.5))), progressBar(avg), r.useColors))
	fmt.Fprintf(r.w, " %.1f/100\n", avg)
}

// PrintVariables lists custom property facts for a single stylesheet
func (r *VerboseReporter) PrintVariables(report VariablesReport) {
	fmt.Fprintln(r.w, "")
	fmt.Fprintln(r.w, RenderStyle(StyleCyan, "Custom Properties", r.useColors))
	fmt.Fprintln(r.w, "-----------------")
	fmt.Fprintf(r.w, "Declared:         %d\n", len(report.Declared))
	fmt.Fprintf(r.w, "Referenced:       %d\n", len(report.Used))
	fmt.Fprintf(r.w, "Unused:           %d\n", len(report.Unused))
	fmt.Fprintf(r.w, "Unresolved:       %d\n", len(report.Unresolved))
	fmt.Fprintf(r.w, "Duplicate Groups: %d\n", len(report.Duplicates))
}

// AverageScore returns the mean health score, or 0 for no pages.
func AverageScore(pages []PageAnalysis) float64 {
	if len(pages) == 0 {
		return 0
	}
	sum := 0
	for _, p := range pages {
		sum += p.HealthScore
	}
	return float64(sum) / float64(len(pages))
}

// progressBar renders a 20 cell bar for a 0-100 value
func progressBar(percentage float64) string {
	const barWidth = 20
	filled := int(percentage / 100 * float64(barWidth))

	bar := make([]rune, 0, barWidth+2)
	bar = append(bar, '[')
	for i := 0; i < barWidth; i++ {
		if i < filled {
			bar = append(bar, '█')
		} else {
			bar = append(bar, '░')
		}
	}
	bar = append(bar, ']')
	return string(bar)
}
