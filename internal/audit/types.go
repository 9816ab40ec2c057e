package audit

import "time"

// Severity ranks how much a diagnostic hurts a page's health score.
type Severity string

// Severity levels, most severe first.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// Weight returns the health penalty for one diagnostic of this severity.
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 20
	case SeverityHigh:
		return 10
	case SeverityMedium:
		return 5
	case SeverityLow:
		return 2
	}
	return 0
}

// Kind identifies which check produced a diagnostic.
type Kind string

// Diagnostic kinds
const (
	KindUnresolvedVariable Kind = "unresolved_variable"
	KindUnusedVariable     Kind = "unused_variable"
	KindDuplicateVariable  Kind = "duplicate_variable"
	KindHighSpecificity    Kind = "high_specificity"
	KindParseError         Kind = "parse_error"
)

// Health is the coarse status derived from a health score.
type Health string

// Health statuses
const (
	HealthHealthy  Health = "healthy"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// Location points at the part of a stylesheet a diagnostic is about.
type Location struct {
	Selector string `json:"selector,omitempty"`
	Variable string `json:"variable,omitempty"`
}

// Diagnostic is a single problem found in a page's CSS.
type Diagnostic struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"type"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	Details    string    `json:"details"`
	Suggestion string    `json:"suggestion,omitempty"`
	Location   *Location `json:"location,omitempty"`
}

// PageAnalysis is the result of analyzing one page's CSS.
type PageAnalysis struct {
	URL         string       `json:"url"`
	Timestamp   time.Time    `json:"timestamp"`
	Errors      []Diagnostic `json:"errors"`
	HealthScore int          `json:"healthScore"`
	Status      Health       `json:"status"`
}

// CountBySeverity tallies diagnostics per severity.
func CountBySeverity(diags []Diagnostic) map[Severity]int {
	counts := make(map[Severity]int, len(Severities))
	for _, d := range diags {
		counts[d.Severity]++
	}
	return counts
}

// VariableFact is one custom property declaration and the value it was first declared with.
type VariableFact struct {
	Name  string `json:"name"`
	Value string `json:"declaredValue,omitempty"`
}

// DuplicateGroup lists variables that share an identical declared value.
type DuplicateGroup struct {
	Value string   `json:"value"`
	Names []string `json:"names"`
}

// VariablesReport is the full picture of custom property usage in a CSS text.
type VariablesReport struct {
	Declared   []VariableFact   `json:"declared"`
	Used       []string         `json:"used"`
	Unused     []string         `json:"unused"`
	Unresolved []string         `json:"unresolved"`
	Duplicates []DuplicateGroup `json:"duplicates"`
}
