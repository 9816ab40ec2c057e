package audit

import (
	"time"

	"github.com/google/uuid"
)

// Analyzer turns page CSS into diagnostics and a health score.
type Analyzer struct {
	allowlist []string
	now       func() time.Time
	newID     func() string
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithAllowlist replaces the prefixes of variables that may be referenced
// without a declaration.
func WithAllowlist(prefixes []string) Option {
	return func(a *Analyzer) {
		a.allowlist = append([]string(nil), prefixes...)
	}
}

// WithClock sets the time source used for analysis timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

// WithIDGenerator sets the diagnostic ID source.
func WithIDGenerator(newID func() string) Option {
	return func(a *Analyzer) {
		a.newID = newID
	}
}

// NewAnalyzer creates an Analyzer with the WordPress allowlist, the wall
// clock and random UUIDs.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		allowlist: append([]string(nil), DefaultAllowlist...),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs variable and selector checks over a page's bundle. A parse
// failure only stops the selector checks; variable diagnostics are still
// reported.
func (a *Analyzer) Analyze(url string, bundle StyleBundle) PageAnalysis {
	diags := a.Diagnose(bundle)
	score, status := Score(diags)
	return PageAnalysis{
		URL:         url,
		Timestamp:   a.now(),
		Errors:      diags,
		HealthScore: score,
		Status:      status,
	}
}

// Diagnose returns variable diagnostics followed by selector diagnostics.
func (a *Analyzer) Diagnose(bundle StyleBundle) []Diagnostic {
	diags := a.VariableDiagnostics(AnalyzeVariables(bundle.variableText()))
	diags = append(diags, a.SelectorDiagnostics(bundle.CSS)...)
	if diags == nil {
		diags = []Diagnostic{}
	}
	return diags
}
