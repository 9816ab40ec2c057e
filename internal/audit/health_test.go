package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func diagsOf(severities ...Severity) []Diagnostic {
	diags := make([]Diagnostic, 0, len(severities))
	for _, s := range severities {
		diags = append(diags, Diagnostic{Severity: s})
	}
	return diags
}

func repeat(s Severity, n int) []Severity {
	out := make([]Severity, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		diags      []Diagnostic
		wantScore  int
		wantStatus Health
	}{
		{name: "no diagnostics", diags: nil, wantScore: 100, wantStatus: HealthHealthy},
		{name: "one critical is still healthy", diags: diagsOf(SeverityCritical), wantScore: 80, wantStatus: HealthHealthy},
		{name: "two critical", diags: diagsOf(SeverityCritical, SeverityCritical), wantScore: 60, wantStatus: HealthWarning},
		{name: "warning lower bound", diags: diagsOf(repeat(SeverityHigh, 5)...), wantScore: 50, wantStatus: HealthWarning},
		{name: "just below warning", diags: diagsOf(append(repeat(SeverityHigh, 5), SeverityLow)...), wantScore: 48, wantStatus: HealthCritical},
		{name: "mixed", diags: diagsOf(SeverityHigh, SeverityLow), wantScore: 88, wantStatus: HealthHealthy},
		{name: "clamped at zero", diags: diagsOf(repeat(SeverityCritical, 10)...), wantScore: 0, wantStatus: HealthCritical},
		{name: "far past zero", diags: diagsOf(repeat(SeverityMedium, 500)...), wantScore: 0, wantStatus: HealthCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, status := Score(tt.diags)
			require.Equal(t, tt.wantScore, score)
			require.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestScore_OrderIndependent(t *testing.T) {
	a, _ := Score(diagsOf(SeverityLow, SeverityCritical, SeverityMedium))
	b, _ := Score(diagsOf(SeverityMedium, SeverityLow, SeverityCritical))
	require.Equal(t, a, b)
}
