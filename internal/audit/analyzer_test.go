package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_EndToEnd(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewAnalyzer(WithClock(func() time.Time { return fixed }))

	page := a.Analyze("https://example.com/", BundleFromCSS(`:root{--x:red} .a{color:var(--y)}`))

	require.Len(t, page.Errors, 2)
	byKind := map[Kind]Diagnostic{}
	for _, d := range page.Errors {
		byKind[d.Kind] = d
	}
	require.Contains(t, byKind, KindUnresolvedVariable)
	require.Contains(t, byKind, KindUnusedVariable)
	assert.Equal(t, "--y", byKind[KindUnresolvedVariable].Location.Variable)
	assert.Equal(t, SeverityHigh, byKind[KindUnresolvedVariable].Severity)
	assert.Equal(t, "--x", byKind[KindUnusedVariable].Location.Variable)
	assert.Equal(t, SeverityLow, byKind[KindUnusedVariable].Severity)

	assert.Equal(t, 88, page.HealthScore)
	assert.Equal(t, HealthHealthy, page.Status)
	assert.Equal(t, fixed, page.Timestamp)
	assert.Equal(t, "https://example.com/", page.URL)
}

func TestAnalyze_ParseErrorKeepsVariableChecks(t *testing.T) {
	page := NewAnalyzer().Analyze("u", BundleFromCSS(`.a{color:var(--missing)`))

	kinds := map[Kind]int{}
	for _, d := range page.Errors {
		kinds[d.Kind]++
	}
	assert.Equal(t, 1, kinds[KindParseError])
	assert.Equal(t, 1, kinds[KindUnresolvedVariable])
	assert.Equal(t, 0, kinds[KindHighSpecificity])
	assert.Equal(t, 70, page.HealthScore)
	assert.Equal(t, HealthWarning, page.Status)
}

func TestAnalyze_InlineStylesCountForVariablesOnly(t *testing.T) {
	bundle := Extract(RawPageCSS{
		StyleTags:    []string{`:root{--accent:blue}`},
		InlineStyles: []string{`color: var(--accent)`, `--local: 1px; margin: var(--local)`},
	})
	page := NewAnalyzer().Analyze("u", bundle)
	assert.Empty(t, page.Errors)
	assert.Equal(t, 100, page.HealthScore)
}

func TestAnalyze_EmptyBundle(t *testing.T) {
	page := NewAnalyzer().Analyze("u", StyleBundle{})
	assert.NotNil(t, page.Errors)
	assert.Empty(t, page.Errors)
	assert.Equal(t, 100, page.HealthScore)
}
