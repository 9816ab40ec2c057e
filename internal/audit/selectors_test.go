package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecificity(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		want     SelectorSpecificity
		flagged  bool
	}{
		{name: "two ids", selector: "#a #b", want: SelectorSpecificity{IDs: 2}, flagged: true},
		{name: "three classes", selector: ".a .b .c", want: SelectorSpecificity{Classes: 3}, flagged: true},
		{name: "two classes", selector: ".a .b", want: SelectorSpecificity{Classes: 2}, flagged: false},
		{name: "id with three classes", selector: "#nav .a.b .c", want: SelectorSpecificity{IDs: 1, Classes: 3}, flagged: true},
		{name: "id with two classes", selector: "#nav .a .b", want: SelectorSpecificity{IDs: 1, Classes: 2}, flagged: false},
		{name: "type selectors only", selector: "body main > p", want: SelectorSpecificity{}, flagged: false},
		{name: "pseudo classes do not count", selector: ".a:hover:focus-visible", want: SelectorSpecificity{Classes: 1}, flagged: false},
		{name: "list sums ids", selector: "#a, #b", want: SelectorSpecificity{IDs: 2}, flagged: true},
		{name: "list sums classes", selector: "#nav .x, .y, .z", want: SelectorSpecificity{IDs: 1, Classes: 3}, flagged: true},
		{name: "short list", selector: ".x, .y", want: SelectorSpecificity{Classes: 2}, flagged: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Specificity(tt.selector)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.flagged, got.TooSpecific())
		})
	}
}

func TestSelectorDiagnostics(t *testing.T) {
	a := NewAnalyzer()

	tests := []struct {
		name      string
		css       string
		wantCount int
	}{
		{name: "double id", css: `#a #b{color:red}`, wantCount: 1},
		{name: "three classes", css: `.a .b .c{color:red}`, wantCount: 1},
		{name: "two classes", css: `.a .b{color:red}`, wantCount: 0},
		{name: "one diagnostic per rule", css: `.a .b .c, #x #y{color:red}`, wantCount: 1},
		{name: "ids counted across selector list", css: `#a, #b{color:red}`, wantCount: 1},
		{name: "classes counted across selector list", css: `#nav .x, .y, .z{color:red}`, wantCount: 1},
		{name: "two single class selectors", css: `.x, .y{color:red}`, wantCount: 0},
		{name: "nested in media query", css: `@media (max-width: 600px){.a .b .c{color:red} .ok{color:blue}}`, wantCount: 1},
		{name: "keyframes ignored", css: `@keyframes spin{from{opacity:0}to{opacity:1}}`, wantCount: 0},
		{name: "empty input", css: ``, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := a.SelectorDiagnostics(tt.css)
			require.Len(t, diags, tt.wantCount)
			for _, d := range diags {
				assert.Equal(t, KindHighSpecificity, d.Kind)
				assert.Equal(t, SeverityMedium, d.Severity)
				require.NotNil(t, d.Location)
				assert.NotEmpty(t, d.Location.Selector)
			}
		})
	}
}

func TestSelectorDiagnostics_LocationIsSelectorText(t *testing.T) {
	diags := NewAnalyzer().SelectorDiagnostics(".card   .title\n .icon { color: red }")
	require.Len(t, diags, 1)
	assert.Equal(t, ".card .title .icon", diags[0].Location.Selector)
}

func TestSelectorDiagnostics_ListDetails(t *testing.T) {
	diags := NewAnalyzer().SelectorDiagnostics("#a, #b{color:red}")
	require.Len(t, diags, 1)
	assert.Equal(t, "#a, #b", diags[0].Location.Selector)
	assert.Contains(t, diags[0].Details, "2 id and 0 class selectors")
}

func TestSelectorDiagnostics_ParseError(t *testing.T) {
	tests := []struct {
		name string
		css  string
	}{
		{name: "unclosed block", css: `#a #b{color:red} .a .b .c{color:blue`},
		{name: "stray closing brace", css: `.a{color:red}} #a #b{color:red}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := NewAnalyzer().SelectorDiagnostics(tt.css)
			require.Len(t, diags, 1)
			assert.Equal(t, KindParseError, diags[0].Kind)
			assert.Equal(t, SeverityCritical, diags[0].Severity)
			assert.NotEmpty(t, diags[0].Details)
		})
	}
}

func TestSelectorDiagnostics_BracesInStringsAndComments(t *testing.T) {
	css := `.a::before{content:"}"} /* { */ .b{color:red}`
	assert.Empty(t, NewAnalyzer().SelectorDiagnostics(css))
}
