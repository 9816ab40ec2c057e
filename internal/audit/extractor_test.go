package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	raw := RawPageCSS{
		StyleTags: []string{".tag{}", "   ", ".shared{}"},
		Stylesheets: []Stylesheet{
			{Href: "https://example.com/a.css", Text: ".sheet{}"},
			{Href: "https://cdn.other.com/b.css", Text: ""},
			{Href: "https://example.com/dup.css", Text: ".shared{}"},
		},
		CSSOM:        []string{".cssom{}"},
		InlineStyles: []string{"color: red", ""},
	}

	b := Extract(raw)

	require.Equal(t, ".tag{}\n.shared{}\n.sheet{}\n.cssom{}", b.CSS)
	require.Equal(t, []string{"color: red"}, b.Inline)
	require.Len(t, b.Sources, 4)
	assert.Equal(t, OriginStyleTag, b.Sources[0].Origin)
	assert.Equal(t, OriginStylesheet, b.Sources[2].Origin)
	assert.Equal(t, "https://example.com/a.css", b.Sources[2].Href)
	assert.Equal(t, OriginCSSOM, b.Sources[3].Origin)
	assert.Equal(t, len(".sheet{}"), b.Sources[2].Bytes)
}

func TestStyleBundle_VariableText(t *testing.T) {
	b := Extract(RawPageCSS{StyleTags: []string{".a{}"}, InlineStyles: []string{"--x: 1"}})
	assert.Equal(t, ".a{}\n{--x: 1}", b.variableText())

	plain := BundleFromCSS(".a{}")
	assert.Equal(t, ".a{}", plain.variableText())
}
