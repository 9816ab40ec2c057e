package audit

import "strings"

// Origin tells where a piece of page CSS came from.
type Origin string

// CSS origins in bundle order.
const (
	OriginStyleTag   Origin = "style"
	OriginStylesheet Origin = "stylesheet"
	OriginCSSOM      Origin = "cssom"
)

// Stylesheet is an external stylesheet and its text. Text is empty when the
// sheet could not be read (for example cross-origin CSSOM access).
type Stylesheet struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// RawPageCSS is everything a fetcher collected from a rendered page.
type RawPageCSS struct {
	StyleTags    []string     `json:"styleTags"`
	Stylesheets  []Stylesheet `json:"stylesheets"`
	CSSOM        []string     `json:"cssom"`
	InlineStyles []string     `json:"inlineStyles"`
}

// Source records one contribution to a bundle.
type Source struct {
	Origin Origin `json:"origin"`
	Href   string `json:"href,omitempty"`
	Bytes  int    `json:"bytes"`
}

// StyleBundle is the concatenated CSS of a page.
type StyleBundle struct {
	CSS     string   `json:"-"`
	Inline  []string `json:"-"`
	Sources []Source `json:"sources"`
}

// Extract builds a page's CSS bundle: style tags, then external stylesheets,
// then CSSOM text, joined with newlines. Blank sources and exact repeats of
// an earlier source are dropped.
func Extract(raw RawPageCSS) StyleBundle {
	var b StyleBundle
	var parts []string
	seen := make(map[string]bool)

	add := func(origin Origin, href, text string) {
		if strings.TrimSpace(text) == "" || seen[text] {
			return
		}
		seen[text] = true
		parts = append(parts, text)
		b.Sources = append(b.Sources, Source{Origin: origin, Href: href, Bytes: len(text)})
	}

	for _, text := range raw.StyleTags {
		add(OriginStyleTag, "", text)
	}
	for _, sheet := range raw.Stylesheets {
		add(OriginStylesheet, sheet.Href, sheet.Text)
	}
	for _, text := range raw.CSSOM {
		add(OriginCSSOM, "", text)
	}

	for _, decl := range raw.InlineStyles {
		if strings.TrimSpace(decl) != "" {
			b.Inline = append(b.Inline, decl)
		}
	}

	b.CSS = strings.Join(parts, "\n")
	return b
}

// BundleFromCSS wraps plain CSS text, such as a local file, in a bundle.
func BundleFromCSS(text string) StyleBundle {
	return Extract(RawPageCSS{StyleTags: []string{text}})
}

// variableText is the bundle CSS plus inline style declarations, each
// wrapped in its own block so declarations and var() references in style
// attributes are seen by the variable scan.
func (b StyleBundle) variableText() string {
	if len(b.Inline) == 0 {
		return b.CSS
	}
	var sb strings.Builder
	sb.WriteString(b.CSS)
	for _, decl := range b.Inline {
		sb.WriteString("\n{")
		sb.WriteString(decl)
		sb.WriteString("}")
	}
	return sb.String()
}
