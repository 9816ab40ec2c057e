package fetch

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// document is what a static HTML parse yields.
type document struct {
	base        *url.URL
	styleTags   []string
	stylesheets []string
	inline      []string
	anchors     []string
}

// parseDocument walks an HTML tree collecting style tags, stylesheet links,
// style attributes and anchors. A <base href> changes link resolution.
func parseDocument(root *html.Node, pageURL *url.URL) document {
	doc := document{base: pageURL}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if style := attr(n, "style"); strings.TrimSpace(style) != "" {
				doc.inline = append(doc.inline, style)
			}
			switch n.Data {
			case "base":
				if href := attr(n, "href"); href != "" {
					if u, err := pageURL.Parse(href); err == nil {
						doc.base = u
					}
				}
			case "style":
				doc.styleTags = append(doc.styleTags, textContent(n))
			case "link":
				if hasToken(attr(n, "rel"), "stylesheet") {
					if href := attr(n, "href"); href != "" {
						doc.stylesheets = append(doc.stylesheets, href)
					}
				}
			case "a":
				if href := attr(n, "href"); href != "" {
					doc.anchors = append(doc.anchors, href)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return doc
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

// hasToken reports whether a space separated attribute holds token.
func hasToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if strings.EqualFold(f, token) {
			return true
		}
	}
	return false
}
