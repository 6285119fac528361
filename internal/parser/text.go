package parser

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	spaceRun     = regexp.MustCompile(`[ \t\f\r\v\x{00a0}]+`)
	blankLineRun = regexp.MustCompile(`\n{3,}`)
)

// blockText renders nodes as plain text with one line per block element and a blank line
// between listing-sized containers, so label patterns ("Location: ...") and paragraph
// splitting work on HTML as they do on markdown. Headings are rendered with a "# " prefix.
func blockText(nodes []*html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(spaceRun.ReplaceAllString(strings.ReplaceAll(n.Data, "\n", " "), " "))
			return
		case html.ElementNode:
		case html.DocumentNode:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			return
		default:
			return
		}

		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Svg, atom.Head:
			return
		case atom.H1, atom.H2, atom.H3, atom.H4:
			b.WriteString("\n# ")
		case atom.Br:
			b.WriteString("\n")
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		switch n.DataAtom {
		case atom.Article, atom.Section, atom.Li, atom.Tr, atom.Ul, atom.Ol, atom.Table, atom.Hr:
			b.WriteString("\n\n")
		case atom.P, atom.Div, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
			atom.Dd, atom.Dt, atom.Td, atom.Header, atom.Footer:
			b.WriteString("\n")
		case atom.Span, atom.A, atom.Strong, atom.B, atom.Em, atom.I:
			b.WriteString(" ")
		}
	}
	for _, n := range nodes {
		walk(n)
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(blankLineRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
