package parser

import (
	"iter"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

const (
	genericName      = "generic"
	minSectionLength = 100
)

var sectionBreak = regexp.MustCompile(`\n\s*\n`)

// Generic extracts jobs from any page by splitting it into paragraph sections and
// applying the keyword patterns to each section.
type Generic struct {
	fields fields
}

// NewGeneric returns the default strategy.
func NewGeneric() *Generic {
	return &Generic{fields: fallbackFields}
}

// Name implements crawler.Strategy.
func (g *Generic) Name() string { return genericName }

// Render implements crawler.Strategy.
func (g *Generic) Render() bool { return false }

// SearchURLs implements crawler.Strategy. Unknown portals are crawled at their base URL only.
func (g *Generic) SearchURLs(baseURL string, _ []string) []string {
	if strings.TrimSpace(baseURL) == "" {
		return nil
	}
	return []string{strings.TrimSpace(baseURL)}
}

// Extract implements crawler.Strategy.
func (g *Generic) Extract(page crawler.Page, _ string) iter.Seq[crawler.RawJobRecord] {
	return func(yield func(crawler.RawJobRecord) bool) {
		text := page.Content
		if page.Format == crawler.FormatHTML {
			text = htmlText(page.Content)
		}
		for _, section := range sectionBreak.Split(text, -1) {
			section = strings.TrimSpace(section)
			if utf8.RuneCountInString(section) < minSectionLength {
				continue
			}
			record, ok := g.fields.extract(scope{text: section}, page.URL)
			if !ok {
				continue
			}
			if record.Description == "" {
				record.Description = section
			}
			if !yield(record) {
				return
			}
		}
	}
}

func htmlText(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return content
	}
	return blockText([]*html.Node{doc})
}
