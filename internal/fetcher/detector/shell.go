// Package detector recognizes pages that are client-rendered shells and need a browser.
package detector

import (
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

const defaultMinVisibleText = 512

// Shell flags HTML responses whose listings are only produced by JavaScript.
type Shell struct {
	// MinVisibleText is the visible-text length under which a script-heavy page counts as a shell.
	MinVisibleText int
}

// NewShell creates a detector. A non-positive threshold selects the default.
func NewShell(minVisibleText int) *Shell {
	if minVisibleText <= 0 {
		minVisibleText = defaultMinVisibleText
	}
	return &Shell{MinVisibleText: minVisibleText}
}

var mountMarkers = []string{
	`id="__next"`,
	`id="__nuxt"`,
	`id="root"></div>`,
	`id="app"></div>`,
	`data-reactroot`,
	`ng-version=`,
}

// ShouldRender reports whether page looks like an unrendered application shell.
func (s *Shell) ShouldRender(page crawler.Page) bool {
	if page.Format != crawler.FormatHTML || page.StatusCode != http.StatusOK {
		return false
	}
	content := strings.TrimSpace(page.Content)
	if content == "" {
		return true
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return false
	}
	var scriptLen int
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		scriptLen += len(sel.Text())
		if src, ok := sel.Attr("src"); ok && src != "" {
			scriptLen += 256
		}
	})
	doc.Find("script, style, noscript, template").Remove()
	visible := len(strings.Join(strings.Fields(doc.Find("body").Text()), " "))

	if visible >= s.MinVisibleText {
		return false
	}
	lower := strings.ToLower(content)
	for _, marker := range mountMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return scriptLen > visible
}
