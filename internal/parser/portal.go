package parser

import (
	"iter"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

// profile is the capability set of one job portal.
type profile struct {
	name    string
	aliases []string
	// card selects one element per listing on a search results page.
	card   string
	render bool
	// location applied when a listing names none, e.g. "Remote" for remote-only boards.
	location string
	fields   fields
	search   func(base, query string) string
}

// Portal is a Strategy driven by a profile. Listing cards are parsed with the profile's
// structural patterns followed by the keyword patterns; pages without any card (markdown
// from the managed crawler, redesigned markup) are handed to the generic extractor.
type Portal struct {
	profile profile
	fields  fields
	generic *Generic
}

func newPortal(p profile, generic *Generic) *Portal {
	return &Portal{
		profile: p,
		fields:  p.fields.then(fallbackFields),
		generic: generic,
	}
}

// Name implements crawler.Strategy.
func (s *Portal) Name() string { return s.profile.name }

// Render implements crawler.Strategy.
func (s *Portal) Render() bool { return s.profile.render }

// SearchURLs implements crawler.Strategy: one results page per query, in query order.
func (s *Portal) SearchURLs(baseURL string, queries []string) []string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil
	}
	if s.profile.search == nil || len(queries) == 0 {
		return []string{base}
	}
	seen := make(map[string]struct{}, len(queries))
	urls := make([]string, 0, len(queries))
	for _, q := range queries {
		q = squash(q)
		if q == "" {
			continue
		}
		u := s.profile.search(base, q)
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		return []string{base}
	}
	return urls
}

// Extract implements crawler.Strategy.
func (s *Portal) Extract(page crawler.Page, source string) iter.Seq[crawler.RawJobRecord] {
	return func(yield func(crawler.RawJobRecord) bool) {
		emit := func(record crawler.RawJobRecord) bool {
			if record.Location == "" {
				record.Location = s.profile.location
			}
			return yield(record)
		}

		var cards *goquery.Selection
		if page.Format == crawler.FormatHTML && s.profile.card != "" {
			if doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Content)); err == nil {
				cards = doc.Find(s.profile.card)
			}
		}
		if cards == nil || cards.Length() == 0 {
			for record := range s.generic.Extract(page, source) {
				if !emit(record) {
					return
				}
			}
			return
		}

		for i := range cards.Nodes {
			card := cards.Eq(i)
			text := blockText(card.Nodes)
			record, ok := s.fields.extract(scope{card: card, text: text}, page.URL)
			if !ok {
				continue
			}
			if record.Description == "" {
				record.Description = text
			}
			if !emit(record) {
				return
			}
		}
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func query(s string) string { return url.QueryEscape(s) }
