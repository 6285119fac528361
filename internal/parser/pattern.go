package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
)

// scope is what a pattern is evaluated against: a listing card (nil for plain-text
// sections) and the card's block text.
type scope struct {
	card *goquery.Selection
	text string
}

// pattern yields every candidate value for one field, in document order.
type pattern interface {
	find(sc scope) []string
}

// cssPattern selects descendants of the card. An empty selector targets the card itself.
// When attr is set the attribute value is used instead of the element text.
type cssPattern struct {
	selector string
	attr     string
}

func css(selector string) cssPattern { return cssPattern{selector: selector} }

func cssAttr(selector, attr string) cssPattern { return cssPattern{selector: selector, attr: attr} }

func (p cssPattern) find(sc scope) []string {
	if sc.card == nil {
		return nil
	}
	sel := sc.card
	if p.selector != "" {
		sel = sc.card.Find(p.selector)
	}
	var out []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if p.attr != "" {
			if v, ok := s.Attr(p.attr); ok {
				out = append(out, v)
			}
			return
		}
		out = append(out, s.Text())
	})
	return out
}

// xpathPattern evaluates a compiled XPath expression relative to each card node.
type xpathPattern struct {
	expr *xpath.Expr
	attr string
}

func xp(expr string) xpathPattern { return xpathPattern{expr: xpath.MustCompile(expr)} }

func xpAttr(expr, attr string) xpathPattern {
	return xpathPattern{expr: xpath.MustCompile(expr), attr: attr}
}

func (p xpathPattern) find(sc scope) []string {
	if sc.card == nil {
		return nil
	}
	var out []string
	for _, node := range sc.card.Nodes {
		for _, match := range htmlquery.QuerySelectorAll(node, p.expr) {
			if p.attr != "" {
				out = append(out, htmlquery.SelectAttr(match, p.attr))
				continue
			}
			out = append(out, htmlquery.InnerText(match))
		}
	}
	return out
}

// regexPattern matches the scope text. group selects the capture; 0 is the whole match.
// Matches shorter than minLen runes are ignored.
type regexPattern struct {
	re     *regexp.Regexp
	group  int
	minLen int
}

func rx(expr string, group int) regexPattern {
	return regexPattern{re: regexp.MustCompile(expr), group: group}
}

func (p regexPattern) find(sc scope) []string {
	var out []string
	for _, m := range p.re.FindAllStringSubmatch(sc.text, -1) {
		v := m[0]
		if p.group < len(m) && m[p.group] != "" {
			v = m[p.group]
		}
		if p.minLen > 0 && len([]rune(strings.TrimSpace(v))) < p.minLen {
			continue
		}
		out = append(out, v)
	}
	return out
}

// firstMatch returns the values of the first pattern that yields a non-empty value.
// Values from different patterns are never merged.
func firstMatch(patterns []pattern, sc scope) []string {
	for _, p := range patterns {
		var values []string
		for _, v := range p.find(sc) {
			if v = squash(v); v != "" {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			return values
		}
	}
	return nil
}

func firstValue(patterns []pattern, sc scope) string {
	if values := firstMatch(patterns, sc); len(values) > 0 {
		return values[0]
	}
	return ""
}

var skillSeparators = regexp.MustCompile(`[,;|•·]`)

// skillList splits delimited lists and removes case-insensitive duplicates, keeping order.
func skillList(values []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range values {
		for _, part := range skillSeparators.Split(v, -1) {
			part = strings.Trim(squash(part), ".- ")
			if part == "" {
				continue
			}
			key := strings.ToLower(part)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

// squash trims and collapses internal whitespace.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
