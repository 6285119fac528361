package normalize

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kennygrant/sanitize"
)

// Field length caps, in runes.
const (
	MaxTitleLen       = 200
	MaxCompanyLen     = 200
	MaxLocationLen    = 200
	MaxExperienceLen  = 200
	MaxSalaryLen      = 200
	MaxDescriptionLen = 500
	MaxSkillLen       = 60
)

var markup = regexp.MustCompile(`<[a-zA-Z/!?]`)

// Clean strips markup and entities, replaces control characters, collapses whitespace
// and truncates to limit runes (limit <= 0 means no cap). Clean is idempotent.
func Clean(s string, limit int) string {
	if markup.MatchString(s) {
		s = sanitize.HTML(s)
	}
	// sanitize re-escapes its output; unescape to a fixed point so nested entities settle.
	for i := 0; i < 3; i++ {
		next := html.UnescapeString(s)
		if next == s {
			break
		}
		s = next
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '<' || r == '>':
			return ' '
		case unicode.IsControl(r), r == utf8.RuneError, unicode.Is(unicode.Cf, r):
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	if limit > 0 && utf8.RuneCountInString(s) > limit {
		s = strings.TrimSpace(string([]rune(s)[:limit]))
	}
	return s
}
