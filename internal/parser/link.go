package parser

import (
	"strings"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"
)

var urlParser = whatwgUrl.NewParser(whatwgUrl.WithPercentEncodeSinglePercentSign())

// resolveLink resolves href against the page URL. Empty, fragment-only, javascript:
// and non-HTTP links fall back to the page URL.
func resolveLink(pageURL, href string) string {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return pageURL
	}
	var (
		u   *whatwgUrl.Url
		err error
	)
	if pageURL == "" {
		u, err = urlParser.Parse(href)
	} else {
		u, err = urlParser.ParseRef(pageURL, href)
	}
	if err != nil {
		return pageURL
	}
	if p := u.Protocol(); p != "http:" && p != "https:" {
		return pageURL
	}
	return u.Href(true)
}
