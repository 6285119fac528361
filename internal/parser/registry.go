// Package parser turns fetched job-portal pages into raw job records. Each known portal
// has its own Strategy; anything else is handled by the generic extractor.
package parser

import (
	"sort"
	"strings"
	"unicode"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

// Registry maps source names to strategies. Register is not safe for concurrent use;
// populate the registry before the first crawl.
type Registry struct {
	strategies map[string]crawler.Strategy
	keys       []string
	fallback   crawler.Strategy
}

// NewRegistry returns an empty registry whose fallback is the generic extractor.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]crawler.Strategy),
		fallback:   NewGeneric(),
	}
}

// Default returns a registry with every supported portal registered.
func Default() *Registry {
	r := NewRegistry()
	generic, _ := r.fallback.(*Generic)
	for _, p := range portalProfiles {
		r.Register(newPortal(p, generic), p.aliases...)
	}
	return r
}

// Register adds s under its name and any aliases.
func (r *Registry) Register(s crawler.Strategy, aliases ...string) {
	for _, name := range append([]string{s.Name()}, aliases...) {
		key := Key(name)
		if key == "" {
			continue
		}
		if _, exists := r.strategies[key]; !exists {
			r.keys = append(r.keys, key)
		}
		r.strategies[key] = s
	}
	// Longest key first so "remoteok" wins over a shorter prefix.
	sort.Slice(r.keys, func(i, j int) bool { return len(r.keys[i]) > len(r.keys[j]) })
}

// Lookup implements crawler.ParserRegistry. An exact key match wins; otherwise the
// longest registered key that prefixes the source key ("Naukri.com" → naukri);
// otherwise the generic extractor.
func (r *Registry) Lookup(source string) crawler.Strategy {
	key := Key(source)
	if s, ok := r.strategies[key]; ok {
		return s
	}
	for _, k := range r.keys {
		if strings.HasPrefix(key, k) {
			return r.strategies[k]
		}
	}
	return r.fallback
}

// Names lists the registered strategy names, sorted.
func (r *Registry) Names() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, s := range r.strategies {
		if _, ok := seen[s.Name()]; ok {
			continue
		}
		seen[s.Name()] = struct{}{}
		names = append(names, s.Name())
	}
	sort.Strings(names)
	return names
}

// Key normalizes a source name: lowercase letters and digits only.
func Key(source string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(source) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
