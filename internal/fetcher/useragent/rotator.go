// Package useragent rotates User-Agent strings across outbound requests.
package useragent

import (
	"strings"
	"sync/atomic"
)

// DefaultAgents is used when no agents are configured.
var DefaultAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.6 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:130.0) Gecko/20100101 Firefox/130.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:130.0) Gecko/20100101 Firefox/130.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/128.0 Safari/537.36",
}

// Rotator hands out agents round-robin. It is safe for concurrent use.
type Rotator struct {
	agents []string
	next   atomic.Uint64
}

// New builds a Rotator over agents, skipping blanks.
func New(agents []string) *Rotator {
	cleaned := make([]string, 0, len(agents))
	for _, agent := range agents {
		if agent = strings.TrimSpace(agent); agent != "" {
			cleaned = append(cleaned, agent)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, DefaultAgents...)
	}
	return &Rotator{agents: cleaned}
}

// Next returns the next agent in rotation.
func (r *Rotator) Next() string {
	n := r.next.Add(1) - 1
	return r.agents[n%uint64(len(r.agents))]
}

// Len reports how many agents are in rotation.
func (r *Rotator) Len() int {
	return len(r.agents)
}
