// Package robots implements the per-source politeness gate backed by robots.txt.
package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-crawler/internal/crawler"
	"github.com/JakeFAU/job-crawler/internal/metrics"
)

const (
	maxRobotsBytes = 512 << 10
	reasonAllowed  = "allowed by robots.txt"
	reasonDisabled = "robots.txt checks disabled"
)

var tlsRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// Config controls the gate.
type Config struct {
	// UserAgent is the product token matched against User-agent groups.
	UserAgent string
	Timeout   time.Duration
	Disabled  bool
}

// Gate implements crawler.PolitenessGate. Decisions are cached per host until Reset.
type Gate struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]crawler.RobotsDecision
}

// NewGate builds a Gate. client may be nil.
func NewGate(cfg Config, client *http.Client, logger *zap.Logger) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		cfg:    cfg,
		client: client,
		logger: logger,
		cache:  make(map[string]crawler.RobotsDecision),
	}
}

// Reset drops cached decisions. The orchestrator calls it at the start of every run.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.cache = make(map[string]crawler.RobotsDecision)
	g.mu.Unlock()
}

// Allowed decides whether the source rooted at baseURL may be crawled in this run.
// Only a malformed base URL or a canceled context produce an error; an unreachable
// or unreadable robots.txt allows crawling.
func (g *Gate) Allowed(ctx context.Context, baseURL string) (crawler.RobotsDecision, error) {
	if g.cfg.Disabled {
		return crawler.RobotsDecision{Allowed: true, Reason: reasonDisabled}, nil
	}
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Host == "" {
		return crawler.RobotsDecision{}, fmt.Errorf("invalid base url %q", baseURL)
	}
	testPath := parsed.EscapedPath()
	if testPath == "" {
		testPath = "/"
	}
	key := strings.ToLower(parsed.Scheme + "://" + parsed.Host + testPath)

	g.mu.Lock()
	decision, ok := g.cache[key]
	g.mu.Unlock()
	if ok {
		return decision, nil
	}

	decision, err = g.decide(ctx, parsed, testPath)
	if err != nil {
		return crawler.RobotsDecision{}, err
	}
	g.mu.Lock()
	g.cache[key] = decision
	g.mu.Unlock()
	return decision, nil
}

func (g *Gate) decide(ctx context.Context, base *url.URL, testPath string) (crawler.RobotsDecision, error) {
	robotsURL := url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/robots.txt"}
	status, body, err := g.fetch(ctx, robotsURL.String())
	if err != nil {
		if ctx.Err() != nil {
			return crawler.RobotsDecision{}, fmt.Errorf("robots check for %s: %w", base.Host, ctx.Err())
		}
		g.logger.Warn("robots fetch failed; allowing access", zap.String("host", base.Host), zap.Error(err))
		return crawler.RobotsDecision{Allowed: true, Reason: "robots.txt unreachable"}, nil
	}
	if status >= http.StatusBadRequest {
		return crawler.RobotsDecision{Allowed: true, Reason: fmt.Sprintf("robots.txt returned status %d", status)}, nil
	}

	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		g.logger.Warn("robots parse failed; allowing access", zap.String("host", base.Host), zap.Error(err))
		return crawler.RobotsDecision{Allowed: true, Reason: "robots.txt unparseable"}, nil
	}
	// Both the wildcard group and our own group must allow the path.
	for _, agent := range g.groupAgents() {
		group := data.FindGroup(agent)
		if group == nil || group.Test(testPath) {
			continue
		}
		return crawler.RobotsDecision{
			Allowed: false,
			Reason:  fmt.Sprintf("robots.txt disallows crawling %s for %s", testPath, agent),
		}, nil
	}
	return crawler.RobotsDecision{Allowed: true, Reason: reasonAllowed}, nil
}

func (g *Gate) groupAgents() []string {
	agent := g.agentToken()
	if agent == "*" {
		return []string{"*"}
	}
	return []string{"*", agent}
}

// fetch retrieves robots.txt, retrying TLS handshake timeouts a couple of times since
// several portals sit behind slow edge proxies.
func (g *Gate) fetch(ctx context.Context, robotsURL string) (int, []byte, error) {
	for attempt := 0; ; attempt++ {
		status, body, err := g.fetchOnce(ctx, robotsURL)
		if err == nil || attempt >= len(tlsRetryBackoff) || !isTLSHandshakeTimeout(err) {
			return status, body, err
		}
		metrics.ObserveRobotsTLSHandshakeTimeout()
		if serr := crawler.SleepContext(ctx, tlsRetryBackoff[attempt]); serr != nil {
			return 0, nil, fmt.Errorf("robots retry backoff: %w", serr)
		}
	}
}

func (g *Gate) fetchOnce(ctx context.Context, robotsURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("new robots request: %w", err)
	}
	if g.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", g.cfg.UserAgent)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read robots body: %w", err)
	}
	return resp.StatusCode, body, nil
}

// agentToken reduces a full User-Agent header to the product token robots.txt groups use.
func (g *Gate) agentToken() string {
	agent := strings.TrimSpace(g.cfg.UserAgent)
	if agent == "" {
		return "*"
	}
	if i := strings.IndexAny(agent, "/ "); i > 0 {
		agent = agent[:i]
	}
	return agent
}

func isTLSHandshakeTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() && strings.Contains(err.Error(), "handshake") {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout") ||
		strings.Contains(err.Error(), "TLS handshake timeout")
}
