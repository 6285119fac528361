// Package collyfetcher implements the direct crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

const defaultTimeout = 15 * time.Second

// AgentSource supplies the User-Agent for each request.
type AgentSource interface {
	Next() string
}

// Config controls collector behavior.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int
}

// Fetcher implements crawler.Fetcher using the Colly collector.
// robots.txt is not consulted here; the politeness gate decides per source.
type Fetcher struct {
	cfg           Config
	agents        AgentSource
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, agents AgentSource) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.DetectCharset(),
	}
	if cfg.MaxBodyBytes > 0 {
		opts = append(opts, colly.MaxBodySize(cfg.MaxBodyBytes))
	}
	c := colly.NewCollector(opts...)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		agents:        agents,
		baseCollector: c,
	}
}

// visitResult is owned by the goroutine running collector.Visit and only
// handed to Fetch through the done channel.
type visitResult struct {
	page    crawler.Page
	status  int
	hookErr error
	err     error
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	start := time.Now()
	collector := f.baseCollector.Clone()
	if f.agents != nil {
		collector.UserAgent = f.agents.Next()
	}
	result := &visitResult{}
	f.configureCollectorHooks(collector, result)

	timeout := f.cfg.Timeout
	if request.Timeout > 0 && request.Timeout < timeout {
		timeout = request.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := f.runCollector(runCtx, collector, request.URL, result)
	if err != nil {
		return crawler.FetchResponse{}, classify(request.URL, res.status, err)
	}
	return crawler.FetchResponse{
		Pages:    []crawler.Page{res.page},
		Duration: time.Since(start),
	}, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *visitResult) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-IN,en;q=0.8")
	})

	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.page = crawler.Page{
			URL:        r.Request.URL.String(),
			Content:    string(r.Body),
			Format:     crawler.FormatHTML,
			StatusCode: r.StatusCode,
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.status = r.StatusCode
		}
		result.hookErr = err
	})
}

// runCollector visits url on its own goroutine. When ctx ends first the
// returned result is empty: the hooks may still be writing to theirs.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, result *visitResult) (visitResult, error) {
	done := make(chan visitResult, 1)
	go func() {
		result.err = collector.Visit(url)
		done <- *result
	}()

	select {
	case <-ctx.Done():
		return visitResult{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return res, fmt.Errorf("colly visit failed: %w", res.err)
		}
		if res.hookErr != nil {
			return res, fmt.Errorf("colly response failed: %w", res.hookErr)
		}
		return res, nil
	}
}

func classify(url string, status int, err error) error {
	if status != 0 && (status < http.StatusOK || status >= http.StatusMultipleChoices) {
		return &crawler.FetchError{Kind: crawler.FetchErrorStatus, URL: url, StatusCode: status, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &crawler.FetchError{Kind: crawler.FetchErrorTimeout, URL: url, Err: err}
	}
	return &crawler.FetchError{Kind: crawler.FetchErrorNetwork, URL: url, Err: err}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
