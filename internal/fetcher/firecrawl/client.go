// Package firecrawl delegates page retrieval to the Firecrawl managed crawling API.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

const (
	defaultBaseURL      = "https://api.firecrawl.dev"
	defaultLimit        = 100
	defaultPollInterval = 2 * time.Second
	defaultMaxWait      = 5 * time.Minute
	maxBodyBytes        = 16 << 20
)

// Config controls the managed crawler client.
type Config struct {
	APIKey  string
	BaseURL string
	Limit   int
	Formats []string
	Timeout time.Duration

	// PollInterval spaces crawl status checks.
	PollInterval time.Duration

	// MaxWait bounds one crawl from submission to its last result page. A crawl that
	// outlives it is reported as unavailable so the caller can fetch directly.
	MaxWait time.Duration
}

// Client implements crawler.Fetcher against the Firecrawl crawl endpoint.
type Client struct {
	cfg    Config
	client *http.Client
}

// Configured reports whether apiKey looks like a usable credential.
func Configured(apiKey string) bool {
	key := strings.TrimSpace(apiKey)
	if strings.HasPrefix(key, "fc-") {
		return len(key) > len("fc-")
	}
	return len(key) >= 16
}

// New builds a Client. It fails when the credential is missing or malformed.
func New(cfg Config, client *http.Client) (*Client, error) {
	if !Configured(cfg.APIKey) {
		return nil, errors.New("firecrawl api key is missing or invalid")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{"markdown", "html"}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, client: client}, nil
}

type crawlRequest struct {
	URL           string        `json:"url"`
	Limit         int           `json:"limit"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
}

type scrapeOptions struct {
	Formats []string `json:"formats"`
}

// envelope covers the crawl submission reply, the crawl status reply and the
// {success,data,error,status} shape of proxies that crawl synchronously.
// status is an HTTP code in the latter and the job state in the status reply.
type envelope struct {
	Success bool            `json:"success"`
	ID      string          `json:"id"`
	Status  json.RawMessage `json:"status"`
	Data    json.RawMessage `json:"data"`
	Next    string          `json:"next"`
	Error   json.RawMessage `json:"error"`
}

func (e envelope) statusCode() int {
	var code int
	if err := json.Unmarshal(e.Status, &code); err != nil {
		return 0
	}
	return code
}

func (e envelope) state() string {
	var state string
	if err := json.Unmarshal(e.Status, &state); err != nil {
		return ""
	}
	return state
}

// rejected reports a failure envelope. Status replies may omit success, so a
// job state alone counts as an answer.
func (e envelope) rejected(httpStatus int) bool {
	return httpStatus >= http.StatusBadRequest || (!e.Success && e.state() == "")
}

func (e envelope) fetchError(requestURL string, httpStatus int) *crawler.FetchError {
	status := e.statusCode()
	if status == 0 {
		status = httpStatus
	}
	return &crawler.FetchError{
		Kind:       crawler.FetchErrorManaged,
		URL:        requestURL,
		StatusCode: status,
		Err:        errors.New(errorText(e.Error)),
	}
}

type document struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
	Content  string `json:"content"`
	URL      string `json:"url"`
	Metadata struct {
		SourceURL  string `json:"sourceURL"`
		StatusCode int    `json:"statusCode"`
	} `json:"metadata"`
}

// Fetch implements crawler.Fetcher. The crawl is submitted and, when the reply only
// carries a job id, polled until it completes. Transport problems, auth failures,
// server errors, undecodable replies, crawls without documents and crawls that
// outlive MaxWait wrap crawler.ErrManagedUnavailable; a decoded failure envelope or
// a failed crawl job is returned as a *crawler.FetchError of kind managed.
func (c *Client) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	start := time.Now()
	payload, err := json.Marshal(crawlRequest{
		URL:           request.URL,
		Limit:         c.cfg.Limit,
		ScrapeOptions: scrapeOptions{Formats: c.cfg.Formats},
	})
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("marshal crawl request: %w", err)
	}

	crawlCtx, cancel := context.WithTimeout(ctx, c.cfg.MaxWait)
	defer cancel()

	docs, err := c.crawl(crawlCtx, request.URL, payload)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return crawler.FetchResponse{}, fmt.Errorf("%w: crawl of %s did not finish within %s",
				crawler.ErrManagedUnavailable, request.URL, c.cfg.MaxWait)
		}
		return crawler.FetchResponse{}, err
	}
	pages := toPages(docs, request.URL)
	if len(pages) == 0 {
		return crawler.FetchResponse{}, fmt.Errorf("%w: crawl of %s returned no documents",
			crawler.ErrManagedUnavailable, request.URL)
	}
	return crawler.FetchResponse{
		Pages:    pages,
		Attempts: 1,
		Duration: time.Since(start),
	}, nil
}

func (c *Client) crawl(ctx context.Context, requestURL string, payload []byte) ([]document, error) {
	env, status, err := c.call(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/crawl", payload)
	if err != nil {
		return nil, err
	}
	if env.rejected(status) {
		return nil, env.fetchError(requestURL, status)
	}
	docs, err := decodeDocuments(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode data: %v", crawler.ErrManagedUnavailable, err)
	}
	if len(docs) > 0 || env.ID == "" {
		return docs, nil
	}
	return c.await(ctx, requestURL, env.ID)
}

// await polls the crawl status until the job settles, then follows the
// paginated result links up to the configured limit.
func (c *Client) await(ctx context.Context, requestURL, id string) ([]document, error) {
	endpoint := c.cfg.BaseURL + "/v1/crawl/" + url.PathEscape(id)
	for {
		env, status, err := c.call(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		if env.rejected(status) {
			return nil, env.fetchError(requestURL, status)
		}
		switch state := env.state(); state {
		case "completed":
			return c.collect(ctx, requestURL, env)
		case "failed", "cancelled":
			return nil, &crawler.FetchError{
				Kind:       crawler.FetchErrorManaged,
				URL:        requestURL,
				StatusCode: status,
				Err:        fmt.Errorf("crawl %s %s", id, state),
			}
		}
		if err := crawler.SleepContext(ctx, c.cfg.PollInterval); err != nil {
			return nil, fmt.Errorf("await crawl %s: %w", id, err)
		}
	}
}

func (c *Client) collect(ctx context.Context, requestURL string, env envelope) ([]document, error) {
	docs, err := decodeDocuments(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode data: %v", crawler.ErrManagedUnavailable, err)
	}
	for next := env.Next; next != "" && len(docs) < c.cfg.Limit; {
		page, status, err := c.call(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		if page.rejected(status) {
			return nil, page.fetchError(requestURL, status)
		}
		more, err := decodeDocuments(page.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: decode data: %v", crawler.ErrManagedUnavailable, err)
		}
		if len(more) == 0 {
			break
		}
		docs = append(docs, more...)
		next = page.Next
	}
	return docs, nil
}

// call sends one authenticated request and decodes the reply envelope. Only
// replies that could be decoded come back without an error.
func (c *Client) call(ctx context.Context, method, endpoint string, payload []byte) (envelope, int, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return envelope{}, 0, fmt.Errorf("new managed request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return envelope{}, 0, fmt.Errorf("managed crawl %s: %w", endpoint, ctx.Err())
		}
		return envelope{}, 0, fmt.Errorf("%w: %v", crawler.ErrManagedUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return envelope{}, resp.StatusCode, fmt.Errorf("%w: credential rejected (status %d)", crawler.ErrManagedUnavailable, resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		return envelope{}, resp.StatusCode, fmt.Errorf("%w: status %d", crawler.ErrManagedUnavailable, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return envelope{}, 0, fmt.Errorf("managed crawl %s: %w", endpoint, ctx.Err())
		}
		return envelope{}, 0, fmt.Errorf("%w: read body: %v", crawler.ErrManagedUnavailable, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, 0, fmt.Errorf("%w: decode envelope: %v", crawler.ErrManagedUnavailable, err)
	}
	return env, resp.StatusCode, nil
}

// decodeDocuments accepts either a bare document list or a nested {"data": [...]} object,
// which is what the crawl status endpoint and proxies in front of it return.
func decodeDocuments(raw json.RawMessage) ([]document, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var docs []document
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, fmt.Errorf("unmarshal documents: %w", err)
		}
		return docs, nil
	}
	var nested struct {
		Data []document `json:"data"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return nil, fmt.Errorf("unmarshal nested documents: %w", err)
	}
	if nested.Data == nil {
		var single document
		if err := json.Unmarshal(raw, &single); err == nil && (single.Markdown != "" || single.HTML != "" || single.Content != "") {
			return []document{single}, nil
		}
	}
	return nested.Data, nil
}

func toPages(docs []document, requestURL string) []crawler.Page {
	pages := make([]crawler.Page, 0, len(docs))
	for _, doc := range docs {
		page := crawler.Page{URL: firstNonEmpty(doc.Metadata.SourceURL, doc.URL, requestURL)}
		switch {
		case doc.Markdown != "":
			page.Content, page.Format = doc.Markdown, crawler.FormatMarkdown
		case doc.HTML != "":
			page.Content, page.Format = doc.HTML, crawler.FormatHTML
		case doc.Content != "":
			page.Content, page.Format = doc.Content, crawler.FormatMarkdown
		default:
			continue
		}
		page.StatusCode = doc.Metadata.StatusCode
		if page.StatusCode == 0 {
			page.StatusCode = http.StatusOK
		}
		pages = append(pages, page)
	}
	return pages
}

func errorText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "Firecrawl error"
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
		return msg
	}
	return string(raw)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
