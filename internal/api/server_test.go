package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-crawler/internal/config"
	"github.com/JakeFAU/job-crawler/internal/crawler"
	"github.com/JakeFAU/job-crawler/internal/scheduler"
	"github.com/JakeFAU/job-crawler/internal/storage/memory"
)

func TestServer_RunCrawl_ReturnsReport(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{report: crawler.Report{
		Success:        true,
		RunID:          "0195d5f0-0000-7000-8000-000000000001",
		TotalJobsFound: 3,
		Message:        "Successfully processed 2 job sources",
		Results: []crawler.SourceResult{
			{Source: "Acme", JobsFound: 3, Success: true},
			{Source: "Walled", Error: "robots.txt disallows crawling / for jobcrawler"},
		},
	}}
	server := newTestServer(c, nil, config.AuthConfig{})

	rec := serve(server, http.MethodPost, "/v1/crawl", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body crawler.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 3, body.TotalJobsFound)
	require.Len(t, body.Results, 2)
	assert.False(t, body.Results[1].Success)
	assert.Contains(t, rec.Body.String(), `"totalJobsFound":3`)
}

func TestServer_RunCrawl_LoadFailure(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{err: fmt.Errorf("%w: %w", crawler.ErrLoadSources, errors.New("connection refused"))}
	rec := serve(newTestServer(c, nil, config.AuthConfig{}), http.MethodPost, "/v1/crawl", nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "failed to fetch job sources")
}

func TestServer_RunCrawl_Conflict(t *testing.T) {
	t.Parallel()

	c := &fakeCrawler{err: crawler.ErrRunInProgress}
	rec := serve(newTestServer(c, nil, config.AuthConfig{}), http.MethodPost, "/v1/crawl", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_RunSchedule(t *testing.T) {
	t.Parallel()

	skipped := &fakeScheduler{resp: scheduler.Response{
		Success:     true,
		Message:     "Skipped crawl. Last crawl was 6.0 hours ago",
		NextCrawlIn: "6.0 hours",
	}}
	rec := serve(newTestServer(&fakeCrawler{}, skipped, config.AuthConfig{}), http.MethodPost, "/v1/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"nextCrawlIn":"6.0 hours"`)

	failed := &fakeScheduler{resp: scheduler.Response{Error: "Failed to check last crawl time"}}
	rec = serve(newTestServer(&fakeCrawler{}, failed, config.AuthConfig{}), http.MethodPost, "/v1/schedule", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestServer_RunSchedule_Unconfigured(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(&fakeCrawler{}, nil, config.AuthConfig{}), http.MethodPost, "/v1/schedule", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeCrawler{}, nil, config.AuthConfig{Enabled: true, APIKey: "secret"})

	rec := serve(server, http.MethodPost, "/v1/crawl", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(server, http.MethodPost, "/v1/crawl", map[string]string{"X-API-Key": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(server, http.MethodPost, "/v1/crawl", map[string]string{"Authorization": "Bearer secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Probes stay open for the orchestrator platform.
	rec = serve(server, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	rec := serve(NewServer(&fakeCrawler{}, nil, nil, fakePinger{}, Options{}, zap.NewNop()), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	down := fakePinger{err: errors.New("dial tcp: connection refused")}
	rec = serve(NewServer(&fakeCrawler{}, nil, nil, down, Options{}, zap.NewNop()), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeCrawler{}, nil, config.AuthConfig{})
	serve(server, http.MethodGet, "/healthz", nil)

	rec := serve(server, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(&fakeCrawler{panic: true}, nil, config.AuthConfig{}), http.MethodPost, "/v1/crawl", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestServer_CrawlTimeout(t *testing.T) {
	t.Parallel()

	server := NewServer(&fakeCrawler{delay: time.Second}, nil, nil, nil, Options{CrawlTimeout: 20 * time.Millisecond}, zap.NewNop())
	rec := serve(server, http.MethodPost, "/v1/crawl", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "request timed out")
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeCrawler{}, nil, config.AuthConfig{})
	rec := serve(server, http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(server, http.MethodGet, "/healthz", map[string]string{"X-Request-ID": "upstream-id"})
	require.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeCrawler struct {
	report crawler.Report
	err    error
	panic  bool
	delay  time.Duration
}

func (f *fakeCrawler) Run(ctx context.Context) (crawler.Report, error) {
	if f.panic {
		panic("orchestrator exploded")
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return crawler.Report{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.report, f.err
}

type fakeScheduler struct {
	resp scheduler.Response
}

func (f *fakeScheduler) Check(context.Context) scheduler.Response {
	return f.resp
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error {
	return f.err
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(c Crawler, sched Scheduler, auth config.AuthConfig) *Server {
	return NewServer(c, sched, memory.NewRunStore(), nil, Options{Auth: auth, RequestTimeout: 5 * time.Second}, zap.NewNop())
}

func serve(server *Server, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(""))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}
