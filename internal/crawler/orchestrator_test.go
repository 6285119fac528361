package crawler_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-crawler/internal/clock/system"
	"github.com/JakeFAU/job-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/job-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/job-crawler/internal/fetcher/useragent"
	"github.com/JakeFAU/job-crawler/internal/hash/sha256"
	"github.com/JakeFAU/job-crawler/internal/id/uuid"
	"github.com/JakeFAU/job-crawler/internal/lock"
	"github.com/JakeFAU/job-crawler/internal/normalize"
	"github.com/JakeFAU/job-crawler/internal/parser"
	"github.com/JakeFAU/job-crawler/internal/progress"
	pubmemory "github.com/JakeFAU/job-crawler/internal/publisher/memory"
	"github.com/JakeFAU/job-crawler/internal/reconcile"
	"github.com/JakeFAU/job-crawler/internal/robots"
	"github.com/JakeFAU/job-crawler/internal/storage"
	"github.com/JakeFAU/job-crawler/internal/storage/memory"
	"github.com/JakeFAU/job-crawler/internal/store"
)

const listingMarkdown = `# Openings

## Senior Backend Engineer
Company: Acme Technologies
Location: Bangalore
Experience: 3-5 years
Skills: Go, PostgreSQL, Kubernetes
Salary: 12-18 LPA

Job Title: Data Analyst
Organization: Beta Corp
Based in: Pune
We are looking for an analyst with SQL and Python skills to join our growing analytics team in Bangalore.

**Frontend Developer Intern**
Work with React and TypeScript at Gamma Labs on customer dashboards. Remote friendly team, stipend 15,000/month for six months.
`

const listingHTML = `<html><body>
<article><h2>Machine Learning Engineer</h2><p>Company: Orbit AI</p><p>Location: Hyderabad</p>
<p>Design and ship ranking models with Python and Kubernetes for millions of users.</p></article>
<article><h2>Site Reliability Engineer</h2><p>Company: Nimbus Cloud</p><p>Location: Chennai</p>
<p>Run our multi-region Kubernetes platform and keep the on-call rotation calm and boring.</p></article>
<article><h2>Product Designer</h2><p>Company: Pixel Works</p><p>Location: Mumbai</p>
<p>Own end to end design for our mobile banking app used by small business owners daily.</p></article>
<article><p>Newsletter signup</p></article>
</body></html>`

const shellHTML = `<html><head><script src="/static/app.js"></script></head><body><div id="__next"></div></body></html>`

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type stubFetcher struct {
	mu       sync.Mutex
	pages    map[string]string
	rendered map[string]string
	fail     map[string]error
	calls    []crawler.FetchRequest
}

func (f *stubFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err, ok := f.fail[req.URL]; ok {
		return crawler.FetchResponse{}, err
	}
	if req.Render {
		if body, ok := f.rendered[req.URL]; ok {
			return crawler.FetchResponse{UsedRender: true, Pages: []crawler.Page{{
				URL: req.URL, Content: body, Format: crawler.FormatMarkdown, StatusCode: http.StatusOK,
			}}}, nil
		}
	}
	body, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{}, &crawler.FetchError{Kind: crawler.FetchErrorStatus, URL: req.URL, StatusCode: http.StatusNotFound}
	}
	format := crawler.FormatMarkdown
	if strings.HasPrefix(body, "<html") {
		format = crawler.FormatHTML
	}
	return crawler.FetchResponse{Pages: []crawler.Page{{
		URL: req.URL, Content: body, Format: format, StatusCode: http.StatusOK,
	}}}, nil
}

func (f *stubFetcher) requests() []crawler.FetchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]crawler.FetchRequest(nil), f.calls...)
}

type allowAll struct{ resets int }

func (g *allowAll) Allowed(context.Context, string) (crawler.RobotsDecision, error) {
	return crawler.RobotsDecision{Allowed: true, Reason: "allowed"}, nil
}

func (g *allowAll) Reset() { g.resets++ }

type failingSources struct{ crawler.SourceStore }

func (failingSources) ListActiveSources(context.Context) ([]crawler.JobSource, error) {
	return nil, errors.New("connection refused")
}

type failingCleanup struct{ crawler.Reconciler }

func (failingCleanup) Cleanup(context.Context, time.Time) (int64, error) {
	return 0, errors.New("statement timeout")
}

type alwaysShell struct{}

func (alwaysShell) ShouldRender(crawler.Page) bool { return true }

type panicStrategy struct{}

func (panicStrategy) Name() string                                   { return "broken" }
func (panicStrategy) Render() bool                                   { return false }
func (panicStrategy) SearchURLs(baseURL string, _ []string) []string { return []string{baseURL} }
func (panicStrategy) Extract(crawler.Page, string) iter.Seq[crawler.RawJobRecord] {
	return func(func(crawler.RawJobRecord) bool) {
		panic("selector exploded")
	}
}

type fixture struct {
	store     *memory.Store
	runs      *memory.RunStore
	blobs     *memory.BlobStore
	publisher *pubmemory.Publisher
	fetcher   *stubFetcher
	gate      *allowAll
	clock     *system.Fixed
	deps      crawler.Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := system.NewFixed(testNow)
	st := memory.NewStore()
	rec, err := reconcile.New(reconcile.Config{}, st, zap.NewNop())
	require.NoError(t, err)
	blobs := memory.NewBlobStore()
	archive, err := storage.NewArchive(blobs)
	require.NoError(t, err)

	f := &fixture{
		store:     st,
		runs:      memory.NewRunStore(),
		blobs:     blobs,
		publisher: pubmemory.New(),
		fetcher:   &stubFetcher{pages: map[string]string{}, rendered: map[string]string{}, fail: map[string]error{}},
		gate:      &allowAll{},
		clock:     clk,
	}
	f.deps = crawler.Deps{
		Sources:    st,
		Fetcher:    f.fetcher,
		Gate:       f.gate,
		Parsers:    parser.Default(),
		Normalizer: normalize.New(normalize.Config{}, sha256.New(), clk),
		Reconciler: rec,
		Archive:    archive,
		Lock:       lock.NewLocal(),
		Publisher:  f.publisher,
		Runs:       f.runs,
		Clock:      clk,
		IDs:        uuid.New(),
		Logger:     zap.NewNop(),
	}
	return f
}

func (f *fixture) addSource(t *testing.T, name, baseURL string) crawler.JobSource {
	t.Helper()
	src, err := f.store.UpsertSource(context.Background(), crawler.JobSource{Name: name, BaseURL: baseURL, IsActive: true})
	require.NoError(t, err)
	return src
}

func (f *fixture) orchestrator(t *testing.T, cfg crawler.OrchestratorConfig) *crawler.Orchestrator {
	t.Helper()
	o, err := crawler.NewOrchestrator(cfg, f.deps)
	require.NoError(t, err)
	return o
}

func robotsServer(t *testing.T, robotsTxt, listing string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(robotsTxt))
	})
	mux.HandleFunc("/careers", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(listing))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunEndToEndWithRobots(t *testing.T) {
	t.Parallel()

	allowed := robotsServer(t, "User-agent: *\nAllow: /\n", listingHTML)
	denied := robotsServer(t, "User-agent: *\nDisallow: /\n", listingHTML)

	f := newFixture(t)
	f.deps.Fetcher = collyfetcher.New(collyfetcher.Config{Timeout: 2 * time.Second}, useragent.New([]string{"jobcrawler-test/1.0"}))
	f.deps.Gate = robots.NewGate(robots.Config{UserAgent: "jobcrawler-test/1.0", Timeout: 2 * time.Second}, allowed.Client(), zap.NewNop())
	open := f.addSource(t, "Orbit Careers", allowed.URL+"/careers")
	closed := f.addSource(t, "Walled Garden", denied.URL+"/careers")

	report, err := f.orchestrator(t, crawler.OrchestratorConfig{}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	first, second := report.Results[0], report.Results[1]
	assert.Equal(t, "Orbit Careers", first.Source)
	assert.True(t, first.Success)
	assert.Equal(t, 3, first.JobsFound)
	assert.Empty(t, first.Error)

	assert.Equal(t, "Walled Garden", second.Source)
	assert.False(t, second.Success)
	assert.Equal(t, 0, second.JobsFound)
	assert.Contains(t, second.Error, "robots.txt disallows")

	assert.True(t, report.Success)
	assert.Equal(t, 3, report.TotalJobsFound)
	assert.Equal(t, "Successfully processed 2 job sources", report.Message)
	assert.NotEmpty(t, report.RunID)

	sources, err := f.store.ListActiveSources(context.Background())
	require.NoError(t, err)
	for _, src := range sources {
		switch src.ID {
		case open.ID:
			require.NotNil(t, src.LastCrawledAt)
			assert.Equal(t, testNow, *src.LastCrawledAt)
		case closed.ID:
			assert.Nil(t, src.LastCrawledAt)
		}
	}

	jobs := f.store.Jobs()
	require.Len(t, jobs, 3)
	for _, job := range jobs {
		assert.Equal(t, "Orbit Careers", job.Source)
		assert.True(t, job.IsActive)
	}

	msgs := f.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, string(msgs[0].Data), `"totalJobsFound":3`)

	run, err := f.runs.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunSuccess, run.Status)
	assert.Equal(t, 3, run.TotalJobsFound)

	assert.Len(t, f.blobs.Paths(), 1)
}

func TestRunSecondPassIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSource(t, "Acme Board", "https://acme.example/jobs")
	f.fetcher.pages["https://acme.example/jobs"] = listingMarkdown
	o := f.orchestrator(t, crawler.OrchestratorConfig{})

	first, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, first.TotalJobsFound)

	f.clock.Advance(time.Hour)
	second, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.TotalJobsFound)
	require.Len(t, second.Results, 1)
	assert.True(t, second.Results[0].Success)
	assert.Len(t, f.store.Jobs(), 3)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunWithRunSaltInsertsAgain(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSource(t, "Acme Board", "https://acme.example/jobs")
	f.fetcher.pages["https://acme.example/jobs"] = listingMarkdown
	o := f.orchestrator(t, crawler.OrchestratorConfig{FingerprintSalt: crawler.SaltRun})

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	second, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, second.TotalJobsFound)
	assert.Len(t, f.store.Jobs(), 6)
}

func TestRunLoadSourcesFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.deps.Sources = failingSources{}
	report, err := f.orchestrator(t, crawler.OrchestratorConfig{}).Run(context.Background())
	require.ErrorIs(t, err, crawler.ErrLoadSources)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, report.Results)
	assert.Empty(t, f.publisher.Messages())

	runs, err := f.runs.ListRuns(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunError, runs[0].Status)
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	held := lock.NewLocal()
	ok, err := held.TryLock(context.Background(), "other-run")
	require.NoError(t, err)
	require.True(t, ok)
	f.deps.Lock = held

	_, err = f.orchestrator(t, crawler.OrchestratorConfig{}).Run(context.Background())
	require.ErrorIs(t, err, crawler.ErrRunInProgress)
}

func TestRunEmptySourceList(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	report, err := f.orchestrator(t, crawler.OrchestratorConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Empty(t, report.Results)
	assert.Equal(t, 0, report.TotalJobsFound)
	assert.Equal(t, "Successfully processed 0 job sources", report.Message)
	assert.Equal(t, 1, f.gate.resets)
}

func TestRunRecoversParserPanic(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	reg := parser.NewRegistry()
	reg.Register(panicStrategy{}, "Broken Board")
	f.deps.Parsers = reg
	f.addSource(t, "Broken Board", "https://broken.example/jobs")
	f.addSource(t, "Acme Board", "https://acme.example/jobs")
	f.fetcher.pages["https://broken.example/jobs"] = listingMarkdown
	f.fetcher.pages["https://acme.example/jobs"] = listingMarkdown

	report, err := f.orchestrator(t, crawler.OrchestratorConfig{}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	broken := report.Results[0]
	assert.False(t, broken.Success)
	assert.Contains(t, broken.Error, "panicked")
	require.NotNil(t, broken.Stats)
	assert.Equal(t, 1, broken.Stats.FailedRequests)

	assert.True(t, report.Results[1].Success)
	assert.Equal(t, 3, report.TotalJobsFound)
}

func TestRunFailsSourceWhenAllFetchesFail(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSource(t, "Down Board", "https://down.example/jobs")
	f.fetcher.fail["https://down.example/jobs"] = &crawler.FetchError{
		Kind: crawler.FetchErrorNetwork, URL: "https://down.example/jobs", Err: errors.New("connection reset"),
	}

	report, err := f.orchestrator(t, crawler.OrchestratorConfig{}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "all 1 page fetches failed")
	assert.Contains(t, res.Error, "connection reset")
	assert.Equal(t, 1, report.Stats.FailedRequests)
}

func TestRunSkipsDuplicatesWithinRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSource(t, "Mirror One", "https://one.example/jobs")
	f.addSource(t, "Mirror Two", "https://two.example/jobs")
	f.fetcher.pages["https://one.example/jobs"] = listingMarkdown
	f.fetcher.pages["https://two.example/jobs"] = listingMarkdown

	report, err := f.orchestrator(t, crawler.OrchestratorConfig{}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.Equal(t, 3, report.Results[0].JobsFound)
	assert.Equal(t, 0, report.Results[1].JobsFound)
	assert.True(t, report.Results[1].Success)
	assert.Equal(t, 3, report.Results[1].Stats.DuplicatesSkipped)
	assert.Equal(t, 6, report.Stats.JobsExtracted)
	assert.Len(t, f.store.Jobs(), 3)
}

func TestRunPromotesShellPagesToRender(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.deps.Detector = alwaysShell{}
	f.addSource(t, "Spa Board", "https://spa.example/jobs")
	f.fetcher.pages["https://spa.example/jobs"] = shellHTML
	f.fetcher.rendered["https://spa.example/jobs"] = listingMarkdown

	report, err := f.orchestrator(t, crawler.OrchestratorConfig{}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, 3, report.Results[0].JobsFound)

	calls := f.fetcher.requests()
	require.Len(t, calls, 2)
	assert.False(t, calls[0].Render)
	assert.True(t, calls[1].Render)
	assert.Equal(t, 2, report.Results[0].Stats.TotalRequests)
}

func TestRunWithoutDetectorKeepsEmptyPage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSource(t, "Spa Board", "https://spa.example/jobs")
	f.fetcher.pages["https://spa.example/jobs"] = shellHTML
	f.fetcher.rendered["https://spa.example/jobs"] = listingMarkdown

	report, err := f.orchestrator(t, crawler.OrchestratorConfig{}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.True(t, report.Results[0].Success)
	assert.Equal(t, 0, report.Results[0].JobsFound)
	assert.Len(t, f.fetcher.requests(), 1)
}

func TestRunAppliesSourceFilter(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSource(t, "Naukri", "https://naukri.example/jobs")
	f.addSource(t, "Acme Board", "https://acme.example/jobs")
	f.fetcher.pages["https://acme.example/jobs"] = listingMarkdown

	report, err := f.orchestrator(t, crawler.OrchestratorConfig{SourceFilter: "acme*"}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "Acme Board", report.Results[0].Source)
	assert.Equal(t, "Successfully processed 1 job sources", report.Message)
}

func TestRunReportsCleanupFailureAsZero(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.deps.Reconciler = failingCleanup{Reconciler: f.deps.Reconciler}
	f.addSource(t, "Acme Board", "https://acme.example/jobs")
	f.fetcher.pages["https://acme.example/jobs"] = listingMarkdown

	report, err := f.orchestrator(t, crawler.OrchestratorConfig{}).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, int64(0), report.CleanupCount)
	assert.Equal(t, 3, report.TotalJobsFound)
}

func TestRunConcurrentSourcesKeepOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	names := make([]string, 0, 5)
	for i := range 5 {
		name := fmt.Sprintf("Board %d", i)
		base := fmt.Sprintf("https://board%d.example/jobs", i)
		f.addSource(t, name, base)
		f.fetcher.pages[base] = strings.ReplaceAll(listingMarkdown, "Acme Technologies", fmt.Sprintf("Acme %d", i))
		names = append(names, name)
	}

	report, err := f.orchestrator(t, crawler.OrchestratorConfig{SourceConcurrency: 3}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 5)
	for i, res := range report.Results {
		assert.Equal(t, names[i], res.Source)
		assert.True(t, res.Success)
	}
	assert.Equal(t, 7, report.TotalJobsFound)
}

func TestRunCancelledBetweenSources(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSource(t, "Acme Board", "https://acme.example/jobs")
	f.addSource(t, "Beta Board", "https://beta.example/jobs")
	f.fetcher.pages["https://acme.example/jobs"] = listingMarkdown
	f.fetcher.pages["https://beta.example/jobs"] = listingMarkdown

	ctx, cancel := context.WithCancel(context.Background())
	o := f.orchestrator(t, crawler.OrchestratorConfig{InterSourceDelay: time.Minute})
	time.AfterFunc(50*time.Millisecond, cancel)

	report, err := o.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].Success)
	assert.False(t, report.Results[1].Success)
	assert.Contains(t, report.Results[1].Error, "crawl cancelled")
}

func TestNewOrchestratorValidates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	missing := f.deps
	missing.Fetcher = nil
	_, err := crawler.NewOrchestrator(crawler.OrchestratorConfig{}, missing)
	require.EqualError(t, err, "fetcher is required")

	_, err = crawler.NewOrchestrator(crawler.OrchestratorConfig{FingerprintSalt: "daily"}, f.deps)
	require.ErrorContains(t, err, "unknown fingerprint salt mode")

	_, err = crawler.NewOrchestrator(crawler.OrchestratorConfig{SourceFilter: "[unclosed"}, f.deps)
	require.ErrorContains(t, err, "compile source filter")

	o, err := crawler.NewOrchestrator(crawler.OrchestratorConfig{}, f.deps)
	require.NoError(t, err)
	assert.Equal(t, crawler.StateIdle, o.State())
}

func TestRunFailsBlockedDomainsWithoutFetching(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addSource(t, "Spam Board", "https://jobs.spam.example/list")
	f.addSource(t, "Acme Board", "https://acme.example/jobs")
	f.fetcher.pages["https://acme.example/jobs"] = listingMarkdown

	report, err := f.orchestrator(t, crawler.OrchestratorConfig{
		BlockedDomains: []string{"*.spam.example"},
	}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.False(t, report.Results[0].Success)
	assert.Contains(t, report.Results[0].Error, "blocked by configuration")
	assert.True(t, report.Results[1].Success)
	assert.Equal(t, 3, report.TotalJobsFound)
	for _, req := range f.fetcher.requests() {
		assert.NotContains(t, req.URL, "spam.example")
	}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) stages() []progress.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}

func TestRunEmitsProgressEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := &recordingEmitter{}
	f.deps.Progress = rec
	f.addSource(t, "Acme Board", "https://acme.example/jobs")
	f.addSource(t, "Down Board", "https://down.example/jobs")
	f.fetcher.pages["https://acme.example/jobs"] = listingMarkdown
	f.fetcher.fail["https://down.example/jobs"] = &crawler.FetchError{
		Kind: crawler.FetchErrorStatus, URL: "https://down.example/jobs", StatusCode: http.StatusForbidden,
	}

	report, err := f.orchestrator(t, crawler.OrchestratorConfig{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []progress.Stage{
		progress.StageRunStart,
		progress.StageSourceStart,
		progress.StagePageDone,
		progress.StageSourceDone,
		progress.StageSourceStart,
		progress.StagePageError,
		progress.StageSourceError,
		progress.StageRunDone,
	}, rec.stages())

	for _, evt := range rec.events {
		assert.Equal(t, report.RunID, evt.RunID)
		assert.NoError(t, evt.Validate(), evt.Stage)
	}
	assert.Equal(t, "acme.example", rec.events[2].Site)
	assert.Equal(t, progress.Status2xx, rec.events[2].StatusClass)
	assert.Equal(t, 3, rec.events[3].Jobs)
	assert.Equal(t, 3, rec.events[7].Jobs)
}

func TestRunEmitsRunErrorWhenSourcesFail(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := &recordingEmitter{}
	f.deps.Progress = rec
	f.deps.Sources = failingSources{SourceStore: f.store}

	_, err := f.orchestrator(t, crawler.OrchestratorConfig{}).Run(context.Background())
	require.ErrorIs(t, err, crawler.ErrLoadSources)
	assert.Equal(t, []progress.Stage{progress.StageRunStart, progress.StageRunError}, rec.stages())
}
