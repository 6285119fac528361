package crawler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gobwas/glob"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/job-crawler/internal/metrics"
	"github.com/JakeFAU/job-crawler/internal/progress"
	"github.com/JakeFAU/job-crawler/internal/telemetry"
)

// Fingerprint salt modes.
const (
	SaltNone = "none"
	SaltRun  = "run"
)

// OrchestratorConfig tunes a crawl run.
type OrchestratorConfig struct {
	// FetchTimeout bounds a single page fetch.
	FetchTimeout time.Duration
	// InterSourceDelay separates consecutive sources.
	InterSourceDelay time.Duration
	// SourceConcurrency caps sources in flight; values below 2 process sources sequentially.
	SourceConcurrency int
	// MaxPagesPerSource caps search pages per source; 0 means no cap.
	MaxPagesPerSource int
	SearchQueries     []string
	// SourceFilter is a glob matched against lowercased source names.
	SourceFilter string
	// BlockedDomains lists hosts ("example.com", "*.example.com") never crawled.
	BlockedDomains  []string
	FingerprintSalt string
	PublishTopic    string
}

// Deps are the collaborators of an Orchestrator. Limiter, Detector, Archive, Lock,
// Publisher, Runs and Progress are optional. Detector should only be set when the fetcher can render.
type Deps struct {
	Sources    SourceStore
	Fetcher    Fetcher
	Gate       PolitenessGate
	Parsers    ParserRegistry
	Normalizer Normalizer
	Reconciler Reconciler
	Limiter    RateLimiter
	Detector   RenderDetector
	Archive    PageArchiver
	Lock       RunLock
	Publisher  Publisher
	Runs       RunRecorder
	Progress   progress.Emitter
	Clock      Clock
	IDs        IDGenerator
	Logger     *zap.Logger
}

// Orchestrator drives one crawl run across all active sources.
type Orchestrator struct {
	cfg     OrchestratorConfig
	deps    Deps
	filter  glob.Glob
	blocked *hostBlocklist
	state   atomic.Value
	logger  *zap.Logger
}

// NewOrchestrator validates deps and compiles the source filter.
func NewOrchestrator(cfg OrchestratorConfig, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Sources == nil:
		return nil, errors.New("source store is required")
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Gate == nil:
		return nil, errors.New("politeness gate is required")
	case deps.Parsers == nil:
		return nil, errors.New("parser registry is required")
	case deps.Normalizer == nil:
		return nil, errors.New("normalizer is required")
	case deps.Reconciler == nil:
		return nil, errors.New("reconciler is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	switch cfg.FingerprintSalt {
	case "":
		cfg.FingerprintSalt = SaltNone
	case SaltNone, SaltRun:
	default:
		return nil, fmt.Errorf("unknown fingerprint salt mode %q", cfg.FingerprintSalt)
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		blocked: newHostBlocklist(cfg.BlockedDomains),
		logger:  deps.Logger.Named("orchestrator"),
	}
	if f := strings.TrimSpace(cfg.SourceFilter); f != "" {
		g, err := glob.Compile(strings.ToLower(f))
		if err != nil {
			return nil, fmt.Errorf("compile source filter %q: %w", f, err)
		}
		o.filter = g
	}
	o.state.Store(StateIdle)
	return o, nil
}

// State reports the run-level state machine position.
func (o *Orchestrator) State() RunState {
	return o.state.Load().(RunState)
}

func (o *Orchestrator) enter(logger *zap.Logger, state RunState) {
	o.state.Store(state)
	logger.Debug("state transition", zap.String("state", string(state)))
}

// Run executes one crawl. Only a failure to load sources, a held run lock or an ID
// failure returns an error; source-level problems are reported per source.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := o.logger.With(zap.String("run_id", runID))

	if o.deps.Lock != nil {
		ok, err := o.deps.Lock.TryLock(ctx, runID)
		if err != nil {
			return Report{}, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return Report{}, ErrRunInProgress
		}
		defer func() {
			if err := o.deps.Lock.Unlock(context.WithoutCancel(ctx), runID); err != nil {
				logger.Warn("failed to release run lock", zap.Error(err))
			}
		}()
	}

	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()
	defer o.state.Store(StateIdle)

	ctx, span := telemetry.Tracer().Start(ctx, "crawl.run")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", runID))

	started := o.deps.Clock.Now()
	report := Report{RunID: runID, StartedAt: started, Results: []SourceResult{}}
	logger.Info("crawl started")
	o.recordStart(ctx, logger, runID, started)
	o.emit(progress.Event{RunID: runID, TS: started, Stage: progress.StageRunStart})

	o.enter(logger, StateFetchingSources)
	sources, err := o.deps.Sources.ListActiveSources(ctx)
	if err != nil {
		runErr := fmt.Errorf("%w: %w", ErrLoadSources, err)
		logger.Error("failed to load job sources", zap.Error(err))
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		o.finish(ctx, logger, &report, runErr)
		o.emit(progress.Event{RunID: runID, Stage: progress.StageRunError, Note: runErr.Error()})
		return Report{}, runErr
	}
	sources = o.applyFilter(logger, sources)
	logger.Info("loaded job sources", zap.Int("count", len(sources)))

	o.deps.Gate.Reset()
	rs := &runScope{
		runID:  runID,
		salt:   o.salt(runID),
		seen:   make(map[string]struct{}),
		logger: logger,
	}
	report.Results = o.processSources(ctx, rs, sources)

	o.enter(logger, StateCleanup)
	cleaned, err := o.deps.Reconciler.Cleanup(ctx, o.deps.Clock.Now())
	if err != nil {
		logger.Error("cleanup failed", zap.Error(err))
		cleaned = 0
	}
	metrics.ObserveCleanup(cleaned)
	report.CleanupCount = cleaned

	for _, res := range report.Results {
		report.TotalJobsFound += res.JobsFound
		if res.Stats != nil {
			report.Stats.Add(*res.Stats)
		}
	}
	report.Success = true
	report.Message = fmt.Sprintf("Successfully processed %d job sources", len(sources))
	o.enter(logger, StateDone)
	o.finish(ctx, logger, &report, nil)
	o.emit(progress.Event{
		RunID: runID,
		TS:    report.FinishedAt,
		Stage: progress.StageRunDone,
		Jobs:  report.TotalJobsFound,
		Dur:   report.FinishedAt.Sub(report.StartedAt),
	})
	span.SetAttributes(attribute.Int("jobs.found", report.TotalJobsFound))
	logger.Info("crawl finished",
		zap.Int("sources", len(sources)),
		zap.Int("total_jobs_found", report.TotalJobsFound),
		zap.Int64("cleanup_count", report.CleanupCount),
		zap.Int64("execution_time_ms", report.ExecutionTimeMs),
	)

	if o.deps.Publisher != nil {
		if _, err := o.deps.Publisher.Publish(ctx, o.cfg.PublishTopic, report); err != nil {
			logger.Warn("failed to publish crawl report", zap.Error(err))
		}
	}
	return report, nil
}

// emit forwards evt to the progress hub, stamping it with the clock when unset.
func (o *Orchestrator) emit(evt progress.Event) {
	if o.deps.Progress == nil {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = o.deps.Clock.Now()
	}
	o.deps.Progress.Emit(evt)
}

func (o *Orchestrator) recordStart(ctx context.Context, logger *zap.Logger, runID string, at time.Time) {
	if o.deps.Runs == nil {
		return
	}
	if err := o.deps.Runs.RunStarted(ctx, runID, at); err != nil {
		logger.Warn("failed to record run start", zap.Error(err))
	}
}

func (o *Orchestrator) finish(ctx context.Context, logger *zap.Logger, report *Report, runErr error) {
	report.FinishedAt = o.deps.Clock.Now()
	elapsed := report.FinishedAt.Sub(report.StartedAt)
	report.ExecutionTimeMs = elapsed.Milliseconds()
	metrics.ObserveRun(runErr == nil, elapsed)
	if o.deps.Runs == nil {
		return
	}
	if err := o.deps.Runs.RunFinished(context.WithoutCancel(ctx), *report, runErr); err != nil {
		logger.Warn("failed to record run result", zap.Error(err))
	}
}

func (o *Orchestrator) applyFilter(logger *zap.Logger, sources []JobSource) []JobSource {
	if o.filter == nil {
		return sources
	}
	kept := sources[:0:0]
	for _, src := range sources {
		if o.filter.Match(strings.ToLower(src.Name)) {
			kept = append(kept, src)
			continue
		}
		logger.Debug("source excluded by filter", zap.String("source", src.Name))
	}
	return kept
}

func (o *Orchestrator) salt(runID string) string {
	if o.cfg.FingerprintSalt != SaltRun {
		return ""
	}
	compact := strings.ReplaceAll(runID, "-", "")
	if len(compact) > 12 {
		compact = compact[len(compact)-12:]
	}
	return compact
}

// runScope holds state shared by every source of one run.
type runScope struct {
	runID  string
	salt   string
	mu     sync.Mutex
	seen   map[string]struct{}
	logger *zap.Logger
}

// claim reports whether fingerprint is new within the run.
func (rs *runScope) claim(fingerprint string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, dup := rs.seen[fingerprint]; dup {
		return false
	}
	rs.seen[fingerprint] = struct{}{}
	return true
}

func (o *Orchestrator) processSources(ctx context.Context, rs *runScope, sources []JobSource) []SourceResult {
	results := make([]SourceResult, len(sources))
	if o.cfg.SourceConcurrency < 2 {
		for i, src := range sources {
			if i > 0 {
				if err := SleepContext(ctx, o.cfg.InterSourceDelay); err != nil {
					o.cancelRemaining(results[i:], sources[i:], err)
					break
				}
			}
			results[i] = o.processSource(ctx, rs, src)
		}
		return results
	}

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.SourceConcurrency)
	for i, src := range sources {
		if i > 0 {
			if err := SleepContext(ctx, o.cfg.InterSourceDelay); err != nil {
				o.cancelRemaining(results[i:], sources[i:], err)
				break
			}
		}
		g.Go(func() error {
			results[i] = o.processSource(ctx, rs, src)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) cancelRemaining(results []SourceResult, sources []JobSource, err error) {
	for i, src := range sources {
		results[i] = SourceResult{Source: src.Name, Error: "crawl cancelled: " + err.Error()}
	}
}

// processSource never returns an error: every failure lands in the result entry.
func (o *Orchestrator) processSource(ctx context.Context, rs *runScope, src JobSource) SourceResult {
	logger := rs.logger.With(zap.String("source", src.Name), zap.String("source_id", src.ID))
	ctx, span := telemetry.Tracer().Start(ctx, "crawl.source")
	defer span.End()
	span.SetAttributes(attribute.String("source.name", src.Name))

	stats := &CrawlStats{}
	started := o.deps.Clock.Now()
	o.emit(progress.Event{RunID: rs.runID, TS: started, Stage: progress.StageSourceStart, Source: src.Name})
	fail := func(outcome string, err error) SourceResult {
		o.enter(logger, StateSourceFailed)
		logger.Warn("source failed", zap.String("reason", err.Error()))
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveSource(outcome)
		o.emit(progress.Event{
			RunID:  rs.runID,
			Stage:  progress.StageSourceError,
			Source: src.Name,
			Dur:    o.deps.Clock.Now().Sub(started),
			Note:   err.Error(),
		})
		return SourceResult{Source: src.Name, Error: err.Error(), Stats: stats}
	}

	o.enter(logger, StateCheckPoliteness)
	if o.blocked.blocksURL(src.BaseURL) {
		return fail("blocked", fmt.Errorf("domain of %s is blocked by configuration", src.BaseURL))
	}
	decision, err := o.deps.Gate.Allowed(ctx, src.BaseURL)
	if err != nil {
		return fail("failed", fmt.Errorf("robots.txt check failed: %w", err))
	}
	if !decision.Allowed {
		return fail("denied", errors.New(decision.Reason))
	}

	strategy := o.deps.Parsers.Lookup(src.Name)
	urls, invalid := uniquePageURLs(strategy.SearchURLs(src.BaseURL, o.cfg.SearchQueries))
	for _, raw := range invalid {
		logger.Warn("skipping invalid search url", zap.String("url", raw))
	}
	if o.cfg.MaxPagesPerSource > 0 && len(urls) > o.cfg.MaxPagesPerSource {
		urls = urls[:o.cfg.MaxPagesPerSource]
	}
	logger.Debug("crawling source", zap.String("strategy", strategy.Name()), zap.Int("pages", len(urls)))

	var (
		jobs     []NormalizedJob
		lastErr  error
		parseErr error
		digests  = make(map[uint64]struct{})
	)
	for _, pageURL := range urls {
		if err := ctx.Err(); err != nil {
			return fail("failed", fmt.Errorf("crawl cancelled: %w", err))
		}
		o.enter(logger, StateFetching)
		pages, err := o.fetchPages(ctx, rs, logger, src, strategy, pageURL, stats)
		if err != nil {
			lastErr = err
			continue
		}
		for _, page := range pages {
			digest := xxhash.Sum64String(page.Content)
			if _, dup := digests[digest]; dup {
				logger.Debug("skipping repeated page content", zap.String("url", page.URL))
				continue
			}
			digests[digest] = struct{}{}
			o.archive(ctx, logger, rs.runID, src.Name, page, digest)

			o.enter(logger, StateParsing)
			records, err := o.parse(strategy, page, src.Name)
			if err == nil && len(records) == 0 {
				records, err = o.promote(ctx, rs, logger, src, strategy, page, stats)
			}
			if err != nil {
				stats.FailedRequests++
				parseErr = err
				logger.Error("parser failed", zap.String("url", page.URL), zap.Error(err))
				continue
			}

			o.enter(logger, StateNormalizing)
			jobs = append(jobs, o.normalize(logger, rs, src.Name, records, stats)...)
		}
	}

	if stats.TotalRequests > 0 && stats.SuccessfulRequests == 0 {
		return fail("failed", fmt.Errorf("all %d page fetches failed: %w", stats.TotalRequests, lastErr))
	}
	if parseErr != nil && len(jobs) == 0 {
		return fail("failed", parseErr)
	}

	o.enter(logger, StatePersisting)
	persisted := o.deps.Reconciler.Persist(ctx, jobs)
	metrics.ObserveJobs("inserted", persisted.Inserted)
	metrics.ObserveJobs("updated", persisted.Updated)
	metrics.ObserveJobs("duplicate", persisted.Duplicates)
	metrics.ObserveJobs("failed", persisted.Failed)

	if err := o.deps.Sources.MarkSourceCrawled(ctx, src.ID, o.deps.Clock.Now()); err != nil {
		logger.Warn("failed to update last_crawled_at", zap.Error(err))
	}
	metrics.ObserveSource("success")
	o.emit(progress.Event{
		RunID:  rs.runID,
		Stage:  progress.StageSourceDone,
		Source: src.Name,
		Jobs:   persisted.Saved(),
		Dur:    o.deps.Clock.Now().Sub(started),
	})
	logger.Info("source crawled",
		zap.Int("jobs_found", persisted.Saved()),
		zap.Int("inserted", persisted.Inserted),
		zap.Int("updated", persisted.Updated),
		zap.Int("duplicates", persisted.Duplicates),
		zap.Int("failed", persisted.Failed),
		zap.Int("requests", stats.TotalRequests),
	)
	return SourceResult{
		Source:    src.Name,
		JobsFound: persisted.Saved(),
		Success:   true,
		Stats:     stats,
		Inserted:  persisted.Inserted,
		Updated:   persisted.Updated,
		Failed:    persisted.Failed,
	}
}

func (o *Orchestrator) fetchPages(
	ctx context.Context,
	rs *runScope,
	logger *zap.Logger,
	src JobSource,
	strategy Strategy,
	pageURL string,
	stats *CrawlStats,
) ([]Page, error) {
	return o.fetch(ctx, rs.runID, logger, FetchRequest{
		URL:     pageURL,
		Source:  src.Name,
		Timeout: o.cfg.FetchTimeout,
		Render:  strategy.Render(),
	}, stats)
}

func (o *Orchestrator) fetch(
	ctx context.Context,
	runID string,
	logger *zap.Logger,
	req FetchRequest,
	stats *CrawlStats,
) ([]Page, error) {
	stats.TotalRequests++
	if o.deps.Limiter != nil {
		if err := o.deps.Limiter.Wait(ctx, req.URL); err != nil {
			stats.FailedRequests++
			return nil, err
		}
	}
	site := metrics.SanitizeSite(req.URL)
	begin := time.Now()
	resp, err := o.deps.Fetcher.Fetch(ctx, req)
	if err != nil {
		stats.FailedRequests++
		metrics.ObservePage(req.URL, "error", 0)
		o.emit(progress.Event{
			RunID:  runID,
			Stage:  progress.StagePageError,
			Source: req.Source,
			Site:   site,
			URL:    req.URL,
			Dur:    time.Since(begin),
			Note:   err.Error(),
		})
		logger.Warn("page fetch failed", zap.String("url", req.URL), zap.Bool("render", req.Render), zap.Error(err))
		return nil, err
	}
	stats.SuccessfulRequests++
	elapsed := time.Since(begin)
	for _, page := range resp.Pages {
		metrics.ObservePage(page.URL, strconv.Itoa(page.StatusCode), len(page.Content))
		o.emit(progress.Event{
			RunID:       runID,
			Stage:       progress.StagePageDone,
			Source:      req.Source,
			Site:        site,
			URL:         page.URL,
			Bytes:       int64(len(page.Content)),
			StatusClass: progress.ClassifyStatus(page.StatusCode),
			Dur:         elapsed,
		})
	}
	logger.Debug("page fetched",
		zap.String("url", req.URL),
		zap.Int("pages", len(resp.Pages)),
		zap.Bool("managed", resp.UsedManaged),
		zap.Bool("render", resp.UsedRender),
		zap.Int("attempts", resp.Attempts),
		zap.Duration("duration", resp.Duration),
	)
	return resp.Pages, nil
}

// promote re-fetches a record-less script shell through the render path.
func (o *Orchestrator) promote(
	ctx context.Context,
	rs *runScope,
	logger *zap.Logger,
	src JobSource,
	strategy Strategy,
	page Page,
	stats *CrawlStats,
) ([]RawJobRecord, error) {
	if o.deps.Detector == nil || strategy.Render() || !o.deps.Detector.ShouldRender(page) {
		return nil, nil
	}
	logger.Info("page looks client-rendered; retrying with headless fetch", zap.String("url", page.URL))
	pages, err := o.fetch(ctx, rs.runID, logger, FetchRequest{
		URL:     page.URL,
		Source:  src.Name,
		Timeout: o.cfg.FetchTimeout,
		Render:  true,
	}, stats)
	if err != nil {
		// The direct fetch already succeeded; an empty page is not a source failure.
		return nil, nil
	}
	var records []RawJobRecord
	for _, rendered := range pages {
		recs, err := o.parse(strategy, rendered, src.Name)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

// parse drains the strategy's sequence, turning a panic into an error.
func (o *Orchestrator) parse(strategy Strategy, page Page, source string) (records []RawJobRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			records = nil
			err = fmt.Errorf("parser %s panicked on %s: %v", strategy.Name(), page.URL, r)
		}
	}()
	return collect(strategy.Extract(page, source)), nil
}

func collect(seq iter.Seq[RawJobRecord]) []RawJobRecord {
	var out []RawJobRecord
	for rec := range seq {
		out = append(out, rec)
	}
	return out
}

func (o *Orchestrator) normalize(
	logger *zap.Logger,
	rs *runScope,
	source string,
	records []RawJobRecord,
	stats *CrawlStats,
) []NormalizedJob {
	jobs := make([]NormalizedJob, 0, len(records))
	for _, rec := range records {
		job, err := o.deps.Normalizer.Normalize(rec, source, rs.salt)
		if err != nil {
			logger.Debug("record rejected", zap.String("title", rec.Title), zap.Error(err))
			continue
		}
		stats.JobsExtracted++
		if !rs.claim(job.Fingerprint) {
			stats.DuplicatesSkipped++
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func (o *Orchestrator) archive(ctx context.Context, logger *zap.Logger, runID, source string, page Page, digest uint64) {
	if o.deps.Archive == nil {
		return
	}
	uri, err := o.deps.Archive.Save(ctx, runID, source, page, digest)
	if err != nil {
		logger.Warn("failed to archive page", zap.String("url", page.URL), zap.Error(err))
		return
	}
	logger.Debug("archived page", zap.String("url", page.URL), zap.String("uri", uri))
}
