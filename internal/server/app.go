// Package server builds the application's dependency graph and runs the HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-crawler/internal/api"
	"github.com/JakeFAU/job-crawler/internal/clock/system"
	"github.com/JakeFAU/job-crawler/internal/config"
	"github.com/JakeFAU/job-crawler/internal/crawler"
	"github.com/JakeFAU/job-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/job-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/job-crawler/internal/fetcher/detector"
	"github.com/JakeFAU/job-crawler/internal/fetcher/firecrawl"
	headlessfetcher "github.com/JakeFAU/job-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/job-crawler/internal/fetcher/useragent"
	"github.com/JakeFAU/job-crawler/internal/hash/sha256"
	"github.com/JakeFAU/job-crawler/internal/id/uuid"
	"github.com/JakeFAU/job-crawler/internal/lock"
	"github.com/JakeFAU/job-crawler/internal/logging"
	"github.com/JakeFAU/job-crawler/internal/metrics"
	"github.com/JakeFAU/job-crawler/internal/normalize"
	"github.com/JakeFAU/job-crawler/internal/parser"
	"github.com/JakeFAU/job-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/job-crawler/internal/progress"
	"github.com/JakeFAU/job-crawler/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/job-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/job-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/job-crawler/internal/reconcile"
	"github.com/JakeFAU/job-crawler/internal/robots"
	"github.com/JakeFAU/job-crawler/internal/scheduler"
	archive "github.com/JakeFAU/job-crawler/internal/storage"
	gcsstorage "github.com/JakeFAU/job-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/job-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/job-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/job-crawler/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/job-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/job-crawler/internal/store"
	"github.com/JakeFAU/job-crawler/internal/telemetry"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// SourceStore is the source and job persistence shared by every database driver.
type SourceStore interface {
	crawler.SourceStore
	crawler.JobStore
	UpsertSource(ctx context.Context, src crawler.JobSource) (crawler.JobSource, error)
}

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	sources      SourceStore
	runs         store.RunRepository
	ready        api.Pinger
	orchestrator *crawler.Orchestrator
	gate         *scheduler.Gate
	trigger      *scheduler.Trigger
	apiServer    *api.Server

	headless       *headlessfetcher.Fetcher
	progress       *progress.Hub
	gcsClient      *storage.Client
	redisClient    *redis.Client
	closeDB        func() error
	closePublisher func() error
	tracerShutdown func(context.Context) error
	closeOnce      sync.Once
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("publisher_driver", cfg.Publisher.Driver),
		zap.String("archive_driver", cfg.Archive.Driver),
		zap.String("version", Version),
	)

	built := false
	defer func() {
		if !built {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName, Version)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.tracerShutdown = tp.Shutdown
	}

	if err := setupDatabase(ctx, app); err != nil {
		return nil, err
	}
	blobs, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	runLock, err := setupLock(ctx, app)
	if err != nil {
		return nil, err
	}
	fetch, detect := setupFetcher(app)
	if err := setupProgress(app); err != nil {
		return nil, err
	}

	if err := setupOrchestrator(app, fetch, detect, blobs, publisher, runLock); err != nil {
		return nil, err
	}

	app.gate = scheduler.New(
		scheduler.Config{MinInterval: cfg.Scheduler.MinInterval},
		app.sources,
		app.orchestrator,
		system.New(),
		logger.Named("scheduler"),
	)
	if cfg.Scheduler.Cron != "" {
		app.trigger, err = scheduler.NewTrigger(cfg.Scheduler.Cron, app.gate, logger.Named("cron"))
		if err != nil {
			return nil, fmt.Errorf("cron trigger init failed: %w", err)
		}
	}

	app.apiServer = api.NewServer(
		app.orchestrator,
		app.gate,
		app.runs,
		app.ready,
		api.Options{
			Auth:           cfg.Auth,
			RequestTimeout: cfg.Server.RequestTimeout,
			CrawlTimeout:   cfg.Server.CrawlTimeout,
		},
		logger.Named("api"),
	)
	built = true
	return app, nil
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Orchestrator returns the crawl orchestrator.
func (a *App) Orchestrator() *crawler.Orchestrator { return a.orchestrator }

// Scheduler returns the interval-gated crawl trigger.
func (a *App) Scheduler() *scheduler.Gate { return a.gate }

// Sources returns the configured source and job store.
func (a *App) Sources() SourceStore { return a.sources }

// Handler returns the HTTP handler of the API server.
func (a *App) Handler() http.Handler { return a.apiServer.Handler() }

// Run serves HTTP (and the cron trigger when configured) until ctx is canceled or a
// termination signal arrives, then shuts down.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.trigger != nil {
		if err := a.trigger.Start(ctx); err != nil {
			return fmt.Errorf("start cron trigger: %w", err)
		}
		a.logger.Info("cron trigger started", zap.String("spec", a.cfg.Scheduler.Cron))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	closeErr := a.Close(shutdownCtx)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return closeErr
	}
}

// Close releases every resource Build acquired. It is safe on a partially built App
// and only the first call has an effect.
func (a *App) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		if a.trigger != nil {
			a.trigger.Stop()
		}
		if a.headless != nil {
			a.headless.Close()
		}
		if a.progress != nil {
			if err := a.progress.Close(ctx); err != nil {
				a.logger.Warn("progress hub close failed", zap.Error(err))
			}
		}
		a.closeInfrastructure()
		a.logger.Info("shutdown complete")
		a.closeObservability(ctx)
	})
	return nil
}

func (a *App) closeInfrastructure() {
	if a.closePublisher != nil {
		if err := a.closePublisher(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("redis client close failed", zap.Error(err))
		}
	}
	if a.closeDB != nil {
		if err := a.closeDB(); err != nil {
			a.logger.Warn("database close failed", zap.Error(err))
		}
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Sync fails on non-file stderr; nothing useful can be done about it.
	_ = a.logger.Sync()
}

func setupDatabase(ctx context.Context, app *App) error {
	cfg := app.cfg.DB
	switch cfg.Driver {
	case "postgres":
		pg, err := pgstore.New(ctx, pgstore.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		app.closeDB = func() error { pg.Close(); return nil }
		if cfg.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("postgres migrate failed: %w", err)
			}
		}
		app.sources, app.runs, app.ready = pg, pg.Runs(), pg
		app.logger.Info("using postgres store", zap.Int32("max_conns", cfg.MaxConns))
	case "sqlite":
		sq, err := sqlitestore.New(sqlitestore.Config{Path: cfg.SQLitePath})
		if err != nil {
			return fmt.Errorf("sqlite store init failed: %w", err)
		}
		app.closeDB = sq.Close
		app.sources, app.runs, app.ready = sq, sq, sq
		app.logger.Info("using sqlite store", zap.String("path", cfg.SQLitePath))
	default:
		app.logger.Warn("using in-memory store; jobs are lost on restart")
		app.sources = memorystorage.NewStore()
		app.runs = memorystorage.NewRunStore()
	}
	return nil
}

func setupArchive(ctx context.Context, app *App) (crawler.PageArchiver, error) {
	cfg := app.cfg.Archive
	var blobs crawler.BlobStore
	switch cfg.Driver {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.gcsClient = client
		blobs, err = gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("archiving pages to GCS", zap.String("bucket", cfg.GCSBucket))
	case "local":
		local, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		blobs = local
		app.logger.Info("archiving pages to disk", zap.String("path", cfg.BaseDir))
	case "memory":
		blobs = memorystorage.NewBlobStore()
		app.logger.Info("archiving pages in memory")
	default:
		app.logger.Info("page archive disabled")
		return nil, nil
	}
	pages, err := archive.NewArchive(blobs)
	if err != nil {
		return nil, fmt.Errorf("page archive init failed: %w", err)
	}
	return pages, nil
}

func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, error) {
	cfg := app.cfg.Publisher
	switch cfg.Driver {
	case "pubsub":
		pub, closer, err := gcppublisher.NewClient(ctx, cfg.ProjectID, cfg.Topic)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.closePublisher = closer
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", cfg.ProjectID),
			zap.String("topic", cfg.Topic),
		)
		return pub, nil
	case "memory":
		app.logger.Info("using in-memory publisher")
		return memorypublisher.New(), nil
	default:
		app.logger.Info("completion events disabled")
		return nil, nil
	}
}

func setupProgress(app *App) error {
	cfg := app.cfg.Progress
	if !cfg.Enabled {
		app.logger.Info("progress events disabled")
		return nil
	}
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return fmt.Errorf("progress prometheus sink init failed: %w", err)
	}
	app.progress = progress.NewHub(progress.Config{
		BufferSize:     cfg.BufferSize,
		MaxBatchEvents: cfg.MaxBatchEvents,
		MaxBatchWait:   cfg.MaxBatchWait,
		Logger:         app.logger.Named("progress"),
	}, sinks.NewLogSink(app.logger.Named("progress")), promSink)
	return nil
}

func setupLock(ctx context.Context, app *App) (crawler.RunLock, error) {
	cfg := app.cfg.Lock
	if cfg.RedisURL == "" {
		return lock.NewLocal(), nil
	}
	client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis client init failed: %w", err)
	}
	app.redisClient = client
	l, err := lock.NewRedis(client, cfg.Key, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("redis lock init failed: %w", err)
	}
	app.logger.Info("using redis run lock", zap.String("key", cfg.Key), zap.Duration("ttl", cfg.TTL))
	return l, nil
}

// setupFetcher layers the managed crawler, the headless renderer and the direct colly
// fetcher behind one retrying router. The shell detector is only returned when a
// renderer exists to promote pages to.
func setupFetcher(app *App) (crawler.Fetcher, crawler.RenderDetector) {
	cfg := app.cfg
	agents := useragent.New(cfg.Crawler.Agents())
	direct := collyfetcher.New(collyfetcher.Config{
		Timeout:      cfg.Crawler.FetchTimeout,
		MaxBodyBytes: cfg.Crawler.MaxBodyBytes,
	}, agents)
	app.logger.Info("using colly fetcher", zap.Int("user_agents", agents.Len()))

	var managed crawler.Fetcher
	if firecrawl.Configured(cfg.Firecrawl.APIKey) {
		client, err := firecrawl.New(firecrawl.Config{
			APIKey:       cfg.Firecrawl.APIKey,
			BaseURL:      cfg.Firecrawl.BaseURL,
			Limit:        cfg.Firecrawl.Limit,
			Timeout:      cfg.Firecrawl.Timeout,
			PollInterval: cfg.Firecrawl.PollInterval,
			MaxWait:      cfg.Firecrawl.MaxWait,
		}, &http.Client{Timeout: cfg.Firecrawl.Timeout})
		if err != nil {
			app.logger.Warn("managed crawler init failed; using direct fetches", zap.Error(err))
		} else {
			managed = client
			app.logger.Info("using managed crawler", zap.String("base_url", cfg.Firecrawl.BaseURL))
		}
	}

	var render crawler.Fetcher
	var detect crawler.RenderDetector
	if cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			NavigationTimeout: cfg.Headless.NavTimeout,
			SettleDelay:       cfg.Headless.SettleDelay,
		}, agents)
		if err != nil {
			app.logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			app.headless = hf
			render = hf
			detect = detector.NewShell(cfg.Headless.ShellMinChars)
			app.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}

	router := fetcher.NewRouter(direct, managed, render, app.logger.Named("router"))
	policy := crawler.NewExponentialRetryPolicy(cfg.Crawler.RetryCount+1, cfg.Crawler.RetryBaseDelay, cfg.Crawler.RetryMaxDelay)
	return fetcher.NewRetrying(router, policy, app.logger.Named("retry")), detect
}

func setupOrchestrator(
	app *App,
	fetch crawler.Fetcher,
	detect crawler.RenderDetector,
	pages crawler.PageArchiver,
	publisher crawler.Publisher,
	runLock crawler.RunLock,
) error {
	cfg := app.cfg
	clock := system.New()

	mode, err := reconcile.ParseMode(cfg.Crawler.ReconcileMode)
	if err != nil {
		return fmt.Errorf("reconcile mode: %w", err)
	}
	reconciler, err := reconcile.New(reconcile.Config{
		Mode:          mode,
		RetentionDays: cfg.Crawler.RetentionDays,
	}, app.sources, app.logger.Named("reconcile"))
	if err != nil {
		return fmt.Errorf("reconciler init failed: %w", err)
	}

	gate := robots.NewGate(robots.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.Crawler.RobotsTimeout,
		Disabled:  cfg.Crawler.IgnoreRobots,
	}, &http.Client{Timeout: cfg.Crawler.RobotsTimeout}, app.logger.Named("robots"))
	if cfg.Crawler.IgnoreRobots {
		app.logger.Warn("robots.txt enforcement disabled")
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.DefaultRPS,
		DefaultBurst: 1,
		DomainRPS:    cfg.Crawler.DomainRPS,
	})

	deps := crawler.Deps{
		Sources: app.sources,
		Fetcher: fetch,
		Gate:    gate,
		Parsers: parser.Default(),
		Normalizer: normalize.New(normalize.Config{
			DefaultLocation: cfg.Crawler.DefaultLocation,
			RetentionDays:   cfg.Crawler.RetentionDays,
		}, sha256.New(), clock),
		Reconciler: reconciler,
		Limiter:    limiter,
		Detector:   detect,
		Archive:    pages,
		Lock:       runLock,
		Publisher:  publisher,
		Runs:       app.runs,
		Clock:      clock,
		IDs:        uuid.New(),
		Logger:     app.logger.Named("crawler"),
	}
	if app.progress != nil {
		deps.Progress = app.progress
	}

	app.orchestrator, err = crawler.NewOrchestrator(crawler.OrchestratorConfig{
		FetchTimeout:      cfg.Crawler.FetchTimeout,
		InterSourceDelay:  cfg.Crawler.InterSourceDelay,
		SourceConcurrency: cfg.Crawler.SourceConcurrency,
		MaxPagesPerSource: cfg.Crawler.MaxPagesPerSource,
		SearchQueries:     cfg.Crawler.SearchQueries,
		SourceFilter:      cfg.Crawler.SourceFilter,
		BlockedDomains:    cfg.Crawler.BlockedDomains,
		FingerprintSalt:   cfg.Crawler.FingerprintSalt,
		PublishTopic:      cfg.Publisher.Topic,
	}, deps)
	if err != nil {
		return fmt.Errorf("orchestrator init failed: %w", err)
	}
	return nil
}
