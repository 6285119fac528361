package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-crawler/internal/config"
	"github.com/JakeFAU/job-crawler/internal/crawler"
	"github.com/JakeFAU/job-crawler/internal/scheduler"
	"github.com/JakeFAU/job-crawler/internal/server"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use, so tests can inject a fake.
type App interface {
	Logger() *zap.Logger
	Serve(ctx context.Context) error
	Crawl(ctx context.Context) (crawler.Report, error)
	Schedule(ctx context.Context) scheduler.Response
	Sources() server.SourceStore
	Close(ctx context.Context) error
}

// builtApp adapts *server.App to App.
type builtApp struct {
	*server.App
}

func (b builtApp) Serve(ctx context.Context) error { return b.Run(ctx) }

func (b builtApp) Crawl(ctx context.Context) (crawler.Report, error) {
	return b.Orchestrator().Run(ctx)
}

func (b builtApp) Schedule(ctx context.Context) scheduler.Response {
	return b.Scheduler().Check(ctx)
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, path string) (App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return builtApp{app}, nil
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobcrawler",
		Short: "Crawls job portals into a deduplicated job database.",
		Long: `jobcrawler fetches listing pages from every active job source, extracts
postings with per-portal parsers, normalizes and fingerprints them, and
reconciles them into the jobs table. It runs as an HTTP service (serve) or
as a one-shot command (crawl, schedule).`,
		SilenceUsage: true,

		// Runs after flags are parsed but before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations["skipApp"] == "true" {
				return nil
			}
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				return appInstance.Close(context.WithoutCancel(cmd.Context()))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env JOBCRAWLER_* overrides apply either way)")

	cmd.AddCommand(newServeCmd(), newCrawlCmd(), newScheduleCmd(), newSeedCmd(), newVersionCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "jobcrawler: %v\n", err)
		os.Exit(1)
	}
}
