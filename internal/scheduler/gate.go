// Package scheduler decides whether enough time has passed to start another crawl and
// optionally triggers that check on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

const (
	defaultMinInterval = 12 * time.Hour
	// assumedElapsed stands in for the elapsed time when no source was ever crawled.
	assumedElapsed = 24 * time.Hour
)

// Crawler runs one crawl.
type Crawler interface {
	Run(ctx context.Context) (crawler.Report, error)
}

// Config tunes the gate.
type Config struct {
	// MinInterval is the minimum time between crawls.
	MinInterval time.Duration
}

// Response is the scheduler's reply; skipped checks carry NextCrawlIn, executed ones CrawlerResult.
type Response struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message,omitempty"`
	NextCrawlIn   string          `json:"nextCrawlIn,omitempty"`
	CrawlerResult *crawler.Report `json:"crawlerResult,omitempty"`
	ScheduledAt   *time.Time      `json:"scheduledAt,omitempty"`
	Error         string          `json:"error,omitempty"`
	// Ran reports whether the crawl was invoked.
	Ran bool `json:"-"`
}

// Gate runs the crawl only when the latest crawl is old enough.
type Gate struct {
	cfg     Config
	sources crawler.SourceStore
	crawl   Crawler
	clock   crawler.Clock
	logger  *zap.Logger
}

// New builds a Gate.
func New(cfg Config, sources crawler.SourceStore, crawl Crawler, clock crawler.Clock, logger *zap.Logger) *Gate {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = defaultMinInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{cfg: cfg, sources: sources, crawl: crawl, clock: clock, logger: logger.Named("scheduler")}
}

// Check compares the latest last_crawled_at with the interval and crawls when it is due.
// Check does not return an error; failures are reported with Success false.
func (g *Gate) Check(ctx context.Context) Response {
	latest, err := g.sources.LatestCrawl(ctx)
	if err != nil {
		g.logger.Error("failed to check last crawl time", zap.Error(err))
		return Response{Error: "Failed to check last crawl time"}
	}

	now := g.clock.Now()
	elapsed := assumedElapsed
	if latest != nil {
		elapsed = now.Sub(*latest)
	}
	hours := elapsed.Hours()

	if elapsed < g.cfg.MinInterval {
		remaining := (g.cfg.MinInterval - elapsed).Hours()
		g.logger.Info("too soon to crawl", zap.Float64("hours_since_last_crawl", hours))
		return Response{
			Success:     true,
			Message:     fmt.Sprintf("Skipped crawl. Last crawl was %.1f hours ago", hours),
			NextCrawlIn: fmt.Sprintf("%.1f hours", remaining),
		}
	}

	g.logger.Info("starting scheduled crawl", zap.Float64("hours_since_last_crawl", hours))
	report, err := g.crawl.Run(ctx)
	if err != nil {
		g.logger.Error("scheduled crawl failed", zap.Error(err))
		return Response{Error: err.Error(), Ran: true}
	}
	g.logger.Info("scheduled crawl completed", zap.String("run_id", report.RunID))
	return Response{
		Success:       true,
		Message:       "Scheduled job crawl completed",
		CrawlerResult: &report,
		ScheduledAt:   &now,
		Ran:           true,
	}
}
