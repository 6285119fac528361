package store

import (
	"context"
	"time"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = crawler.ErrNotFound

// RunStatus mirrors the crawl_runs status column.
type RunStatus string

// Run statuses persisted in crawl_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// ParseRunStatus validates a status filter.
func ParseRunStatus(s string) (RunStatus, bool) {
	switch RunStatus(s) {
	case RunRunning, RunSuccess, RunError:
		return RunStatus(s), true
	default:
		return "", false
	}
}

// CrawlRun models one row of crawl_runs.
type CrawlRun struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     *time.Time
	Status         RunStatus
	ErrorMessage   *string
	TotalJobsFound int
	CleanupCount   int64
	Message        string
}

// SourceRun captures the per-source outcome of a run.
type SourceRun struct {
	RunID     string
	Source    string
	Success   bool
	JobsFound int
	Inserted  int
	Updated   int
	Failed    int
	Error     string
	Stats     crawler.CrawlStats
}

// RunRepository persists crawl run history.
type RunRepository interface {
	// RunStarted records a running row for runID.
	RunStarted(ctx context.Context, runID string, at time.Time) error
	// RunFinished closes the run and stores the per-source results of report.
	RunFinished(ctx context.Context, report crawler.Report, runErr error) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, runID string) (CrawlRun, error)
	// ListRuns returns runs newest first, filtered by an optional status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]CrawlRun, error)
	// ListRunSources returns the per-source results of one run.
	ListRunSources(ctx context.Context, runID string) ([]SourceRun, error)
}

// SourceRuns flattens the per-source results of a report.
func SourceRuns(report crawler.Report) []SourceRun {
	out := make([]SourceRun, 0, len(report.Results))
	for _, res := range report.Results {
		sr := SourceRun{
			RunID:     report.RunID,
			Source:    res.Source,
			Success:   res.Success,
			JobsFound: res.JobsFound,
			Inserted:  res.Inserted,
			Updated:   res.Updated,
			Failed:    res.Failed,
			Error:     res.Error,
		}
		if res.Stats != nil {
			sr.Stats = *res.Stats
		}
		out = append(out, sr)
	}
	return out
}

// StatusOf maps a finished report to its persisted status.
func StatusOf(report crawler.Report, runErr error) RunStatus {
	if runErr != nil || !report.Success {
		return RunError
	}
	return RunSuccess
}
