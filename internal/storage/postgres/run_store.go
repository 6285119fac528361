package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/job-crawler/internal/crawler"
	"github.com/JakeFAU/job-crawler/internal/store"
)

// RunStore implements store.RunRepository on the crawl_runs tables.
type RunStore struct {
	pool pool
}

// Runs returns a run history repository sharing the store's pool.
func (s *Store) Runs() *RunStore {
	return &RunStore{pool: s.pool}
}

// RunStarted inserts a running row; repeated calls leave the row untouched.
func (s *RunStore) RunStarted(ctx context.Context, runID string, at time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, runID, at, store.RunRunning); err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RunFinished closes the run row and upserts one crawl_run_sources row per source.
func (s *RunStore) RunFinished(ctx context.Context, report crawler.Report, runErr error) error {
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}
	query := `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, error_message = $3,
			total_jobs_found = $4, cleanup_count = $5, message = $6
		WHERE id = $7;
	`
	tag, err := s.pool.Exec(ctx, query,
		report.FinishedAt,
		store.StatusOf(report, runErr),
		errMsg,
		report.TotalJobsFound,
		report.CleanupCount,
		report.Message,
		report.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", report.RunID, store.ErrNotFound)
	}

	sourceQuery := `
		INSERT INTO crawl_run_sources (
			run_id, source, success, jobs_found, inserted, updated, failed, error,
			total_requests, successful_requests, failed_requests, jobs_extracted, duplicates_skipped
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id, source) DO UPDATE
		SET success = EXCLUDED.success, jobs_found = EXCLUDED.jobs_found,
			inserted = EXCLUDED.inserted, updated = EXCLUDED.updated, failed = EXCLUDED.failed,
			error = EXCLUDED.error, total_requests = EXCLUDED.total_requests,
			successful_requests = EXCLUDED.successful_requests, failed_requests = EXCLUDED.failed_requests,
			jobs_extracted = EXCLUDED.jobs_extracted, duplicates_skipped = EXCLUDED.duplicates_skipped;
	`
	for _, sr := range store.SourceRuns(report) {
		_, err := s.pool.Exec(ctx, sourceQuery,
			sr.RunID, sr.Source, sr.Success, sr.JobsFound, sr.Inserted, sr.Updated, sr.Failed, sr.Error,
			sr.Stats.TotalRequests, sr.Stats.SuccessfulRequests, sr.Stats.FailedRequests,
			sr.Stats.JobsExtracted, sr.Stats.DuplicatesSkipped,
		)
		if err != nil {
			return fmt.Errorf("failed to record source %s: %w", sr.Source, err)
		}
	}
	return nil
}

const runColumns = `id::text, started_at, finished_at, status, error_message, total_jobs_found, cleanup_count, message`

func scanRun(row pgx.Row) (store.CrawlRun, error) {
	var run store.CrawlRun
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Status,
		&run.ErrorMessage,
		&run.TotalJobsFound,
		&run.CleanupCount,
		&run.Message,
	)
	return run, err
}

// GetRun loads a single run by id.
func (s *RunStore) GetRun(ctx context.Context, runID string) (store.CrawlRun, error) {
	query := `SELECT ` + runColumns + ` FROM crawl_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CrawlRun{}, store.ErrNotFound
		}
		return store.CrawlRun{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first with an optional status filter.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.CrawlRun, error) {
	query := `SELECT ` + runColumns + `
		FROM crawl_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.CrawlRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}

// ListRunSources returns the per-source results recorded for runID.
func (s *RunStore) ListRunSources(ctx context.Context, runID string) ([]store.SourceRun, error) {
	query := `
		SELECT run_id::text, source, success, jobs_found, inserted, updated, failed, error,
			total_requests, successful_requests, failed_requests, jobs_extracted, duplicates_skipped
		FROM crawl_run_sources
		WHERE run_id = $1
		ORDER BY source;
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run sources: %w", err)
	}
	defer rows.Close()

	var out []store.SourceRun
	for rows.Next() {
		var sr store.SourceRun
		err := rows.Scan(
			&sr.RunID, &sr.Source, &sr.Success, &sr.JobsFound, &sr.Inserted, &sr.Updated, &sr.Failed, &sr.Error,
			&sr.Stats.TotalRequests, &sr.Stats.SuccessfulRequests, &sr.Stats.FailedRequests,
			&sr.Stats.JobsExtracted, &sr.Stats.DuplicatesSkipped,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run source row: %w", err)
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run sources: %w", err)
	}
	return out, nil
}
