package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/job-crawler/internal/crawler"
	"github.com/JakeFAU/job-crawler/internal/store"
)

var runRowColumns = []string{
	"id", "started_at", "finished_at", "status", "error_message", "total_jobs_found", "cleanup_count", "message",
}

func TestRunStarted(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs("run-1", at, store.RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Runs().RunStarted(context.Background(), "run-1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunFinishedWritesSources(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	finished := time.Date(2025, 3, 1, 0, 5, 0, 0, time.UTC)
	report := crawler.Report{
		Success:        true,
		RunID:          "run-1",
		TotalJobsFound: 3,
		CleanupCount:   2,
		Message:        "Successfully processed 1 job sources",
		FinishedAt:     finished,
		Results: []crawler.SourceResult{{
			Source: "Naukri", Success: true, JobsFound: 3, Inserted: 3,
			Stats: &crawler.CrawlStats{TotalRequests: 1, SuccessfulRequests: 1, JobsExtracted: 3},
		}},
	}
	mock.ExpectExec("UPDATE crawl_runs").
		WithArgs(finished, store.RunSuccess, (*string)(nil), 3, int64(2), report.Message, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO crawl_run_sources").
		WithArgs("run-1", "Naukri", true, 3, 3, 0, 0, "", 1, 1, 0, 3, 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Runs().RunFinished(context.Background(), report, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunFinishedUnknownRun(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE crawl_runs").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.Runs().RunFinished(context.Background(), crawler.Report{RunID: "missing"}, errors.New("boom"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	started := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id::text, started_at").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runRowColumns).
			AddRow("run-1", started, (*time.Time)(nil), store.RunRunning, (*string)(nil), 0, int64(0), ""))

	run, err := s.Runs().GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, "run-1", run.ID)
	require.Equal(t, store.RunRunning, run.Status)
	require.Nil(t, run.FinishedAt)

	mock.ExpectQuery("SELECT id::text, started_at").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	_, err = s.Runs().GetRun(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	started := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	status := store.RunSuccess
	mock.ExpectQuery("FROM crawl_runs").
		WithArgs(&status, 10, 0).
		WillReturnRows(pgxmock.NewRows(runRowColumns).
			AddRow("run-2", started, &finished, store.RunSuccess, (*string)(nil), 4, int64(1), "ok"))

	runs, err := s.Runs().ListRuns(context.Background(), &status, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 4, runs[0].TotalJobsFound)
	require.Equal(t, finished, *runs[0].FinishedAt)
}

func TestListRunSources(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery("FROM crawl_run_sources").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"run_id", "source", "success", "jobs_found", "inserted", "updated", "failed", "error",
			"total_requests", "successful_requests", "failed_requests", "jobs_extracted", "duplicates_skipped",
		}).AddRow("run-1", "Naukri", true, 3, 2, 1, 0, "", 2, 2, 0, 4, 1))

	sources, err := s.Runs().ListRunSources(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, sources, 1)
	require.Equal(t, 1, sources[0].Stats.DuplicatesSkipped)
	require.Equal(t, 1, sources[0].Updated)
}
