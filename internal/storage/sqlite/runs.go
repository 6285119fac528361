package sqlite

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JakeFAU/job-crawler/internal/crawler"
	"github.com/JakeFAU/job-crawler/internal/store"
)

// RunStarted implements store.RunRepository.
func (s *Store) RunStarted(ctx context.Context, runID string, at time.Time) error {
	row := runRow{ID: runID, StartedAt: at, Status: string(store.RunRunning)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// RunFinished implements store.RunRepository.
func (s *Store) RunFinished(ctx context.Context, report crawler.Report, runErr error) error {
	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&runRow{}).Where("id = ?", report.RunID).Updates(map[string]any{
			"finished_at":      report.FinishedAt,
			"status":           string(store.StatusOf(report, runErr)),
			"error_message":    errMsg,
			"total_jobs_found": report.TotalJobsFound,
			"cleanup_count":    report.CleanupCount,
			"message":          report.Message,
		})
		if res.Error != nil {
			return fmt.Errorf("complete run: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("run %s: %w", report.RunID, store.ErrNotFound)
		}
		sources := store.SourceRuns(report)
		if len(sources) == 0 {
			return nil
		}
		rows := make([]runSourceRow, 0, len(sources))
		for _, sr := range sources {
			rows = append(rows, runSourceRow{
				RunID:              sr.RunID,
				Source:             sr.Source,
				Success:            sr.Success,
				JobsFound:          sr.JobsFound,
				Inserted:           sr.Inserted,
				Updated:            sr.Updated,
				Failed:             sr.Failed,
				Error:              sr.Error,
				TotalRequests:      sr.Stats.TotalRequests,
				SuccessfulRequests: sr.Stats.SuccessfulRequests,
				FailedRequests:     sr.Stats.FailedRequests,
				JobsExtracted:      sr.Stats.JobsExtracted,
				DuplicatesSkipped:  sr.Stats.DuplicatesSkipped,
			})
		}
		err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
		if err != nil {
			return fmt.Errorf("record run sources: %w", err)
		}
		return nil
	})
}

func toRun(row runRow) store.CrawlRun {
	return store.CrawlRun{
		ID:             row.ID,
		StartedAt:      row.StartedAt,
		FinishedAt:     row.FinishedAt,
		Status:         store.RunStatus(row.Status),
		ErrorMessage:   row.ErrorMessage,
		TotalJobsFound: row.TotalJobsFound,
		CleanupCount:   row.CleanupCount,
		Message:        row.Message,
	}
}

// GetRun implements store.RunRepository.
func (s *Store) GetRun(ctx context.Context, runID string) (store.CrawlRun, error) {
	var rows []runRow
	if err := s.db.WithContext(ctx).Where("id = ?", runID).Limit(1).Find(&rows).Error; err != nil {
		return store.CrawlRun{}, fmt.Errorf("get run: %w", err)
	}
	if len(rows) == 0 {
		return store.CrawlRun{}, store.ErrNotFound
	}
	return toRun(rows[0]), nil
}

// ListRuns implements store.RunRepository.
func (s *Store) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.CrawlRun, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC")
	if status != nil {
		q = q.Where("status = ?", string(*status))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var rows []runRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]store.CrawlRun, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRun(row))
	}
	return out, nil
}

// ListRunSources implements store.RunRepository.
func (s *Store) ListRunSources(ctx context.Context, runID string) ([]store.SourceRun, error) {
	var rows []runSourceRow
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("source").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list run sources: %w", err)
	}
	out := make([]store.SourceRun, 0, len(rows))
	for _, row := range rows {
		out = append(out, store.SourceRun{
			RunID:     row.RunID,
			Source:    row.Source,
			Success:   row.Success,
			JobsFound: row.JobsFound,
			Inserted:  row.Inserted,
			Updated:   row.Updated,
			Failed:    row.Failed,
			Error:     row.Error,
			Stats: crawler.CrawlStats{
				TotalRequests:      row.TotalRequests,
				SuccessfulRequests: row.SuccessfulRequests,
				FailedRequests:     row.FailedRequests,
				JobsExtracted:      row.JobsExtracted,
				DuplicatesSkipped:  row.DuplicatesSkipped,
			},
		})
	}
	return out, nil
}
