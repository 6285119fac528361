package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/job-crawler/internal/crawler"
	"github.com/JakeFAU/job-crawler/internal/store"
)

// RunStore keeps crawl run history in memory.
type RunStore struct {
	mu      sync.RWMutex
	runs    map[string]store.CrawlRun
	sources map[string][]store.SourceRun
}

// NewRunStore constructs an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:    make(map[string]store.CrawlRun),
		sources: make(map[string][]store.SourceRun),
	}
}

// RunStarted implements store.RunRepository.
func (s *RunStore) RunStarted(_ context.Context, runID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		s.runs[runID] = store.CrawlRun{ID: runID, StartedAt: at, Status: store.RunRunning}
	}
	return nil
}

// RunFinished implements store.RunRepository.
func (s *RunStore) RunFinished(_ context.Context, report crawler.Report, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[report.RunID]
	if !ok {
		return fmt.Errorf("run %s: %w", report.RunID, store.ErrNotFound)
	}
	finished := report.FinishedAt
	run.FinishedAt = &finished
	run.Status = store.StatusOf(report, runErr)
	run.TotalJobsFound = report.TotalJobsFound
	run.CleanupCount = report.CleanupCount
	run.Message = report.Message
	if runErr != nil {
		msg := runErr.Error()
		run.ErrorMessage = &msg
	}
	s.runs[report.RunID] = run
	s.sources[report.RunID] = store.SourceRuns(report)
	return nil
}

// GetRun implements store.RunRepository.
func (s *RunStore) GetRun(_ context.Context, runID string) (store.CrawlRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.CrawlRun{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns implements store.RunRepository.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.CrawlRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]store.CrawlRun, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if offset >= len(runs) {
		return nil, nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

// ListRunSources implements store.RunRepository.
func (s *RunStore) ListRunSources(_ context.Context, runID string) ([]store.SourceRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]store.SourceRun(nil), s.sources[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}
