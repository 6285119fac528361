// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

type jobRow struct {
	job       crawler.NormalizedJob
	createdAt time.Time
	updatedAt time.Time
}

// Store implements crawler.SourceStore and crawler.JobStore. A job's creation time is
// its PostedAt, which the normalizer stamps with the crawl clock.
type Store struct {
	mu      sync.RWMutex
	sources []crawler.JobSource
	jobs    map[string]*jobRow
	order   []string
	nextID  int
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*jobRow)}
}

// UpsertSource adds a source or updates the one with the same name.
func (s *Store) UpsertSource(_ context.Context, src crawler.JobSource) (crawler.JobSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sources {
		if s.sources[i].Name == src.Name {
			s.sources[i].BaseURL = src.BaseURL
			s.sources[i].IsActive = src.IsActive
			return cloneSource(s.sources[i]), nil
		}
	}
	if src.ID == "" {
		s.nextID++
		src.ID = "src-" + strconv.Itoa(s.nextID)
	}
	s.sources = append(s.sources, cloneSource(src))
	return cloneSource(src), nil
}

// ListActiveSources implements crawler.SourceStore, in insertion order.
func (s *Store) ListActiveSources(_ context.Context) ([]crawler.JobSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.JobSource
	for _, src := range s.sources {
		if src.IsActive {
			out = append(out, cloneSource(src))
		}
	}
	return out, nil
}

// MarkSourceCrawled implements crawler.SourceStore.
func (s *Store) MarkSourceCrawled(_ context.Context, sourceID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sources {
		if s.sources[i].ID == sourceID {
			ts := at
			s.sources[i].LastCrawledAt = &ts
			return nil
		}
	}
	return fmt.Errorf("source %s: %w", sourceID, crawler.ErrNotFound)
}

// LatestCrawl implements crawler.SourceStore.
func (s *Store) LatestCrawl(_ context.Context) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *time.Time
	for _, src := range s.sources {
		if src.LastCrawledAt != nil && (latest == nil || src.LastCrawledAt.After(*latest)) {
			ts := *src.LastCrawledAt
			latest = &ts
		}
	}
	return latest, nil
}

// InsertJobIgnoreDuplicate implements crawler.JobStore.
func (s *Store) InsertJobIgnoreDuplicate(_ context.Context, job crawler.NormalizedJob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ExternalID]; exists {
		return false, nil
	}
	s.insertLocked(job)
	return true, nil
}

// InsertJob implements crawler.JobStore.
func (s *Store) InsertJob(_ context.Context, job crawler.NormalizedJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ExternalID]; exists {
		return fmt.Errorf("job %s already exists", job.ExternalID)
	}
	s.insertLocked(job)
	return nil
}

func (s *Store) insertLocked(job crawler.NormalizedJob) {
	job.Skills = slices.Clone(job.Skills)
	s.jobs[job.ExternalID] = &jobRow{job: job, createdAt: job.PostedAt, updatedAt: job.PostedAt}
	s.order = append(s.order, job.ExternalID)
}

// FindByFingerprint implements crawler.JobStore, returning the newest matching row.
func (s *Store) FindByFingerprint(_ context.Context, fingerprint string) (crawler.NormalizedJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.newestLocked(fingerprint)
	if row == nil {
		return crawler.NormalizedJob{}, false, nil
	}
	job := row.job
	job.Skills = slices.Clone(job.Skills)
	return job, true, nil
}

// UpdateJob implements crawler.JobStore.
func (s *Store) UpdateJob(_ context.Context, job crawler.NormalizedJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.jobs[job.ExternalID]
	if !ok {
		return fmt.Errorf("job %s: %w", job.ExternalID, crawler.ErrNotFound)
	}
	row.job.Title = job.Title
	row.job.Company = job.Company
	row.job.Location = job.Location
	row.job.Description = job.Description
	row.job.URL = job.URL
	row.job.Skills = slices.Clone(job.Skills)
	row.job.ExperienceRequired = job.ExperienceRequired
	row.job.SalaryRange = job.SalaryRange
	row.job.Remote = job.Remote
	row.job.Type = job.Type
	row.job.IsActive = true
	row.updatedAt = job.PostedAt
	return nil
}

// DeactivateCreatedBefore implements crawler.JobStore.
func (s *Store) DeactivateCreatedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, row := range s.jobs {
		if row.job.IsActive && row.createdAt.Before(cutoff) {
			row.job.IsActive = false
			n++
		}
	}
	return n, nil
}

// Jobs returns a snapshot of all stored jobs in insertion order.
func (s *Store) Jobs() []crawler.NormalizedJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.NormalizedJob, 0, len(s.order))
	for _, id := range s.order {
		job := s.jobs[id].job
		job.Skills = slices.Clone(job.Skills)
		out = append(out, job)
	}
	return out
}

func (s *Store) newestLocked(fingerprint string) *jobRow {
	var rows []*jobRow
	for _, row := range s.jobs {
		if row.job.Fingerprint == fingerprint {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].createdAt.After(rows[j].createdAt) })
	return rows[0]
}

func cloneSource(src crawler.JobSource) crawler.JobSource {
	if src.LastCrawledAt != nil {
		ts := *src.LastCrawledAt
		src.LastCrawledAt = &ts
	}
	return src
}
