// Package reconcile writes normalized jobs to a crawler.JobStore and expires
// postings that outlived the retention window.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

// Mode selects how duplicates are handled.
type Mode string

const (
	// ModeIgnoreDuplicates inserts rows and treats an existing external id as a duplicate.
	ModeIgnoreDuplicates Mode = "ignore_duplicates"
	// ModeExplicitUpdate refreshes the row sharing a fingerprint, inserting when none exists.
	ModeExplicitUpdate Mode = "explicit_update"
)

// ParseMode validates a configured mode; empty selects ModeIgnoreDuplicates.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeIgnoreDuplicates:
		return ModeIgnoreDuplicates, nil
	case ModeExplicitUpdate:
		return ModeExplicitUpdate, nil
	default:
		return "", fmt.Errorf("unknown reconcile mode %q", s)
	}
}

// Config tunes the reconciler.
type Config struct {
	Mode          Mode
	RetentionDays int
}

// Reconciler implements crawler.Reconciler.
type Reconciler struct {
	store     crawler.JobStore
	mode      Mode
	retention time.Duration
	logger    *zap.Logger
}

// New builds a Reconciler. RetentionDays defaults to 30.
func New(cfg Config, store crawler.JobStore, logger *zap.Logger) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("job store is required")
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	days := cfg.RetentionDays
	if days <= 0 {
		days = 30
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		store:     store,
		mode:      mode,
		retention: time.Duration(days) * 24 * time.Hour,
		logger:    logger.Named("reconcile"),
	}, nil
}

// Persist writes jobs one by one. A failed row is logged and counted; the batch continues.
func (r *Reconciler) Persist(ctx context.Context, jobs []crawler.NormalizedJob) crawler.PersistResult {
	var res crawler.PersistResult
	for _, job := range jobs {
		if ctx.Err() != nil {
			remaining := len(jobs) - res.Inserted - res.Updated - res.Duplicates - res.Failed
			res.Failed += remaining
			r.logger.Warn("persist interrupted", zap.Error(ctx.Err()), zap.Int("remaining", remaining))
			break
		}
		var err error
		switch r.mode {
		case ModeExplicitUpdate:
			err = r.upsert(ctx, job, &res)
		default:
			err = r.insert(ctx, job, &res)
		}
		if err != nil {
			res.Failed++
			r.logger.Error("failed to save job",
				zap.String("title", job.Title),
				zap.String("company", job.Company),
				zap.String("external_id", job.ExternalID),
				zap.Error(err),
			)
		}
	}
	r.logger.Debug("persisted batch",
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("failed", res.Failed),
	)
	return res
}

func (r *Reconciler) insert(ctx context.Context, job crawler.NormalizedJob, res *crawler.PersistResult) error {
	inserted, err := r.store.InsertJobIgnoreDuplicate(ctx, job)
	if err != nil {
		return err
	}
	if inserted {
		res.Inserted++
	} else {
		res.Duplicates++
	}
	return nil
}

func (r *Reconciler) upsert(ctx context.Context, job crawler.NormalizedJob, res *crawler.PersistResult) error {
	existing, exists, err := r.store.FindByFingerprint(ctx, job.Fingerprint)
	if err != nil {
		return fmt.Errorf("lookup fingerprint: %w", err)
	}
	if exists {
		// Only the newest row for the fingerprint is refreshed; older salted rows stay retired.
		job.ExternalID = existing.ExternalID
		if err := r.store.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("update: %w", err)
		}
		res.Updated++
		return nil
	}
	if err := r.store.InsertJob(ctx, job); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	res.Inserted++
	return nil
}

// Cleanup deactivates active jobs created before now minus the retention window.
func (r *Reconciler) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-r.retention)
	n, err := r.store.DeactivateCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired jobs: %w", err)
	}
	r.logger.Info("cleaned up expired jobs", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	return n, nil
}
