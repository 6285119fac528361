// Package postgres stores job sources and jobs in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

//go:embed schema.sql
var schema string

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store uses; pgxmock satisfies it in tests.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store implements crawler.SourceStore and crawler.JobStore.
type Store struct {
	pool pool
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool wraps an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// ListActiveSources implements crawler.SourceStore.
func (s *Store) ListActiveSources(ctx context.Context) ([]crawler.JobSource, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, base_url, is_active, last_crawled_at
		FROM job_sources
		WHERE is_active
		ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("query active sources: %w", err)
	}
	defer rows.Close()

	var sources []crawler.JobSource
	for rows.Next() {
		var src crawler.JobSource
		if err := rows.Scan(&src.ID, &src.Name, &src.BaseURL, &src.IsActive, &src.LastCrawledAt); err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source rows: %w", err)
	}
	return sources, nil
}

// MarkSourceCrawled implements crawler.SourceStore.
func (s *Store) MarkSourceCrawled(ctx context.Context, sourceID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_sources SET last_crawled_at = $1, updated_at = $1 WHERE id = $2`,
		at, sourceID)
	if err != nil {
		return fmt.Errorf("mark source crawled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", sourceID, crawler.ErrNotFound)
	}
	return nil
}

// LatestCrawl implements crawler.SourceStore.
func (s *Store) LatestCrawl(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	if err := s.pool.QueryRow(ctx, `SELECT max(last_crawled_at) FROM job_sources`).Scan(&latest); err != nil {
		return nil, fmt.Errorf("query latest crawl: %w", err)
	}
	return latest, nil
}

// UpsertSource inserts a source or refreshes the one with the same name.
func (s *Store) UpsertSource(ctx context.Context, src crawler.JobSource) (crawler.JobSource, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO job_sources (name, base_url, is_active)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET base_url = EXCLUDED.base_url, is_active = EXCLUDED.is_active, updated_at = now()
		RETURNING id, last_crawled_at`,
		src.Name, src.BaseURL, src.IsActive,
	).Scan(&src.ID, &src.LastCrawledAt)
	if err != nil {
		return crawler.JobSource{}, fmt.Errorf("upsert source %s: %w", src.Name, err)
	}
	return src, nil
}

const jobColumns = `external_id, fingerprint, title, company, location, description, url, source,
	skills, experience_required, salary_range, posted_at, expires_at, remote, type, is_active`

func jobArgs(job crawler.NormalizedJob) []any {
	skills := job.Skills
	if skills == nil {
		skills = []string{}
	}
	return []any{
		job.ExternalID, job.Fingerprint, job.Title, job.Company, job.Location, job.Description, job.URL, job.Source,
		skills, job.ExperienceRequired, job.SalaryRange, job.PostedAt, job.ExpiresAt, job.Remote, string(job.Type), job.IsActive,
	}
}

// InsertJobIgnoreDuplicate implements crawler.JobStore.
func (s *Store) InsertJobIgnoreDuplicate(ctx context.Context, job crawler.NormalizedJob) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (external_id) DO NOTHING`,
		jobArgs(job)...)
	if err != nil {
		return false, fmt.Errorf("insert job %s: %w", job.ExternalID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertJob implements crawler.JobStore.
func (s *Store) InsertJob(ctx context.Context, job crawler.NormalizedJob) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		jobArgs(job)...)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ExternalID, err)
	}
	return nil
}

// FindByFingerprint implements crawler.JobStore. The newest row wins when salted runs
// stored several rows for one fingerprint.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (crawler.NormalizedJob, bool, error) {
	var (
		job     crawler.NormalizedJob
		jobType string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE fingerprint = $1
		ORDER BY created_at DESC
		LIMIT 1`,
		fingerprint,
	).Scan(
		&job.ExternalID, &job.Fingerprint, &job.Title, &job.Company, &job.Location, &job.Description, &job.URL,
		&job.Source, &job.Skills, &job.ExperienceRequired, &job.SalaryRange, &job.PostedAt, &job.ExpiresAt,
		&job.Remote, &jobType, &job.IsActive,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.NormalizedJob{}, false, nil
	}
	if err != nil {
		return crawler.NormalizedJob{}, false, fmt.Errorf("find job by fingerprint: %w", err)
	}
	job.Type = crawler.EmploymentType(jobType)
	return job, true, nil
}

// UpdateJob implements crawler.JobStore. posted_at and expires_at keep their original values.
func (s *Store) UpdateJob(ctx context.Context, job crawler.NormalizedJob) error {
	skills := job.Skills
	if skills == nil {
		skills = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET title = $2, company = $3, location = $4, description = $5, url = $6, skills = $7,
			experience_required = $8, salary_range = $9, remote = $10, type = $11,
			is_active = TRUE, updated_at = now()
		WHERE external_id = $1`,
		job.ExternalID, job.Title, job.Company, job.Location, job.Description, job.URL, skills,
		job.ExperienceRequired, job.SalaryRange, job.Remote, string(job.Type),
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ExternalID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", job.ExternalID, crawler.ErrNotFound)
	}
	return nil
}

// DeactivateCreatedBefore implements crawler.JobStore.
func (s *Store) DeactivateCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET is_active = FALSE, updated_at = now() WHERE created_at < $1 AND is_active`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivate stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}
