// Package sqlite stores job sources, jobs and run history in a local SQLite
// database through gorm. It backs single-node deployments and development.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

// Config locates the database file.
type Config struct {
	Path string
}

// Store implements crawler.SourceStore, crawler.JobStore and store.RunRepository.
type Store struct {
	db *gorm.DB
}

// New opens (creating if needed) the database and migrates the schema.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("db.sqlite_path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&sourceRow{}, &jobRow{}, &runRow{}, &runSourceRow{}); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

func toSource(row sourceRow) crawler.JobSource {
	return crawler.JobSource{
		ID:            row.ID,
		Name:          row.Name,
		BaseURL:       row.BaseURL,
		IsActive:      row.IsActive,
		LastCrawledAt: row.LastCrawledAt,
	}
}

// UpsertSource creates a source or updates the base URL and active flag of the one with the same name.
func (s *Store) UpsertSource(ctx context.Context, src crawler.JobSource) (crawler.JobSource, error) {
	var row sourceRow
	tx := s.db.WithContext(ctx).Where("name = ?", src.Name).Limit(1).Find(&row)
	if tx.Error != nil {
		return crawler.JobSource{}, fmt.Errorf("query source %s: %w", src.Name, tx.Error)
	}
	if tx.RowsAffected == 0 {
		row = sourceRow{ID: src.ID, Name: src.Name, BaseURL: src.BaseURL, IsActive: src.IsActive}
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		// Select keeps gorm from replacing a false IsActive with the column default.
		if err := s.db.WithContext(ctx).Select("*").Create(&row).Error; err != nil {
			return crawler.JobSource{}, fmt.Errorf("insert source %s: %w", src.Name, err)
		}
		return toSource(row), nil
	}
	err := s.db.WithContext(ctx).Model(&row).Updates(map[string]any{
		"base_url":  src.BaseURL,
		"is_active": src.IsActive,
	}).Error
	if err != nil {
		return crawler.JobSource{}, fmt.Errorf("update source %s: %w", src.Name, err)
	}
	return toSource(row), nil
}

// ListActiveSources implements crawler.SourceStore.
func (s *Store) ListActiveSources(ctx context.Context) ([]crawler.JobSource, error) {
	var rows []sourceRow
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at, name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list active sources: %w", err)
	}
	out := make([]crawler.JobSource, 0, len(rows))
	for _, row := range rows {
		out = append(out, toSource(row))
	}
	return out, nil
}

// MarkSourceCrawled implements crawler.SourceStore.
func (s *Store) MarkSourceCrawled(ctx context.Context, sourceID string, at time.Time) error {
	tx := s.db.WithContext(ctx).Model(&sourceRow{}).Where("id = ?", sourceID).Update("last_crawled_at", at)
	if tx.Error != nil {
		return fmt.Errorf("mark source %s crawled: %w", sourceID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("source %s: %w", sourceID, crawler.ErrNotFound)
	}
	return nil
}

// LatestCrawl implements crawler.SourceStore.
func (s *Store) LatestCrawl(ctx context.Context) (*time.Time, error) {
	var rows []sourceRow
	err := s.db.WithContext(ctx).
		Where("last_crawled_at IS NOT NULL").
		Order("last_crawled_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query latest crawl: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].LastCrawledAt, nil
}

func toRow(job crawler.NormalizedJob) jobRow {
	skills := job.Skills
	if skills == nil {
		skills = []string{}
	}
	return jobRow{
		ExternalID:         job.ExternalID,
		Fingerprint:        job.Fingerprint,
		Title:              job.Title,
		Company:            job.Company,
		Location:           job.Location,
		Description:        job.Description,
		URL:                job.URL,
		Source:             job.Source,
		Skills:             datatypes.JSONSlice[string](skills),
		ExperienceRequired: job.ExperienceRequired,
		SalaryRange:        job.SalaryRange,
		PostedAt:           job.PostedAt,
		ExpiresAt:          job.ExpiresAt,
		Remote:             job.Remote,
		Type:               string(job.Type),
		IsActive:           job.IsActive,
		CreatedAt:          job.PostedAt,
		UpdatedAt:          job.PostedAt,
	}
}

func fromRow(row jobRow) crawler.NormalizedJob {
	return crawler.NormalizedJob{
		ExternalID:         row.ExternalID,
		Fingerprint:        row.Fingerprint,
		Title:              row.Title,
		Company:            row.Company,
		Location:           row.Location,
		Description:        row.Description,
		URL:                row.URL,
		Source:             row.Source,
		Skills:             []string(row.Skills),
		ExperienceRequired: row.ExperienceRequired,
		SalaryRange:        row.SalaryRange,
		PostedAt:           row.PostedAt,
		ExpiresAt:          row.ExpiresAt,
		Remote:             row.Remote,
		Type:               crawler.EmploymentType(row.Type),
		IsActive:           row.IsActive,
	}
}

// InsertJobIgnoreDuplicate implements crawler.JobStore.
func (s *Store) InsertJobIgnoreDuplicate(ctx context.Context, job crawler.NormalizedJob) (bool, error) {
	row := toRow(job)
	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		Create(&row)
	if tx.Error != nil {
		return false, fmt.Errorf("insert job %s: %w", job.ExternalID, tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

// InsertJob implements crawler.JobStore.
func (s *Store) InsertJob(ctx context.Context, job crawler.NormalizedJob) error {
	row := toRow(job)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert job %s: %w", job.ExternalID, err)
	}
	return nil
}

// FindByFingerprint implements crawler.JobStore.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (crawler.NormalizedJob, bool, error) {
	var rows []jobRow
	err := s.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Order("created_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return crawler.NormalizedJob{}, false, fmt.Errorf("find job %s: %w", fingerprint, err)
	}
	if len(rows) == 0 {
		return crawler.NormalizedJob{}, false, nil
	}
	return fromRow(rows[0]), true, nil
}

// UpdateJob implements crawler.JobStore. expires_at is left untouched.
func (s *Store) UpdateJob(ctx context.Context, job crawler.NormalizedJob) error {
	skills := job.Skills
	if skills == nil {
		skills = []string{}
	}
	tx := s.db.WithContext(ctx).Model(&jobRow{}).Where("external_id = ?", job.ExternalID).Updates(map[string]any{
		"title":               job.Title,
		"company":             job.Company,
		"location":            job.Location,
		"description":         job.Description,
		"url":                 job.URL,
		"skills":              datatypes.JSONSlice[string](skills),
		"experience_required": job.ExperienceRequired,
		"salary_range":        job.SalaryRange,
		"remote":              job.Remote,
		"type":                string(job.Type),
		"is_active":           true,
		"updated_at":          job.PostedAt,
	})
	if tx.Error != nil {
		return fmt.Errorf("update job %s: %w", job.ExternalID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("job %s: %w", job.ExternalID, crawler.ErrNotFound)
	}
	return nil
}

// DeactivateCreatedBefore implements crawler.JobStore.
func (s *Store) DeactivateCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := s.db.WithContext(ctx).Model(&jobRow{}).
		Where("created_at < ? AND is_active = ?", cutoff, true).
		Update("is_active", false)
	if tx.Error != nil {
		return 0, fmt.Errorf("deactivate jobs: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

// Jobs returns every stored job ordered by id, for the CLI and tests.
func (s *Store) Jobs(ctx context.Context) ([]crawler.NormalizedJob, error) {
	var rows []jobRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]crawler.NormalizedJob, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromRow(row))
	}
	return out, nil
}
