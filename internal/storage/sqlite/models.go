package sqlite

import (
	"time"

	"gorm.io/datatypes"
)

type sourceRow struct {
	ID            string `gorm:"primaryKey"`
	Name          string `gorm:"uniqueIndex;not null"`
	BaseURL       string `gorm:"not null"`
	IsActive      bool   `gorm:"not null;default:true"`
	LastCrawledAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (sourceRow) TableName() string { return "job_sources" }

type jobRow struct {
	ID                 uint   `gorm:"primaryKey"`
	ExternalID         string `gorm:"uniqueIndex;not null"`
	Fingerprint        string `gorm:"index;not null"`
	Title              string `gorm:"not null"`
	Company            string
	Location           string
	Description        string
	URL                string
	Source             string `gorm:"not null"`
	Skills             datatypes.JSONSlice[string]
	ExperienceRequired string
	SalaryRange        string
	PostedAt           time.Time
	ExpiresAt          time.Time
	Remote             bool
	Type               string
	IsActive           bool      `gorm:"index"`
	CreatedAt          time.Time `gorm:"index"`
	UpdatedAt          time.Time
}

func (jobRow) TableName() string { return "jobs" }

type runRow struct {
	ID             string    `gorm:"primaryKey"`
	StartedAt      time.Time `gorm:"index"`
	FinishedAt     *time.Time
	Status         string
	ErrorMessage   *string
	TotalJobsFound int
	CleanupCount   int64
	Message        string
}

func (runRow) TableName() string { return "crawl_runs" }

type runSourceRow struct {
	RunID              string `gorm:"primaryKey"`
	Source             string `gorm:"primaryKey"`
	Success            bool
	JobsFound          int
	Inserted           int
	Updated            int
	Failed             int
	Error              string
	TotalRequests      int
	SuccessfulRequests int
	FailedRequests     int
	JobsExtracted      int
	DuplicatesSkipped  int
}

func (runSourceRow) TableName() string { return "crawl_run_sources" }
