package crawler

import (
	"time"
)

// EmploymentType classifies a posting's engagement model.
type EmploymentType string

// Employment types persisted in the jobs table.
const (
	EmploymentFullTime   EmploymentType = "full-time"
	EmploymentPartTime   EmploymentType = "part-time"
	EmploymentContract   EmploymentType = "contract"
	EmploymentInternship EmploymentType = "internship"
)

// PageFormat describes how page content is encoded.
type PageFormat string

// Page formats produced by fetchers.
const (
	FormatHTML     PageFormat = "html"
	FormatMarkdown PageFormat = "markdown"
)

// JobSource is a configured job portal. The crawler only ever writes LastCrawledAt.
type JobSource struct {
	ID            string     `json:"id" yaml:"id"`
	Name          string     `json:"name" yaml:"name"`
	BaseURL       string     `json:"base_url" yaml:"base_url"`
	IsActive      bool       `json:"is_active" yaml:"is_active"`
	LastCrawledAt *time.Time `json:"last_crawled_at,omitempty" yaml:"last_crawled_at,omitempty"`
}

// RawJobRecord is what a parser strategy extracts from one page section.
// Only Title is mandatory.
type RawJobRecord struct {
	Title       string
	Company     string
	Location    string
	Experience  string
	Skills      []string
	Salary      string
	Description string
	ApplyURL    string
	SourceURL   string
}

// NormalizedJob is the canonical persisted posting.
type NormalizedJob struct {
	ExternalID         string         `json:"external_id"`
	Fingerprint        string         `json:"fingerprint"`
	Title              string         `json:"title"`
	Company            string         `json:"company"`
	Location           string         `json:"location"`
	Description        string         `json:"description"`
	URL                string         `json:"url"`
	Source             string         `json:"source"`
	Skills             []string       `json:"skills"`
	ExperienceRequired string         `json:"experience_required,omitempty"`
	SalaryRange        string         `json:"salary_range,omitempty"`
	PostedAt           time.Time      `json:"posted_at"`
	ExpiresAt          time.Time      `json:"expires_at"`
	Remote             bool           `json:"remote"`
	Type               EmploymentType `json:"type"`
	IsActive           bool           `json:"is_active"`
}

// Page is one unit of fetched content.
type Page struct {
	URL        string
	Content    string
	Format     PageFormat
	StatusCode int
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Source  string
	Timeout time.Duration
	// Render asks for a JavaScript-capable fetcher when one is configured.
	Render bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	Pages       []Page
	UsedManaged bool
	UsedRender  bool
	Attempts    int
	Duration    time.Duration
}

// CrawlStats accumulates request and extraction counters for a source.
type CrawlStats struct {
	TotalRequests      int `json:"totalRequests"`
	SuccessfulRequests int `json:"successfulRequests"`
	FailedRequests     int `json:"failedRequests"`
	JobsExtracted      int `json:"jobsExtracted"`
	DuplicatesSkipped  int `json:"duplicatesSkipped"`
}

// Add sums other into s.
func (s *CrawlStats) Add(other CrawlStats) {
	s.TotalRequests += other.TotalRequests
	s.SuccessfulRequests += other.SuccessfulRequests
	s.FailedRequests += other.FailedRequests
	s.JobsExtracted += other.JobsExtracted
	s.DuplicatesSkipped += other.DuplicatesSkipped
}

// SourceResult is the per-source entry of a run report.
type SourceResult struct {
	Source    string      `json:"source"`
	JobsFound int         `json:"jobsFound"`
	Success   bool        `json:"success"`
	Error     string      `json:"error,omitempty"`
	Stats     *CrawlStats `json:"stats,omitempty"`
	Inserted  int         `json:"inserted"`
	Updated   int         `json:"updated"`
	Failed    int         `json:"failed"`
}

// Report is the aggregate outcome of one crawl run.
type Report struct {
	Success         bool           `json:"success"`
	RunID           string         `json:"runId"`
	TotalJobsFound  int            `json:"totalJobsFound"`
	Results         []SourceResult `json:"results"`
	Stats           CrawlStats     `json:"stats"`
	ExecutionTimeMs int64          `json:"executionTimeMs"`
	CleanupCount    int64          `json:"cleanupCount"`
	Message         string         `json:"message"`
	StartedAt       time.Time      `json:"startedAt"`
	FinishedAt      time.Time      `json:"finishedAt"`
}

// PersistResult counts the outcome of reconciling a batch of jobs.
type PersistResult struct {
	Inserted   int
	Updated    int
	Duplicates int
	Failed     int
}

// Saved is the number of rows written by the batch.
func (r PersistResult) Saved() int {
	return r.Inserted + r.Updated
}

// RobotsDecision is the politeness verdict for one source.
type RobotsDecision struct {
	Allowed bool
	Reason  string
}

// RunState enumerates the orchestrator's state machine.
type RunState string

// Orchestrator states.
const (
	StateIdle            RunState = "idle"
	StateFetchingSources RunState = "fetching_sources"
	StateCheckPoliteness RunState = "check_politeness"
	StateFetching        RunState = "fetching"
	StateParsing         RunState = "parsing"
	StateNormalizing     RunState = "normalizing"
	StatePersisting      RunState = "persisting"
	StateSourceFailed    RunState = "source_failed"
	StateCleanup         RunState = "cleanup"
	StateDone            RunState = "done"
)
