package crawler

import (
	"context"
	"io"
	"iter"
	"time"
)

// SourceStore reads configured sources and records crawl timestamps.
type SourceStore interface {
	ListActiveSources(ctx context.Context) ([]JobSource, error)
	MarkSourceCrawled(ctx context.Context, sourceID string, at time.Time) error
	// LatestCrawl returns the most recent last_crawled_at across sources, nil when never crawled.
	LatestCrawl(ctx context.Context) (*time.Time, error)
}

// JobStore persists normalized jobs.
type JobStore interface {
	// InsertJobIgnoreDuplicate inserts job unless external_id exists; inserted is false on conflict.
	InsertJobIgnoreDuplicate(ctx context.Context, job NormalizedJob) (inserted bool, err error)
	FindByFingerprint(ctx context.Context, fingerprint string) (NormalizedJob, bool, error)
	InsertJob(ctx context.Context, job NormalizedJob) error
	// UpdateJob refreshes the mutable fields of the row keyed by job.ExternalID and reactivates it.
	UpdateJob(ctx context.Context, job NormalizedJob) error
	// DeactivateCreatedBefore flips is_active to false for active rows created before cutoff.
	DeactivateCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Fetcher retrieves raw page content for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// PolitenessGate decides whether a source may be crawled during the current run.
type PolitenessGate interface {
	Allowed(ctx context.Context, baseURL string) (RobotsDecision, error)
	Reset()
}

// Strategy extracts raw records from pages of one portal.
type Strategy interface {
	Name() string
	// SearchURLs returns the result pages to fetch, in a fixed order.
	SearchURLs(baseURL string, queries []string) []string
	// Render reports whether the portal needs a JavaScript-capable fetcher.
	Render() bool
	// Extract yields records lazily; the sequence is meant to be consumed once.
	Extract(page Page, source string) iter.Seq[RawJobRecord]
}

// ParserRegistry resolves a strategy for a source name. Lookup never fails.
type ParserRegistry interface {
	Lookup(source string) Strategy
}

// Normalizer converts raw records into canonical jobs.
type Normalizer interface {
	Normalize(record RawJobRecord, source string, runSalt string) (NormalizedJob, error)
}

// Reconciler writes normalized jobs and expires stale ones.
type Reconciler interface {
	Persist(ctx context.Context, jobs []NormalizedJob) PersistResult
	Cleanup(ctx context.Context, now time.Time) (int64, error)
}

// RateLimiter throttles requests per domain.
type RateLimiter interface {
	Wait(ctx context.Context, url string) error
}

// RunLock provides mutual exclusion between crawl runs.
type RunLock interface {
	TryLock(ctx context.Context, runID string) (bool, error)
	Unlock(ctx context.Context, runID string) error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// RenderDetector flags pages that are script shells needing a JavaScript-capable fetch.
type RenderDetector interface {
	ShouldRender(page Page) bool
}

// PageArchiver keeps a raw copy of fetched pages.
type PageArchiver interface {
	Save(ctx context.Context, runID, source string, page Page, digest uint64) (string, error)
}

// RunRecorder records crawl run history.
type RunRecorder interface {
	RunStarted(ctx context.Context, runID string, at time.Time) error
	RunFinished(ctx context.Context, report Report, runErr error) error
}
