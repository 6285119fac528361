package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrLoadSources is returned when the active source list cannot be read; the run aborts.
	ErrLoadSources = errors.New("failed to fetch job sources")
	// ErrRunInProgress is returned when another run holds the run lock.
	ErrRunInProgress = errors.New("crawl already in progress")
	// ErrEmptyTitle marks records that cannot be promoted to a job.
	ErrEmptyTitle = errors.New("job title is empty")
	// ErrNotFound is returned by stores for missing rows.
	ErrNotFound = errors.New("not found")
)

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchErrorNetwork FetchErrorKind = "network"
	FetchErrorStatus  FetchErrorKind = "status"
	FetchErrorTimeout FetchErrorKind = "timeout"
	FetchErrorManaged FetchErrorKind = "managed"
)

// FetchError is the typed failure returned by fetchers.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchErrorStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	case FetchErrorManaged:
		return fmt.Sprintf("fetch %s via managed crawler: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
// Client errors are final except for rate limiting.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case FetchErrorNetwork, FetchErrorTimeout:
		return true
	case FetchErrorStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// ErrManagedUnavailable marks managed-crawler failures that should fall back to a direct fetch.
var ErrManagedUnavailable = errors.New("managed crawler unavailable")
