package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage names a crawl milestone.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageSourceStart Stage = "SOURCE_START"
	StageSourceDone  Stage = "SOURCE_DONE"
	StageSourceError Stage = "SOURCE_ERROR"
	StagePageDone    Stage = "PAGE_DONE"
	StagePageError   Stage = "PAGE_ERROR"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Status classes tracked for page fetches.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event is one crawl milestone.
type Event struct {
	RunID string
	TS    time.Time
	Stage Stage
	// Source is the job source name; empty for run-level stages.
	Source string
	// Site is the host of a fetched page.
	Site        string
	URL         string
	Bytes       int64
	Jobs        int
	StatusClass StatusClass
	Dur         time.Duration
	// Note carries low-volume context such as the failure reason.
	Note string
}

// Validate rejects events sinks cannot attribute.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageSourceStart, StageSourceDone, StageSourceError:
		if e.Source == "" {
			return fmt.Errorf("%s requires source", e.Stage)
		}
	case StagePageDone:
		if e.Site == "" || e.StatusClass == "" {
			return errors.New("page done requires site and status class")
		}
	case StagePageError:
		if e.Site == "" {
			return errors.New("page error requires site")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
