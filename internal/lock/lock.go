// Package lock provides the run lock that keeps two crawl runs from overlapping.
package lock

import (
	"context"
	"sync"
)

// Local is an in-process crawler.RunLock.
type Local struct {
	mu    sync.Mutex
	owner string
}

// NewLocal returns an unlocked Local.
func NewLocal() *Local {
	return &Local{}
}

// TryLock acquires the lock for runID, reporting false when another run holds it.
func (l *Local) TryLock(_ context.Context, runID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != "" {
		return false, nil
	}
	l.owner = runID
	return true, nil
}

// Unlock releases the lock if runID holds it.
func (l *Local) Unlock(_ context.Context, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == runID {
		l.owner = ""
	}
	return nil
}
