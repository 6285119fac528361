package fetcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

// Retrying wraps a Fetcher and retries transient failures.
type Retrying struct {
	next   crawler.Fetcher
	policy crawler.RetryPolicy
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewRetrying decorates next with policy.
func NewRetrying(next crawler.Fetcher, policy crawler.RetryPolicy, logger *zap.Logger) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{
		next:   next,
		policy: policy,
		logger: logger,
		sleep:  crawler.SleepContext,
	}
}

// Fetch tries next until it succeeds, the error is final, or attempts run out.
func (r *Retrying) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	for attempt := 1; ; attempt++ {
		resp, err := r.next.Fetch(ctx, request)
		if err == nil {
			resp.Attempts = attempt
			return resp, nil
		}
		if !r.policy.ShouldRetry(err, attempt) {
			return crawler.FetchResponse{Attempts: attempt}, err
		}
		delay := r.policy.Backoff(attempt)
		r.logger.Debug("retrying fetch",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if serr := r.sleep(ctx, delay); serr != nil {
			return crawler.FetchResponse{Attempts: attempt}, fmt.Errorf("retry backoff for %s: %w", request.URL, serr)
		}
	}
}
