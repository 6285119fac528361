package fetcher

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/job-crawler/internal/crawler"
)

// Router picks the fetcher for each request. A configured managed crawler is tried first
// and its envelope is authoritative; when it is unreachable or misconfigured the request
// falls back to the direct path.
type Router struct {
	direct  crawler.Fetcher
	managed crawler.Fetcher
	render  crawler.Fetcher
	logger  *zap.Logger
}

// NewRouter builds a Router. managed and render may be nil.
func NewRouter(direct, managed, render crawler.Fetcher, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		direct:  direct,
		managed: managed,
		render:  render,
		logger:  logger,
	}
}

// Fetch implements crawler.Fetcher.
func (r *Router) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if r.managed != nil {
		resp, err := r.managed.Fetch(ctx, request)
		if err == nil {
			resp.UsedManaged = true
			return resp, nil
		}
		if !errors.Is(err, crawler.ErrManagedUnavailable) {
			return crawler.FetchResponse{UsedManaged: true, Attempts: 1}, err
		}
		r.logger.Warn("managed crawler unavailable; falling back to direct fetch",
			zap.String("url", request.URL),
			zap.Error(err),
		)
	}
	if request.Render && r.render != nil {
		resp, err := r.render.Fetch(ctx, request)
		resp.UsedRender = true
		return resp, err
	}
	return r.direct.Fetch(ctx, request)
}
