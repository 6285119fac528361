// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawl to run a crawl synchronously and POST /v1/schedule for the
//     interval-gated variant invoked by an external cron.
//   - GET /v1/runs, /v1/runs/{run_id} and /v1/runs/{run_id}/sources for run history
//     via the store.RunRepository interface.
package api
