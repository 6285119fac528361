// Package cmd implements the jobcrawler CLI.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, readiness, metrics, the crawl and schedule triggers, and
//     read-only run history. Crawl requests run synchronously and return the full report.
//   - Orchestration: crawler.Orchestrator loads active job sources, asks the robots gate per source, fetches
//     search pages through the fetcher router (managed crawler, headless renderer, direct colly), extracts
//     records with the parser registry, normalizes and fingerprints them, and hands the batch to the reconciler.
//     A run lock (in-process or Redis) keeps runs from overlapping.
//   - Persistence & fanout: jobs and sources live in memory, Postgres (pgx) or SQLite (gorm). Raw pages can be
//     archived to a BlobStore (memory/local/GCS). A completion event is published to Pub/Sub when configured.
//   - Scheduling: the schedule command and POST /v1/schedule crawl only when the newest last_crawled_at is older
//     than scheduler.min_interval; scheduler.cron drives the same check from inside serve.
//   - Configuration & plumbing: Viper populates config from file and JOBCRAWLER_* env vars (.env is loaded
//     first); zap provides structured logging; Prometheus metrics are exported at /metrics; OpenTelemetry spans
//     wrap runs and sources when tracing is enabled.
//
// Quick checklist:
//   - Seed sources: jobcrawler seed --file sources.yaml
//   - One-shot crawl: jobcrawler crawl --config config.yaml
//   - Service: jobcrawler serve (listens on server.port, drains on SIGTERM).
package cmd
