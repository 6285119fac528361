// Package fetcher composes the concrete fetchers into the content fetcher used by the
// orchestrator: retries with backoff around direct fetches, managed-crawler delegation
// with fallback, and routing of render-flagged sources to the headless browser.
package fetcher
