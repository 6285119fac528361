// Package progress streams crawl lifecycle events (run, source and page milestones)
// from the orchestrator to pluggable sinks. Emit never blocks the crawl: events are
// buffered, batched on a background goroutine and dropped under backpressure.
package progress
