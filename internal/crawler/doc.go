// Package crawler holds the job crawl domain types, the collaborator
// interfaces and the Orchestrator that sequences fetch, parse, normalize and
// persist over every active job source.
package crawler
