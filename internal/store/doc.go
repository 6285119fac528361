// Package store defines the crawl run history repository. Implementations live
// in the storage packages; this package must not import database drivers.
package store
