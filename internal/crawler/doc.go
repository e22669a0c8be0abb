// Package crawler implements the crawl driver: the URL frontier and visited
// set, the bounded-concurrency fetch scheduler, follow-mode filtering and
// limit enforcement. Transport, persistence, callbacks and progress reporting
// are injected through the interfaces declared in interfaces.go.
package crawler
