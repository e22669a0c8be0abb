// Package progress provides the event primitives, non-blocking hub, and emitter
// interfaces that the crawl engine uses to report session and fetch progress.
// It batches events on a background goroutine and fans them out to pluggable
// sinks such as Prometheus metrics or structured logs.
package progress
