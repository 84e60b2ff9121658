// Package progress carries structured events about ingest runs. Emitters hand
// events to a Hub, which batches them on a background goroutine and fans them
// out to sinks such as logs, Prometheus collectors or Pub/Sub.
package progress
