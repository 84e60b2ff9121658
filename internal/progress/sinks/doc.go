// Package sinks implements progress consumers: structured logs, Prometheus
// collectors and Pub/Sub notifications.
package sinks
