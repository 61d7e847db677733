// Package prometheus exposes Guard counters as a
// prometheus.Collector. Metrics are read from a point-in-time snapshot
// on every scrape; the Guard's hot paths never touch the Prometheus
// registry.
package prometheus
