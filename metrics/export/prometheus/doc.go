// Package prometheus exposes goRotate engine metrics as a
// prometheus/client_golang Collector.
//
// [NewCollector] reads [goRotate.Engine.MetricsSnapshot] on every scrape and
// emits const metrics named gorotate_*_total plus the
// gorotate_refresh_latency_seconds histogram. [Handler] mounts the collector on
// a private registry.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
