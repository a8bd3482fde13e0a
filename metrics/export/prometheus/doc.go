// Package prometheus renders goSession engine metrics in the Prometheus text exposition
// format.
//
// Counters are named gosession_*_total and the single histogram is
// gosession_hydrate_latency_seconds. Callers mount [Exporter.Handler] on their own router.
//
// # What this package must NOT do
//
//   - Register anything in a global registry.
//   - Mutate engine state.
package prometheus
