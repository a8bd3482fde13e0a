// Package otel binds goSession engine metrics to OpenTelemetry observable instruments.
//
// [New] registers one Int64ObservableCounter per engine counter and one
// Int64ObservableGauge per histogram bucket, all fed by a single callback that reads
// the engine snapshot on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers pass a Meter.
//   - Mutate engine state.
package otel
