// Package otel binds authcore counters and histograms to OpenTelemetry
// observable instruments.
//
// [NewExporter] registers an Int64ObservableCounter per counter and a gauge
// per histogram bucket; a single callback reads the engine snapshot on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider — callers supply the Meter.
//   - Mutate engine state.
package otel
