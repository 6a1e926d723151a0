// Package otel provides OpenTelemetry metric bindings for admission
// counters and histograms.
//
// [NewExporter] registers Int64ObservableCounter instruments for each
// admission metric and a bucket gauge per histogram, with the bound as an
// le attribute. A single callback reads [admission.Engine.MetricsSnapshot]
// on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
