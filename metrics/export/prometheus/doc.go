// Package prometheus renders admission metrics for Prometheus scrapes.
//
// [NewExporter] accepts an [admission.Engine] and exposes an [http.Handler]
// that writes every counter and histogram in text exposition format.
// Counter names are prefixed admission_*_total; the single histogram is
// admission_check_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
