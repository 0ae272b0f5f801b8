// Package prometheus renders accountd metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts an [accountd.Engine] and exposes an
// [http.Handler] that renders every engine counter and histogram. Counter
// names are prefixed accountd_*_total; the single histogram is
// accountd_login_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the
//     Handler.
//   - Mutate engine state.
package prometheus
