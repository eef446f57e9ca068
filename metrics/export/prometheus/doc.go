// Package prometheus renders authcore metrics in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] accepts an [authcore.Core] and exposes an
// [net/http.Handler] that renders all counters and histograms. Counter names
// are prefixed authcore_*_total; the single histogram is
// authcore_validate_latency_seconds.
//
// The package never registers in a global Prometheus registry; callers mount
// the Handler themselves.
package prometheus
