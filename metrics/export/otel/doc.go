// Package otel provides OpenTelemetry metric exporter bindings for authcore
// counters and histograms.
//
// [NewOTelExporter] registers an Int64ObservableCounter per authcore counter
// and Int64ObservableGauge per histogram bucket. A single callback reads
// [authcore.Core.MetricsSnapshot] on each collection cycle.
//
// The package never owns the OTel MeterProvider; callers supply the Meter.
package otel
