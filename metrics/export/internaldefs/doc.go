// Package internaldefs exposes stable metric name and bucket definitions shared
// by exporter implementations.
//
// Counter and histogram definitions live here so that the Prometheus and OTel
// exporters render identical metric names and bucket boundaries. Changes to the
// definitions in this package affect all exporters simultaneously.
package internaldefs
