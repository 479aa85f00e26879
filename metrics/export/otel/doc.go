// Package otel publishes authgate engine counters through an OpenTelemetry
// meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter.
// Latency histograms become a "_bucket" gauge labelled by "le" plus a
// "_count" gauge. A single callback reads [authgate.Engine.MetricsSnapshot]
// on each collection.
//
// The caller owns the MeterProvider. Back it with the OpenTelemetry
// Prometheus exporter to serve the counters on /metrics.
package otel
