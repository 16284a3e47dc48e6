// Package otel binds engine metrics to OpenTelemetry observable instruments.
//
// Counters become Int64ObservableCounter; each latency bucket becomes an
// Int64ObservableGauge. Callers own the MeterProvider.
package otel
