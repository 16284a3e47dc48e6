// Package prometheus exposes engine counters and the validate latency
// histogram as a client_golang collector.
//
// Register [Exporter] on any registry, or mount [Exporter.Handler] which
// uses a private one. Series are named shieldauth_*.
package prometheus
