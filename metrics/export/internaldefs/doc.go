// Package internaldefs holds the metric names shared by the Prometheus and
// OTel exporters so both publish identical series.
package internaldefs
