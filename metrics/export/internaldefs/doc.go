// Package internaldefs holds the shared metric name and bucket
// definitions used by the Prometheus and OTel exporters. It exists so
// the two exporters cannot drift apart on naming.
package internaldefs
