// Package prometheus renders castellan engine metrics in the
// Prometheus text exposition format without pulling in the Prometheus
// client library.
package prometheus
