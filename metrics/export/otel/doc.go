// Package otel bridges castellan engine metrics onto an OpenTelemetry
// meter as observable instruments. The engine keeps its lock-free
// counters; this exporter only reads snapshots on collection.
package otel
