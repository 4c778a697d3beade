package otel

import (
	"context"
	"errors"
	"fmt"

	castellan "github.com/castellan-dev/castellan"
	"github.com/castellan-dev/castellan/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() castellan.MetricsSnapshot
	AuditDropped() uint64
}

type observedCounter struct {
	id         castellan.MetricID
	instrument metric.Int64ObservableCounter
}

// observedHistogram publishes one gauge per histogram, with the bucket
// upper bound carried as an "le" attribute, plus a total-count gauge.
type observedHistogram struct {
	id          castellan.MetricID
	bucket      metric.Int64ObservableGauge
	count       metric.Int64ObservableGauge
	boundLabels []metric.ObserveOption
}

// Exporter mirrors engine snapshots into OpenTelemetry observable
// instruments.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
}

// NewExporter registers engine metrics on the given meter.
func NewExporter(meter metric.Meter, engine *castellan.Engine) (*Exporter, error) {
	return NewExporterFromSource(meter, engine)
}

// NewExporterFromSource registers a custom source on the given meter.
func NewExporterFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{source: source}

	var observables []metric.Observable
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h, err := newObservedHistogram(meter, def)
		if err != nil {
			return nil, err
		}
		exporter.histograms = append(exporter.histograms, h)
		observables = append(observables, h.bucket, h.count)
	}

	auditDropped, err := meter.Int64ObservableCounter(
		"castellan_audit_dropped_total",
		metric.WithDescription("Dropped audit events due to dispatcher backpressure."),
	)
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exporter.auditDropped = auditDropped
	observables = append(observables, auditDropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exporter.registration = registration

	return exporter, nil
}

func newObservedHistogram(meter metric.Meter, def internaldefs.HistogramDef) (observedHistogram, error) {
	h := observedHistogram{id: def.ID}

	bucket, err := meter.Int64ObservableGauge(
		def.Name+"_bucket",
		metric.WithDescription("Cumulative histogram bucket count by upper bound."),
	)
	if err != nil {
		return h, fmt.Errorf("create histogram bucket gauge %s: %w", def.Name, err)
	}
	h.bucket = bucket

	count, err := meter.Int64ObservableGauge(
		def.Name+"_count",
		metric.WithDescription("Histogram total sample count."),
	)
	if err != nil {
		return h, fmt.Errorf("create histogram count gauge %s: %w", def.Name, err)
	}
	h.count = count

	for _, bound := range internaldefs.HistogramBounds {
		h.boundLabels = append(h.boundLabels,
			metric.WithAttributes(attribute.String("le", bound)))
	}
	return h, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(
			internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i, v := range cumulative {
			observer.ObserveInt64(h.bucket, int64(v), h.boundLabels[i])
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
