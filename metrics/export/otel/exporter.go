package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	authguard "github.com/clank08/tcwatch-authguard"
)

var (
	// ErrNilMeter is returned when no meter is provided.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no metrics source is provided.
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authguard.MetricsSnapshot
	AuditDropped() uint64
}

type observedCounter struct {
	id         authguard.MetricID
	instrument metric.Int64ObservableCounter
}

// Exporter registers Guard counters as observable instruments on an
// OpenTelemetry meter.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []observedCounter
	auditDropped metric.Int64ObservableCounter
}

// NewExporter creates an Exporter reading from the given Guard (or any
// equivalent snapshot source).
func NewExporter(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	ids := authguard.MetricIDs()
	exporter := &Exporter{
		source:   source,
		counters: make([]observedCounter, 0, len(ids)),
	}

	observables := make([]metric.Observable, 0, len(ids)+1)
	for _, id := range ids {
		name := "authguard_" + authguard.MetricName(id) + "_total"
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription("Guard counter "+authguard.MetricName(id)+"."))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: id, instrument: ins})
		observables = append(observables, ins)
	}

	dropped, err := meter.Int64ObservableCounter(
		"authguard_audit_dropped_total",
		metric.WithDescription("Audit events discarded because the dispatch buffer was full."),
	)
	if err != nil {
		return nil, fmt.Errorf("create observable counter authguard_audit_dropped_total: %w", err)
	}
	exporter.auditDropped = dropped
	observables = append(observables, dropped)

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register metrics callback: %w", err)
	}
	exporter.registration = registration

	return exporter, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, counter := range e.counters {
		observer.ObserveInt64(counter.instrument, int64(snapshot.Counters[counter.id]))
	}
	observer.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the meter callback.
func (e *Exporter) Close() error {
	if e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
