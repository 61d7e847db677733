package prometheus

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	authguard "github.com/clank08/tcwatch-authguard"
)

// ErrNilSource is returned when no metrics source is provided.
var ErrNilSource = errors.New("nil metrics source")

const namespace = "authguard"

type metricsSource interface {
	MetricsSnapshot() authguard.MetricsSnapshot
	AuditDropped() uint64
}

// Collector adapts a Guard's metrics snapshot to the Prometheus
// collector interface. Register it with any prometheus.Registerer.
type Collector struct {
	source       metricsSource
	descs        map[authguard.MetricID]*prometheus.Desc
	auditDropped *prometheus.Desc
}

// NewCollector creates a Collector reading from the given Guard (or
// any equivalent snapshot source).
func NewCollector(source metricsSource) (*Collector, error) {
	if source == nil {
		return nil, ErrNilSource
	}

	descs := make(map[authguard.MetricID]*prometheus.Desc)
	for _, id := range authguard.MetricIDs() {
		name := prometheus.BuildFQName(namespace, "", authguard.MetricName(id)+"_total")
		descs[id] = prometheus.NewDesc(name, "Guard counter "+authguard.MetricName(id)+".", nil, nil)
	}

	return &Collector{
		source: source,
		descs:  descs,
		auditDropped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "audit_dropped_total"),
			"Audit events discarded because the dispatch buffer was full.",
			nil, nil,
		),
	}, nil
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.descs {
		ch <- desc
	}
	ch <- c.auditDropped
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.MetricsSnapshot()
	for id, desc := range c.descs {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(snapshot.Counters[id]))
	}
	ch <- prometheus.MustNewConstMetric(c.auditDropped, prometheus.CounterValue, float64(c.source.AuditDropped()))
}
