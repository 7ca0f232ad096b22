// Package telemetry holds the Prometheus collectors and the OpenTelemetry
// setup shared by the server and the CLI.
package telemetry

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/verte-zerg/sparcsviz/internal/aggregate"
	apperrors "github.com/verte-zerg/sparcsviz/internal/errors"
)

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on registration.
type Metrics struct {
	reg *prometheus.Registry

	builds        *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	queryDuration *prometheus.HistogramVec
	queryRows     *prometheus.GaugeVec
	tables        prometheus.Gauge
}

// NewMetrics registers the collectors. known lists the chart kinds; any
// other kind is recorded as "unknown" to bound label cardinality.
func NewMetrics(known []string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sparcs_chart_builds_total",
			Help: "Chart builds partitioned by kind and outcome.",
		}, []string{"kind", "outcome"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sparcs_chart_build_duration_seconds",
			Help:    "Time to build and serialize a chart document.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}, []string{"kind"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sparcs_aggregation_query_duration_seconds",
			Help:    "Startup aggregation query duration.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"query"}),
		queryRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sparcs_aggregation_rows",
			Help: "Rows in each cached result table.",
		}, []string{"query"}),
		tables: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sparcs_catalog_tables",
			Help: "Number of cached result tables.",
		}),
	}
	reg.MustRegister(
		m.builds, m.buildDuration, m.queryDuration, m.queryRows, m.tables,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, kind := range known {
		m.builds.WithLabelValues(kind, "ok")
	}
	return m
}

// ObserveBuild records one chart build. kind must already be bounded by
// the caller's registry lookup; err decides the outcome label.
func (m *Metrics) ObserveBuild(kind string, err error, d time.Duration) {
	if apperrors.CodeOf(err) == apperrors.CodeUnknownChartKind {
		kind = "unknown"
	}
	m.builds.WithLabelValues(kind, Outcome(err)).Inc()
	m.buildDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveQuery records one startup aggregation query. It matches
// aggregate.LoadOptions.OnQuery.
func (m *Metrics) ObserveQuery(s aggregate.QueryStats) {
	m.queryDuration.WithLabelValues(s.Name).Observe(s.Duration.Seconds())
	if s.Err == nil {
		m.queryRows.WithLabelValues(s.Name).Set(float64(s.Rows))
	}
}

// SetCatalog records the size of the loaded catalog.
func (m *Metrics) SetCatalog(cat *aggregate.Catalog) {
	m.tables.Set(float64(cat.Len()))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Outcome is "ok" for nil and the lower-cased error code otherwise.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(apperrors.CodeOf(err)))
}
