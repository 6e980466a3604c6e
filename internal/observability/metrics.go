package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hdb_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RecordsExported    prometheus.Counter
	RecordsResidential prometheus.Counter
	ExportPolls        *prometheus.CounterVec // labels: outcome={pending,ready}
	PipelineRunning    prometheus.Gauge
	PipelineDuration   prometheus.Histogram
	LastSuccess        prometheus.Gauge

	// Upstream HTTP metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: upstream={datagov,onemap}, outcome={success,error}
	UpstreamDuration *prometheus.HistogramVec // labels: upstream

	// Geocoding metrics.
	GeocodeRequests *prometheus.CounterVec // labels: outcome={match,empty,error}
	GeocodeCache    *prometheus.CounterVec // labels: result={hit,miss}

	RecordsWritten *prometheus.CounterVec // labels: sink={csv,kafka}
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		RecordsExported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_exported_total",
			Help:      help("Total rows loaded from the dataset export."),
		}),
		RecordsResidential: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_residential_total",
			Help:      help("Total rows kept by the residential filter."),
		}),
		ExportPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "export_polls_total",
			Help:      help("Export poll attempts by outcome."),
		}, []string{"outcome"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 while a pipeline run is in progress."),
		}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      help("Duration of a complete pipeline run."),
			Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 2400, 3600},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      help("Unix time of the last successful pipeline run."),
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      help("Upstream API requests by upstream and outcome."),
		}, []string{"upstream", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      help("Upstream API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"upstream"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Geocode lookups by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      help("Geocode cache lookups by result."),
		}, []string{"result"}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      help("Enriched records written by sink."),
		}, []string{"sink"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RecordsExported,
		m.RecordsResidential,
		m.ExportPolls,
		m.PipelineRunning,
		m.PipelineDuration,
		m.LastSuccess,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.RecordsWritten,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}
