package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// refresh pipeline.
type Metrics struct {
	RefreshTotal     prometheus.Counter
	RefreshErrors    prometheus.Counter
	RefreshDuration  prometheus.Histogram
	RefreshRunning   prometheus.Gauge
	LastRefreshUnix  prometheus.Gauge
	StaleReadsServed prometheus.Counter

	// Upstream fetch metrics.
	SourceFetches      *prometheus.CounterVec   // labels: source={snapshot,confirmed,deaths}, outcome={success,error}
	SourceFetchSeconds *prometheus.HistogramVec // labels: source

	// Artifact metrics.
	ArtifactRows  *prometheus.GaugeVec   // labels: artifact
	ArtifactReads *prometheus.CounterVec // labels: artifact, result={cache_hit,disk,missing}
	RefreshesSent prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.RefreshTotal,
		m.RefreshErrors,
		m.RefreshDuration,
		m.RefreshRunning,
		m.LastRefreshUnix,
		m.StaleReadsServed,
		m.SourceFetches,
		m.SourceFetchSeconds,
		m.ArtifactRows,
		m.ArtifactReads,
		m.RefreshesSent,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RefreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "refresh_total",
			Help:      "Total refresh cycles attempted.",
		}),
		RefreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "refresh_errors_total",
			Help:      "Total refresh cycles that aborted with an error.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "covid_etl",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a complete fetch-transform-persist cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		RefreshRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "covid_etl",
			Name:      "refresh_running",
			Help:      "1 while a refresh cycle is in flight, 0 otherwise.",
		}),
		LastRefreshUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "covid_etl",
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful refresh cycle.",
		}),
		StaleReadsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "stale_reads_served_total",
			Help:      "Reads served from a stale artifact after a failed refresh.",
		}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "source_fetches_total",
			Help:      "Upstream feed fetches by source and outcome.",
		}, []string{"source", "outcome"}),
		SourceFetchSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "covid_etl",
			Name:      "source_fetch_duration_seconds",
			Help:      "Upstream feed fetch duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		ArtifactRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "covid_etl",
			Name:      "artifact_rows",
			Help:      "Row count of the last persisted artifact by kind.",
		}, []string{"artifact"}),
		ArtifactReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "artifact_reads_total",
			Help:      "Artifact reads by kind and result.",
		}, []string{"artifact", "result"}),
		RefreshesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "covid_etl",
			Name:      "refresh_events_sent_total",
			Help:      "Refresh-completed events published to the notification topic.",
		}),
	}
}
