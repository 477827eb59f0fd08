// Package metrics provides Prometheus collectors for update passes, retries,
// crawls and the monitor's error-rate gauges.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "serieswatch"

// Metrics holds every collector on a private registry.
type Metrics struct {
	// Counters
	SeriesProcessed *prometheus.CounterVec // labels: action, outcome
	CrawlCategories prometheus.Counter
	CrawlSeries     prometheus.Counter
	SessionFailures prometheus.Counter
	FetchFailures   *prometheus.CounterVec // labels: kind

	// Gauges
	ErrorRate     prometheus.Gauge
	ErrorCount24h prometheus.Gauge
	StoredSeries  prometheus.Gauge
	StoredValues  prometheus.Gauge
	LastPassUnix  prometheus.Gauge

	// Histograms
	PassDuration prometheus.Histogram

	registry *prometheus.Registry
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.SeriesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "series_processed_total",
			Help:      "Series processed by the coordinator, by action and outcome",
		},
		[]string{"action", "outcome"},
	)
	m.FetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed fetches by failure kind",
		},
		[]string{"kind"},
	)
	m.CrawlCategories = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "crawl_categories_total",
		Help:      "Category pages processed by the crawler",
	})
	m.CrawlSeries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "crawl_series_discovered_total",
		Help:      "Distinct series URLs discovered by the crawler",
	})
	m.SessionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_failures_total",
		Help:      "Portal sessions that could not be created",
	})

	m.ErrorRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "error_rate",
		Help:      "Share of ERROR log entries over the last analysis window",
	})
	m.ErrorCount24h = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "error_count_24h",
		Help:      "ERROR log entries over the last 24 hours",
	})
	m.StoredSeries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stored_series",
		Help:      "Rows in series_metadata",
	})
	m.StoredValues = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stored_values",
		Help:      "Rows in series_values",
	})
	m.LastPassUnix = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_pass_timestamp_seconds",
		Help:      "Completion time of the last update pass",
	})

	m.PassDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pass_duration_seconds",
		Help:      "Wall-clock duration of update passes",
		Buckets:   []float64{10, 60, 300, 900, 1800, 3600, 7200},
	})

	m.registry.MustRegister(
		m.SeriesProcessed,
		m.FetchFailures,
		m.CrawlCategories,
		m.CrawlSeries,
		m.SessionFailures,
		m.ErrorRate,
		m.ErrorCount24h,
		m.StoredSeries,
		m.StoredValues,
		m.LastPassUnix,
		m.PassDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the node_exporter textfile
// format. The write is atomic (temp file + rename).
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
