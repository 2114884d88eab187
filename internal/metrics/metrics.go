// Package metrics exposes Prometheus instruments for ingestion and filtering.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "methylexplorer"

type Metrics struct {
	registry *prometheus.Registry

	IngestedRows   prometheus.Gauge
	SampleFiles    prometheus.Gauge
	IngestDuration prometheus.Histogram
	IngestErrors   prometheus.Counter
	FilterRequests *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// New registers every instrument on a private registry so tests can build as many as they
// need.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		IngestedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ingested_rows",
			Help:      "Rows in the combined methylation table.",
		}),
		SampleFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sample_files",
			Help:      "Sample files found in the data folder at the last ingestion.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time spent building the combined table.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		IngestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Failed ingestions.",
		}),
		FilterRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_requests_total",
			Help:      "Filter requests by cache outcome.",
		}, []string{"cache"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.IngestedRows,
		m.SampleFiles,
		m.IngestDuration,
		m.IngestErrors,
		m.FilterRequests,
		m.HTTPRequests,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
