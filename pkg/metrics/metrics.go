// Package metrics defines the Prometheus metric collectors used across the
// engine and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	DocsScannedTotal     prometheus.Counter
	DocsIngestedTotal    prometheus.Counter
	ScanDuration         *prometheus.HistogramVec
	ScanResultsCount     prometheus.Histogram
	ValidationDuration   *prometheus.HistogramVec
	ValidationFoldsTotal prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CorpusDocuments      prometheus.Gauge
	CatalogFeatures      prometheus.Gauge
	StreamErrorsTotal    *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		DocsScannedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_scanned_total",
				Help: "Total documents read from the feature stream by ranking scans.",
			},
		),
		DocsIngestedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_ingested_total",
				Help: "Total documents registered in the feature store.",
			},
		),
		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scan_duration_seconds",
				Help:    "Full-corpus ranking scan latency in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"strategy"},
		),
		ScanResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scan_results_count",
				Help:    "Number of results returned per ranking scan.",
				Buckets: []float64{0, 10, 100, 500, 1000, 5000, 10000},
			},
		),
		ValidationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "validation_duration_seconds",
				Help:    "Cross-validation run latency in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"mode"},
		),
		ValidationFoldsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "validation_folds_total",
				Help: "Total cross-validation folds completed.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query result cache misses.",
			},
		),
		CorpusDocuments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_documents",
				Help: "Number of documents in the feature store.",
			},
		),
		CatalogFeatures: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_features",
				Help: "Number of distinct features in the catalog.",
			},
		),
		StreamErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stream_errors_total",
				Help: "Feature stream errors by kind (corrupt, unknown_feature).",
			},
			[]string{"kind"},
		),
	}

	prometheus.MustRegister(
		m.DocsScannedTotal,
		m.DocsIngestedTotal,
		m.ScanDuration,
		m.ScanResultsCount,
		m.ValidationDuration,
		m.ValidationFoldsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CorpusDocuments,
		m.CatalogFeatures,
		m.StreamErrorsTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
