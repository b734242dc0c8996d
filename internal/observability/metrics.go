package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcome label values.
const (
	OutcomeSuccess = "success"
)

// Metrics contains all Prometheus metrics for the catalog fetch service.
// Metrics are grouped by subsystem: fetches, catalog requests, imports,
// unlinked file scans, and events. All collectors are registered via promauto
// with the default Prometheus registry.
type Metrics struct {
	// FetchesTotal counts paged fetches by fetcher and outcome. Outcome is
	// "success" or the fetch error kind (malformed_url, network, parser).
	FetchesTotal *prometheus.CounterVec

	// FetchDuration observes the duration of a paged fetch in seconds.
	FetchDuration *prometheus.HistogramVec

	// EntriesPerPage observes the number of entries on each fetched page.
	EntriesPerPage *prometheus.HistogramVec

	// CatalogRequestsTotal counts HTTP attempts against remote catalogs,
	// labeled by source and status class ("2xx", "5xx", "error").
	CatalogRequestsTotal *prometheus.CounterVec

	// CatalogRequestDuration observes HTTP attempt duration in seconds.
	CatalogRequestDuration *prometheus.HistogramVec

	// CatalogRateLimited counts 429 responses from remote catalogs.
	CatalogRateLimited *prometheus.CounterVec

	// FilesImported counts imported files by result status (imported, warning).
	FilesImported *prometheus.CounterVec

	// EntriesImported counts entries created by imports.
	EntriesImported prometheus.Counter

	// ScansTotal counts unlinked file scans.
	ScansTotal prometheus.Counter

	// ScannedFiles observes the number of unlinked files found per scan.
	ScannedFiles prometheus.Histogram

	// EventsPublished counts events handed to the broker, by event type.
	EventsPublished *prometheus.CounterVec

	// EventsFailed counts events the broker rejected, by event type.
	EventsFailed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Fetches
		FetchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Total number of paged fetches by fetcher and outcome",
		}, []string{"fetcher", "outcome"}),
		FetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of paged fetches in seconds by fetcher",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"fetcher"}),
		EntriesPerPage: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "entries_per_page",
			Help:      "Number of entries returned per page by fetcher",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"fetcher"}),

		// Catalogs
		CatalogRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_requests_total",
			Help:      "Total number of HTTP requests to remote catalogs",
		}, []string{"source", "status"}),
		CatalogRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_request_duration_seconds",
			Help:      "Duration of HTTP requests to remote catalogs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		CatalogRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_rate_limited_total",
			Help:      "Total number of rate limit responses from remote catalogs",
		}, []string{"source"}),

		// Imports
		FilesImported: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_imported_total",
			Help:      "Total number of files processed by import, by result status",
		}, []string{"status"}),
		EntriesImported: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_imported_total",
			Help:      "Total number of entries created from imported files",
		}),

		// Unlinked files
		ScansTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unlinked_scans_total",
			Help:      "Total number of unlinked file scans",
		}),
		ScannedFiles: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "unlinked_files_per_scan",
			Help:      "Number of unlinked files found per scan",
			Buckets:   []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
		}),

		// Events
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of events published by type",
		}, []string{"event_type"}),
		EventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of events that failed to publish by type",
		}, []string{"event_type"}),
	}
}

// RecordFetchCompleted records a successful paged fetch.
func (m *Metrics) RecordFetchCompleted(fetcher string, entryCount int, durationSeconds float64) {
	m.FetchesTotal.WithLabelValues(fetcher, OutcomeSuccess).Inc()
	m.FetchDuration.WithLabelValues(fetcher).Observe(durationSeconds)
	m.EntriesPerPage.WithLabelValues(fetcher).Observe(float64(entryCount))
}

// RecordFetchFailed records a failed paged fetch. kind is the fetch error kind.
func (m *Metrics) RecordFetchFailed(fetcher, kind string, durationSeconds float64) {
	m.FetchesTotal.WithLabelValues(fetcher, kind).Inc()
	m.FetchDuration.WithLabelValues(fetcher).Observe(durationSeconds)
}

// RecordCatalogRequest records one HTTP attempt. statusCode 0 means the
// attempt failed before a response arrived.
func (m *Metrics) RecordCatalogRequest(source string, statusCode int, durationSeconds float64) {
	m.CatalogRequestsTotal.WithLabelValues(source, statusClass(statusCode)).Inc()
	m.CatalogRequestDuration.WithLabelValues(source).Observe(durationSeconds)
	if statusCode == 429 {
		m.CatalogRateLimited.WithLabelValues(source).Inc()
	}
}

// RecordFileImported records the result of importing one file.
func (m *Metrics) RecordFileImported(status string, entryCount int) {
	m.FilesImported.WithLabelValues(status).Inc()
	m.EntriesImported.Add(float64(entryCount))
}

// RecordScan records an unlinked file scan and the number of files it found.
func (m *Metrics) RecordScan(fileCount int) {
	m.ScansTotal.Inc()
	m.ScannedFiles.Observe(float64(fileCount))
}

// RecordEventPublished records a published event.
func (m *Metrics) RecordEventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventFailed records an event that could not be published.
func (m *Metrics) RecordEventFailed(eventType string) {
	m.EventsFailed.WithLabelValues(eventType).Inc()
}

func statusClass(statusCode int) string {
	switch {
	case statusCode <= 0:
		return "error"
	case statusCode < 200:
		return "1xx"
	case statusCode < 300:
		return "2xx"
	case statusCode < 400:
		return "3xx"
	case statusCode < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
