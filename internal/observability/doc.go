// Package observability provides logging and metrics support for the
// catalog fetch service.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger = observability.WithComponent(logger, "fetcher")
//
// Fetch log lines carry the fetcher name, the query and the page number:
//
//	log := observability.WithFetchContext(logger, "GVK", query, page)
//
// # Metrics
//
//	metrics := observability.NewMetrics("catalog_fetch")
//	metrics.RecordFetchCompleted("GVK", 50, elapsed.Seconds())
//
// # Standard Fields
//
//   - request_id: HTTP request identifier
//   - component: emitting package
//   - fetcher: fetcher name (GVK)
//   - query, page, url: the fetch being performed
//   - importer, plugin_id: custom importer descriptor
//
// All components are safe for concurrent use from multiple goroutines.
package observability
