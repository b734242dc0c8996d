package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// promauto registers metrics globally, so each test uses its own namespace.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_catalog_new")

	assert.NotNil(t, m.FetchesTotal)
	assert.NotNil(t, m.FetchDuration)
	assert.NotNil(t, m.EntriesPerPage)
	assert.NotNil(t, m.CatalogRequestsTotal)
	assert.NotNil(t, m.CatalogRequestDuration)
	assert.NotNil(t, m.CatalogRateLimited)
	assert.NotNil(t, m.FilesImported)
	assert.NotNil(t, m.EntriesImported)
	assert.NotNil(t, m.ScansTotal)
	assert.NotNil(t, m.ScannedFiles)
	assert.NotNil(t, m.EventsPublished)
	assert.NotNil(t, m.EventsFailed)
}

func TestRecordFetchCompleted(t *testing.T) {
	m := NewMetrics("test_fetch_completed")

	m.RecordFetchCompleted("GVK", 50, 0.4)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchesTotal.WithLabelValues("GVK", OutcomeSuccess)))
	count, err := getHistogramSampleCount(m.EntriesPerPage.WithLabelValues("GVK").(prometheus.Histogram))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestRecordFetchFailed(t *testing.T) {
	m := NewMetrics("test_fetch_failed")

	m.RecordFetchFailed("GVK", "network", 1.2)
	m.RecordFetchFailed("GVK", "parser", 0.3)
	m.RecordFetchFailed("GVK", "network", 0.1)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.FetchesTotal.WithLabelValues("GVK", "network")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FetchesTotal.WithLabelValues("GVK", "parser")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.FetchesTotal.WithLabelValues("GVK", OutcomeSuccess)))
}

func TestRecordCatalogRequest(t *testing.T) {
	m := NewMetrics("test_catalog_request")

	m.RecordCatalogRequest("gvk", 200, 0.1)
	m.RecordCatalogRequest("gvk", 429, 0.1)
	m.RecordCatalogRequest("gvk", 503, 0.1)
	m.RecordCatalogRequest("gvk", 0, 0.1)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CatalogRequestsTotal.WithLabelValues("gvk", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CatalogRequestsTotal.WithLabelValues("gvk", "4xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CatalogRequestsTotal.WithLabelValues("gvk", "5xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CatalogRequestsTotal.WithLabelValues("gvk", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CatalogRateLimited.WithLabelValues("gvk")))
}

func TestRecordFileImported(t *testing.T) {
	m := NewMetrics("test_file_imported")

	m.RecordFileImported("imported", 3)
	m.RecordFileImported("warning", 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.FilesImported.WithLabelValues("imported")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FilesImported.WithLabelValues("warning")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.EntriesImported))
}

func TestRecordScan(t *testing.T) {
	m := NewMetrics("test_scan")

	m.RecordScan(12)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ScansTotal))
	count, err := getHistogramSampleCount(m.ScannedFiles)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestRecordEvents(t *testing.T) {
	m := NewMetrics("test_events")

	m.RecordEventPublished("entries.imported")
	m.RecordEventFailed("entries.imported")
	m.RecordEventPublished("entries.imported")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.EventsPublished.WithLabelValues("entries.imported")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsFailed.WithLabelValues("entries.imported")))
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "error"},
		{101, "1xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{502, "5xx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusClass(tt.code), "code %d", tt.code)
	}
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var out = &dto.Metric{}
	if err := m.Write(out); err != nil {
		return 0, err
	}

	return out.Histogram.GetSampleCount(), nil
}
