package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

func TestHTTPDownloader_Open(t *testing.T) {
	t.Run("returns body and sends Accept", func(t *testing.T) {
		var accept string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accept = r.Header.Get("Accept")
			_, _ = w.Write([]byte("<records/>"))
		}))
		defer server.Close()

		d := NewHTTPDownloader(fastClient(HTTPClientConfig{}), DownloaderConfig{Source: "gvk", Accept: "application/xml"})
		u, err := url.Parse(server.URL)
		require.NoError(t, err)

		body, err := d.Open(context.Background(), u)
		require.NoError(t, err)
		defer body.Close()

		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, "<records/>", string(data))
		assert.Equal(t, "application/xml", accept)
	})

	t.Run("fails past the limit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("x", 100)))
		}))
		defer server.Close()

		d := NewHTTPDownloader(fastClient(HTTPClientConfig{}), DownloaderConfig{MaxBodySize: 10})
		u, _ := url.Parse(server.URL)

		body, err := d.Open(context.Background(), u)
		require.NoError(t, err)
		defer body.Close()

		data, err := io.ReadAll(body)
		assert.ErrorIs(t, err, ErrBodyTooLarge)
		assert.Len(t, data, 10)
	})

	t.Run("body exactly at the limit is complete", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("x", 10)))
		}))
		defer server.Close()

		d := NewHTTPDownloader(fastClient(HTTPClientConfig{}), DownloaderConfig{MaxBodySize: 10})
		u, _ := url.Parse(server.URL)

		body, err := d.Open(context.Background(), u)
		require.NoError(t, err)
		defer body.Close()

		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Len(t, data, 10)
	})

	t.Run("non-2xx status is an external API error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("denied"))
		}))
		defer server.Close()

		d := NewHTTPDownloader(fastClient(HTTPClientConfig{}), DownloaderConfig{Source: "gvk"})
		u, _ := url.Parse(server.URL)

		body, err := d.Open(context.Background(), u)
		assert.Nil(t, body)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "gvk", apiErr.Source)
		assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
		assert.Equal(t, "denied", apiErr.Message)
	})

	t.Run("defaults the body limit", func(t *testing.T) {
		d := NewHTTPDownloader(NewHTTPClient(HTTPClientConfig{}), DownloaderConfig{})
		assert.Equal(t, DefaultMaxBodySize, d.maxBodySize)
	})
}
