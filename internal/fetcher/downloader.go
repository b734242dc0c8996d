package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

// DefaultMaxBodySize bounds the bytes read from one response.
const DefaultMaxBodySize int64 = 10 << 20

// ErrBodyTooLarge is returned by a response body read past its size limit.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// HTTPDownloader implements Downloader over an HTTPClient.
type HTTPDownloader struct {
	client      *HTTPClient
	source      string
	accept      string
	maxBodySize int64
}

var _ Downloader = (*HTTPDownloader)(nil)

// DownloaderConfig configures an HTTPDownloader.
type DownloaderConfig struct {
	// Source names the catalog in errors.
	Source string

	// Accept is sent as the Accept header when set.
	Accept string

	// MaxBodySize limits the response body. Zero means DefaultMaxBodySize.
	MaxBodySize int64
}

// NewHTTPDownloader creates a downloader using client for transport.
func NewHTTPDownloader(client *HTTPClient, cfg DownloaderConfig) *HTTPDownloader {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	return &HTTPDownloader{
		client:      client,
		source:      cfg.Source,
		accept:      cfg.Accept,
		maxBodySize: cfg.MaxBodySize,
	}
}

// Open issues a GET for u and returns the response body. Non-2xx responses
// are returned as *domain.ExternalAPIError after the body is drained.
func (d *HTTPDownloader) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if d.accept != "" {
		req.Header.Set("Accept", d.accept)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		_ = resp.Body.Close()
		return nil, domain.NewExternalAPIError(d.source, resp.StatusCode, string(snippet), nil)
	}

	return &limitedBody{r: resp.Body, closer: resp.Body, remaining: d.maxBodySize}, nil
}

// limitedBody yields at most remaining bytes and then fails with
// ErrBodyTooLarge if the response has more.
type limitedBody struct {
	r         io.Reader
	closer    io.Closer
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		var one [1]byte
		n, err := b.r.Read(one[:])
		if n > 0 {
			return 0, ErrBodyTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.r.Read(p)
	b.remaining -= int64(n)
	return n, err
}

func (b *limitedBody) Close() error {
	return b.closer.Close()
}
