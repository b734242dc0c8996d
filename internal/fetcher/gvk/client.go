// Package gvk searches the GVK union catalog (Gemeinsamer Verbundkatalog) over
// SRU and parses its PICA-XML records into entries.
package gvk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/catalog-fetch-service/internal/domain"
	"github.com/helixir/catalog-fetch-service/internal/fetcher"
)

const (
	// Name is the fetcher name under which GVK is registered.
	Name = "GVK"

	// HelpPage documents the GVK search syntax.
	HelpPage = "https://docs.jabref.org/collect/import-using-online-bibliographic-database#gvk"

	// DefaultBaseURL is the GVK SRU endpoint.
	DefaultBaseURL = "https://sru.gbv.de/gvk"

	// DefaultMaxRecords is the page size requested from GVK.
	DefaultMaxRecords = 50

	// DefaultSortKeys sorts by year, newest first.
	DefaultSortKeys = "Year,,1"

	// DefaultRateLimit is the default requests per second.
	DefaultRateLimit = 2.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 2

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	sruVersion   = "1.1"
	recordSchema = "picaxml"
)

// ErrNegativePage is returned for a page number below zero.
var ErrNegativePage = errors.New("page number must not be negative")

// Config holds configuration for the GVK client.
type Config struct {
	// BaseURL is the SRU endpoint.
	BaseURL string

	// MaxRecords is the number of records per page.
	MaxRecords int

	// SortKeys is sent as the SRU sortKeys parameter.
	SortKeys string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxRetries is the number of retries on 429 and 5xx.
	MaxRetries int

	// MaxBodySize limits the bytes read from a response.
	MaxBodySize int64

	// UserAgent overrides the default User-Agent.
	UserAgent string
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.MaxRecords <= 0 {
		c.MaxRecords = DefaultMaxRecords
	}
	if c.SortKeys == "" {
		c.SortKeys = DefaultSortKeys
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
}

// DefaultConfig returns the configuration used against the public endpoint.
func DefaultConfig() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// HTTPClientConfig returns the transport settings for cfg after defaults.
func (c Config) HTTPClientConfig() fetcher.HTTPClientConfig {
	c.applyDefaults()
	return fetcher.HTTPClientConfig{
		Source:     Name,
		Timeout:    c.Timeout,
		RateLimit:  c.RateLimit,
		BurstSize:  c.BurstSize,
		MaxRetries: c.MaxRetries,
		UserAgent:  c.UserAgent,
	}
}

// Client fetches pages of GVK search results.
type Client struct {
	config      Config
	transformer QueryTransformer
	pages       *fetcher.ParserFetcher
}

var (
	_ fetcher.SearchFetcher    = (*Client)(nil)
	_ fetcher.QueryTransformer = (*Client)(nil)
)

// New creates a GVK client with its own rate-limited HTTP client.
func New(cfg Config, opts ...fetcher.Option) *Client {
	return NewWithHTTPClient(cfg, fetcher.NewHTTPClient(cfg.HTTPClientConfig()), opts...)
}

// NewWithHTTPClient creates a GVK client using httpClient for transport.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *fetcher.HTTPClient, opts ...fetcher.Option) *Client {
	cfg.applyDefaults()

	downloader := fetcher.NewHTTPDownloader(httpClient, fetcher.DownloaderConfig{
		Source:      Name,
		Accept:      "application/xml",
		MaxBodySize: cfg.MaxBodySize,
	})
	return NewWithDownloader(cfg, downloader, opts...)
}

// NewWithDownloader creates a GVK client on top of an arbitrary downloader.
func NewWithDownloader(cfg Config, downloader fetcher.Downloader, opts ...fetcher.Option) *Client {
	cfg.applyDefaults()

	c := &Client{config: cfg}
	c.pages = fetcher.NewParserFetcher(Name, c, downloader, Parser{}, Cleanup, opts...)
	return c
}

// Name returns "GVK".
func (c *Client) Name() string {
	return Name
}

// HelpPage returns the documentation URL for the GVK search syntax.
func (c *Client) HelpPage() string {
	return HelpPage
}

// TransformQuery converts a user search expression into GVK CQL.
func (c *Client) TransformQuery(query string) (string, error) {
	return c.transformer.Transform(query)
}

// URLForQueryPage builds the SRU searchRetrieve URL for an already
// transformed query. startRecord is 1-based, so page 0 starts at record 1
// and page 1 at record MaxRecords+1.
func (c *Client) URLForQueryPage(query string, page int) (*url.URL, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if page < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativePage, page)
	}
	if page > (math.MaxInt32-1)/c.config.MaxRecords {
		return nil, fmt.Errorf("page %d is out of range", page)
	}

	u, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL %q is not absolute", c.config.BaseURL)
	}

	params := url.Values{}
	params.Set("version", sruVersion)
	params.Set("operation", "searchRetrieve")
	params.Set("query", query)
	params.Set("maximumRecords", strconv.Itoa(c.config.MaxRecords))
	params.Set("recordSchema", recordSchema)
	params.Set("sortKeys", c.config.SortKeys)
	params.Set("startRecord", strconv.Itoa(page*c.config.MaxRecords+1))

	u.RawQuery = params.Encode()
	return u, nil
}

// FetchPage fetches one page of results for an already transformed query.
func (c *Client) FetchPage(ctx context.Context, query string, page int) (*domain.Page[*domain.Entry], error) {
	return c.pages.FetchPage(ctx, query, page)
}
