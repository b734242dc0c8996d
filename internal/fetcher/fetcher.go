// Package fetcher adapts a URL builder, a downloader and a response parser
// into a paged search fetcher.
//
// A catalog integration supplies three pieces: how to turn a query and a page
// number into a request URL, how to parse a response body into entries, and an
// optional per-entry cleanup step. ParserFetcher combines them with a
// Downloader and classifies every failure as a *domain.FetchError:
//
//	f := fetcher.NewParserFetcher("GVK", urls, downloader, parser, cleanup)
//	page, err := f.FetchPage(ctx, query, 0)
//	if kind, ok := domain.FetchErrorKindOf(err); ok && kind == domain.FetchErrorNetwork {
//		// retry later
//	}
package fetcher

import (
	"context"
	"errors"
	"io"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/catalog-fetch-service/internal/domain"
	"github.com/helixir/catalog-fetch-service/internal/observability"
)

// URLBuilder maps a query and a zero-based page number to a request URL.
// It must be deterministic and must not perform I/O.
type URLBuilder interface {
	URLForQueryPage(query string, page int) (*url.URL, error)
}

// PagedFetcher returns one page of search results per call.
type PagedFetcher interface {
	URLBuilder

	// FetchPage returns the entries on the given page. Every error is a
	// *domain.FetchError; no partial page is ever returned.
	FetchPage(ctx context.Context, query string, page int) (*domain.Page[*domain.Entry], error)
}

// SearchFetcher is a PagedFetcher with a display name, as held by a Registry.
type SearchFetcher interface {
	PagedFetcher
	Name() string
}

// QueryTransformer rewrites a user search expression into the query
// language of a backend. Fetchers that implement it receive transformed
// queries from Search.
type QueryTransformer interface {
	TransformQuery(query string) (string, error)
}

// Downloader opens a readable stream for a URL. The caller closes the stream.
type Downloader interface {
	Open(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

// Parser decodes a response body into entries, in source order.
type Parser interface {
	Parse(r io.Reader) ([]*domain.Entry, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(r io.Reader) ([]*domain.Entry, error)

// Parse calls f(r).
func (f ParserFunc) Parse(r io.Reader) ([]*domain.Entry, error) {
	return f(r)
}

// CleanupFunc normalizes a parsed entry in place.
type CleanupFunc func(*domain.Entry)

// NoCleanup leaves entries unchanged.
func NoCleanup(*domain.Entry) {}

// Option configures a ParserFetcher.
type Option func(*ParserFetcher)

// WithLogger sets the logger used for per-fetch log lines.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *ParserFetcher) {
		f.logger = logger
	}
}

// WithMetrics records fetch outcomes in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(f *ParserFetcher) {
		f.metrics = m
	}
}

// ParserFetcher implements SearchFetcher on top of a URLBuilder, a Downloader,
// a Parser and a CleanupFunc. It holds no mutable state, so concurrent calls
// are independent.
type ParserFetcher struct {
	name       string
	urls       URLBuilder
	downloader Downloader
	parser     Parser
	cleanup    CleanupFunc
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

var _ SearchFetcher = (*ParserFetcher)(nil)

// NewParserFetcher creates a ParserFetcher. A nil cleanup means NoCleanup.
func NewParserFetcher(name string, urls URLBuilder, downloader Downloader, parser Parser, cleanup CleanupFunc, opts ...Option) *ParserFetcher {
	if cleanup == nil {
		cleanup = NoCleanup
	}
	f := &ParserFetcher{
		name:       name,
		urls:       urls,
		downloader: downloader,
		parser:     parser,
		cleanup:    cleanup,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name returns the fetcher name.
func (f *ParserFetcher) Name() string {
	return f.name
}

// URLForQueryPage delegates to the underlying URLBuilder.
func (f *ParserFetcher) URLForQueryPage(query string, page int) (*url.URL, error) {
	return f.urls.URLForQueryPage(query, page)
}

// FetchPage builds the URL for (query, page), downloads it, parses the body
// and applies the cleanup hook to each entry in parser order.
//
// The downloader is not called when no URL can be built. The stream is
// closed on every path once opened.
func (f *ParserFetcher) FetchPage(ctx context.Context, query string, page int) (*domain.Page[*domain.Entry], error) {
	start := time.Now()
	log := observability.WithFetchContext(observability.LoggerFromContext(ctx, f.logger), f.name, query, page)

	entries, err := f.fetch(ctx, query, page, &log)
	elapsed := time.Since(start)
	if err != nil {
		kind, _ := domain.FetchErrorKindOf(err)
		log.Warn().Err(err).Str("kind", string(kind)).Dur("elapsed", elapsed).Msg("fetch failed")
		if f.metrics != nil {
			f.metrics.RecordFetchFailed(f.name, string(kind), elapsed.Seconds())
		}
		return nil, err
	}

	log.Debug().Int("entries", len(entries)).Dur("elapsed", elapsed).Msg("fetch completed")
	if f.metrics != nil {
		f.metrics.RecordFetchCompleted(f.name, len(entries), elapsed.Seconds())
	}
	return domain.NewPage(query, page, entries), nil
}

func (f *ParserFetcher) fetch(ctx context.Context, query string, page int, log *zerolog.Logger) ([]*domain.Entry, error) {
	u, err := f.urls.URLForQueryPage(query, page)
	if err != nil {
		return nil, domain.NewMalformedURLError(err)
	}
	if u == nil {
		return nil, domain.NewMalformedURLError(errors.New("no URL built"))
	}
	raw := u.String()
	*log = log.With().Str("url", raw).Logger()

	stream, err := f.downloader.Open(ctx, u)
	if err != nil {
		return nil, domain.NewNetworkError(raw, err)
	}
	defer stream.Close()

	body := &trackingReader{r: stream}
	entries, err := f.parser.Parse(body)
	if err != nil {
		if body.err != nil {
			return nil, domain.NewNetworkError(raw, body.err)
		}
		return nil, domain.NewParserError(raw, err)
	}

	for _, entry := range entries {
		f.cleanup(entry)
	}
	return entries, nil
}

// trackingReader remembers the first non-EOF read error, so a parse failure
// caused by a broken stream can be reported as a network failure.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && t.err == nil {
		t.err = err
	}
	return n, err
}

// FetchAll returns the entries of page 0 only. It does not walk further pages.
func FetchAll(ctx context.Context, f PagedFetcher, query string) ([]*domain.Entry, error) {
	page, err := f.FetchPage(ctx, query, 0)
	if err != nil {
		return nil, err
	}
	return page.Content(), nil
}

// Search transforms query when f implements QueryTransformer and fetches the
// given page. It returns the query actually sent. A transformer failure is
// reported as a malformed-URL fetch error.
func Search(ctx context.Context, f PagedFetcher, query string, page int) (string, *domain.Page[*domain.Entry], error) {
	if t, ok := f.(QueryTransformer); ok {
		transformed, err := t.TransformQuery(query)
		if err != nil {
			return "", nil, domain.NewMalformedURLError(err)
		}
		query = transformed
	}
	p, err := f.FetchPage(ctx, query, page)
	if err != nil {
		return query, nil, err
	}
	return query, p, nil
}

// URLForQuery returns the URL for page 0 of query. A builder failure is
// reported as a malformed-URL fetch error.
func URLForQuery(b URLBuilder, query string) (*url.URL, error) {
	u, err := b.URLForQueryPage(query, 0)
	if err != nil {
		var fe *domain.FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, domain.NewMalformedURLError(err)
	}
	return u, nil
}
