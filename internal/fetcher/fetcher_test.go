package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/catalog-fetch-service/internal/domain"
	"github.com/helixir/catalog-fetch-service/internal/observability"
)

// stubURLBuilder encodes query and page into an example.org URL.
type stubURLBuilder struct {
	err error
}

func (b stubURLBuilder) URLForQueryPage(query string, page int) (*url.URL, error) {
	if b.err != nil {
		return nil, b.err
	}
	return url.Parse("https://example.org/search?q=" + url.QueryEscape(query) + "&page=" + strconv.Itoa(page))
}

// spyStream records whether it was closed.
type spyStream struct {
	io.Reader
	closed atomic.Bool
}

func (s *spyStream) Close() error {
	s.closed.Store(true)
	return nil
}

// spyDownloader records calls and returns a fixed body or error.
type spyDownloader struct {
	body    string
	readErr error
	openErr error

	calls   atomic.Int32
	lastURL string
	stream  *spyStream
}

func (d *spyDownloader) Open(_ context.Context, u *url.URL) (io.ReadCloser, error) {
	d.calls.Add(1)
	d.lastURL = u.String()
	if d.openErr != nil {
		return nil, d.openErr
	}
	var r io.Reader = strings.NewReader(d.body)
	if d.readErr != nil {
		r = io.MultiReader(r, &failingReader{err: d.readErr})
	}
	d.stream = &spyStream{Reader: r}
	return d.stream, nil
}

type failingReader struct {
	err error
}

func (f *failingReader) Read([]byte) (int, error) {
	return 0, f.err
}

// lineParser turns every non-empty line into an entry titled with that line.
// A line "!" makes it fail.
type lineParser struct {
	calls atomic.Int32
}

func (p *lineParser) Parse(r io.Reader) ([]*domain.Entry, error) {
	p.calls.Add(1)
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	var entries []*domain.Entry
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "!" {
			return nil, errors.New("unexpected token")
		}
		e := domain.NewEntry(domain.EntryTypeBook)
		e.SetField(domain.FieldTitle, line)
		entries = append(entries, e)
	}
	return entries, nil
}

// recordingCleanup remembers the titles it saw, in order.
type recordingCleanup struct {
	seen []string
}

func (c *recordingCleanup) apply(e *domain.Entry) {
	c.seen = append(c.seen, e.Title())
	e.SetField("cleaned", "yes")
}

func TestParserFetcher_FetchPage(t *testing.T) {
	t.Run("returns cleaned entries in parser order", func(t *testing.T) {
		downloader := &spyDownloader{body: "Robotics\nAutomata\nControl\n"}
		parser := &lineParser{}
		cleanup := &recordingCleanup{}
		f := NewParserFetcher("stub", stubURLBuilder{}, downloader, parser, cleanup.apply)

		page, err := f.FetchPage(context.Background(), "title:robotics", 2)
		require.NoError(t, err)

		assert.Equal(t, "title:robotics", page.Query())
		assert.Equal(t, 2, page.PageNumber())
		require.Equal(t, 3, page.Size())

		titles := make([]string, 0, page.Size())
		for _, e := range page.Content() {
			titles = append(titles, e.Title())
			v, ok := e.Field("cleaned")
			assert.True(t, ok)
			assert.Equal(t, "yes", v)
		}
		assert.Equal(t, []string{"Robotics", "Automata", "Control"}, titles)
		assert.Equal(t, titles, cleanup.seen, "cleanup runs once per entry in order")
		assert.Equal(t, "https://example.org/search?q=title%3Arobotics&page=2", downloader.lastURL)
		assert.True(t, downloader.stream.closed.Load())
	})

	t.Run("empty result is an empty page", func(t *testing.T) {
		f := NewParserFetcher("stub", stubURLBuilder{}, &spyDownloader{}, &lineParser{}, nil)

		page, err := f.FetchPage(context.Background(), "q", 0)
		require.NoError(t, err)
		assert.Equal(t, 0, page.Size())
	})

	t.Run("malformed URL never reaches the downloader", func(t *testing.T) {
		downloader := &spyDownloader{body: "x"}
		parser := &lineParser{}
		f := NewParserFetcher("stub", stubURLBuilder{err: errors.New("bad syntax")}, downloader, parser, nil)

		page, err := f.FetchPage(context.Background(), "((", 0)
		require.Error(t, err)
		assert.Nil(t, page)

		var fe *domain.FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, domain.FetchErrorMalformedURL, fe.Kind)
		assert.Contains(t, err.Error(), "malformed")
		assert.ErrorIs(t, err, domain.ErrFetchFailed)
		assert.Equal(t, int32(0), downloader.calls.Load())
		assert.Equal(t, int32(0), parser.calls.Load())
	})

	t.Run("open failure is a network error and skips the parser", func(t *testing.T) {
		downloader := &spyDownloader{openErr: errors.New("connection refused")}
		parser := &lineParser{}
		f := NewParserFetcher("stub", stubURLBuilder{}, downloader, parser, nil)

		_, err := f.FetchPage(context.Background(), "q", 0)
		require.Error(t, err)

		kind, ok := domain.FetchErrorKindOf(err)
		require.True(t, ok)
		assert.Equal(t, domain.FetchErrorNetwork, kind)
		assert.Contains(t, err.Error(), "network error")
		assert.Contains(t, err.Error(), "https://example.org/search?q=q&page=0")
		assert.Equal(t, int32(0), parser.calls.Load())
	})

	t.Run("parse failure is a parser error and closes the stream", func(t *testing.T) {
		downloader := &spyDownloader{body: "ok\n!\n"}
		cleanup := &recordingCleanup{}
		f := NewParserFetcher("stub", stubURLBuilder{}, downloader, &lineParser{}, cleanup.apply)

		_, err := f.FetchPage(context.Background(), "q", 1)
		require.Error(t, err)

		kind, _ := domain.FetchErrorKindOf(err)
		assert.Equal(t, domain.FetchErrorParser, kind)
		assert.Contains(t, err.Error(), "internal parser error")
		assert.Contains(t, err.Error(), "page=1")
		assert.True(t, downloader.stream.closed.Load())
		assert.Empty(t, cleanup.seen, "no cleanup on failure")
	})

	t.Run("read failure during parse is a network error", func(t *testing.T) {
		downloader := &spyDownloader{body: "partial", readErr: errors.New("connection reset")}
		f := NewParserFetcher("stub", stubURLBuilder{}, downloader, &lineParser{}, nil)

		_, err := f.FetchPage(context.Background(), "q", 0)
		require.Error(t, err)

		kind, _ := domain.FetchErrorKindOf(err)
		assert.Equal(t, domain.FetchErrorNetwork, kind)
		assert.Contains(t, err.Error(), "connection reset")
		assert.True(t, downloader.stream.closed.Load())
	})
}

func TestParserFetcher_Observability(t *testing.T) {
	var buf bytes.Buffer
	metrics := observability.NewMetrics("test_parser_fetcher")
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	ok := NewParserFetcher("stub", stubURLBuilder{}, &spyDownloader{body: "a\nb\n"}, &lineParser{}, nil,
		WithLogger(logger), WithMetrics(metrics))
	_, err := ok.FetchPage(context.Background(), "q", 0)
	require.NoError(t, err)

	failing := NewParserFetcher("stub", stubURLBuilder{}, &spyDownloader{openErr: errors.New("down")}, &lineParser{}, nil,
		WithLogger(logger), WithMetrics(metrics))
	_, err = failing.FetchPage(context.Background(), "q", 0)
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FetchesTotal.WithLabelValues("stub", observability.OutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.FetchesTotal.WithLabelValues("stub", "network")))
	assert.Contains(t, buf.String(), `"message":"fetch completed"`)
	assert.Contains(t, buf.String(), `"message":"fetch failed"`)
	assert.Contains(t, buf.String(), `"fetcher":"stub"`)
}

func TestFetchAll(t *testing.T) {
	t.Run("equals the content of page 0", func(t *testing.T) {
		downloader := &spyDownloader{body: "one\ntwo\n"}
		f := NewParserFetcher("stub", stubURLBuilder{}, downloader, &lineParser{}, nil)

		entries, err := FetchAll(context.Background(), f, "q")
		require.NoError(t, err)
		page, err := f.FetchPage(context.Background(), "q", 0)
		require.NoError(t, err)

		require.Len(t, entries, page.Size())
		for i, e := range page.Content() {
			assert.Equal(t, e.Title(), entries[i].Title())
		}
		assert.Equal(t, int32(2), downloader.calls.Load(), "only page 0 is requested")
		assert.Contains(t, downloader.lastURL, "page=0")
	})

	t.Run("propagates fetch errors", func(t *testing.T) {
		f := NewParserFetcher("stub", stubURLBuilder{err: errors.New("bad")}, &spyDownloader{}, &lineParser{}, nil)

		entries, err := FetchAll(context.Background(), f, "q")
		assert.Nil(t, entries)
		assert.ErrorIs(t, err, domain.ErrFetchFailed)
	})
}

func TestURLForQuery(t *testing.T) {
	t.Run("uses page 0", func(t *testing.T) {
		u, err := URLForQuery(stubURLBuilder{}, "q")
		require.NoError(t, err)
		assert.Equal(t, "https://example.org/search?q=q&page=0", u.String())
	})

	t.Run("builder errors become malformed URL errors", func(t *testing.T) {
		_, err := URLForQuery(stubURLBuilder{err: errors.New("bad")}, "q")
		kind, ok := domain.FetchErrorKindOf(err)
		require.True(t, ok)
		assert.Equal(t, domain.FetchErrorMalformedURL, kind)
	})
}

func TestTrackingReader(t *testing.T) {
	boom := errors.New("boom")
	r := &trackingReader{r: io.MultiReader(strings.NewReader("abc"), &failingReader{err: boom})}

	_, err := io.ReadAll(r)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, boom, r.err)

	clean := &trackingReader{r: strings.NewReader("abc")}
	_, err = io.ReadAll(clean)
	require.NoError(t, err)
	assert.NoError(t, clean.err)
}

type upperTransformer struct {
	*ParserFetcher
	err error
}

func (u upperTransformer) TransformQuery(q string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	return strings.ToUpper(q), nil
}

func TestSearch(t *testing.T) {
	t.Run("transforms before fetching", func(t *testing.T) {
		downloader := &spyDownloader{body: "a\n"}
		f := upperTransformer{ParserFetcher: NewParserFetcher("stub", stubURLBuilder{}, downloader, &lineParser{}, nil)}

		sent, page, err := Search(context.Background(), f, "robotics", 1)
		require.NoError(t, err)
		assert.Equal(t, "ROBOTICS", sent)
		assert.Equal(t, "ROBOTICS", page.Query())
		assert.Contains(t, downloader.lastURL, "q=ROBOTICS")
	})

	t.Run("transformer failure is malformed and skips download", func(t *testing.T) {
		downloader := &spyDownloader{}
		f := upperTransformer{
			ParserFetcher: NewParserFetcher("stub", stubURLBuilder{}, downloader, &lineParser{}, nil),
			err:           errors.New("unbalanced"),
		}

		_, _, err := Search(context.Background(), f, "(", 0)
		kind, ok := domain.FetchErrorKindOf(err)
		require.True(t, ok)
		assert.Equal(t, domain.FetchErrorMalformedURL, kind)
		assert.Equal(t, int32(0), downloader.calls.Load())
	})

	t.Run("plain fetchers get the raw query", func(t *testing.T) {
		f := NewParserFetcher("stub", stubURLBuilder{}, &spyDownloader{}, &lineParser{}, nil)

		sent, _, err := Search(context.Background(), f, "raw", 0)
		require.NoError(t, err)
		assert.Equal(t, "raw", sent)
	})
}
