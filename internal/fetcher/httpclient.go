package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

// Defaults applied by NewHTTPClient.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultRateLimit  = 2.0
	DefaultBurstSize  = 2
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
	DefaultUserAgent  = "Helixir-CatalogFetch/1.0"
)

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	// Source names the remote catalog in errors and metrics.
	Source string

	// Timeout bounds each attempt, including reading the body.
	Timeout time.Duration

	// RateLimit is the sustained requests per second.
	RateLimit float64

	// BurstSize is the token bucket size.
	BurstSize int

	// MaxRetries is the number of retries after the first attempt.
	// Negative disables retries.
	MaxRetries int

	// RetryDelay is used when the server gives no Retry-After.
	RetryDelay time.Duration

	// UserAgent is sent unless the request already sets one.
	UserAgent string
}

// RequestObserver is notified after every attempt. statusCode is 0 when the
// attempt failed before a response arrived.
type RequestObserver func(source string, statusCode int, elapsed time.Duration)

// HTTPClient is an http.Client with per-source rate limiting and retries on
// 429 and 5xx responses. It is safe for concurrent use.
type HTTPClient struct {
	client   *http.Client
	limiter  *RateLimiter
	config   HTTPClientConfig
	observer RequestObserver
}

// NewHTTPClient creates an HTTPClient, filling unset fields with defaults.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	} else if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	return &HTTPClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: NewRateLimiter(cfg.RateLimit, cfg.BurstSize),
		config:  cfg,
	}
}

// WithObserver sets the per-attempt observer and returns the client.
func (c *HTTPClient) WithObserver(observer RequestObserver) *HTTPClient {
	c.observer = observer
	return c
}

// Do sends a GET-style request, retrying on transport errors, 429 and 5xx.
// Context cancellation is never retried. When retries are exhausted on 429
// the returned error wraps a *domain.RateLimitError.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := rewindBody(req); err != nil {
				return nil, fmt.Errorf("cannot retry request: %w", err)
			}
		}

		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		if err != nil {
			c.observe(0, time.Since(start))
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt < c.config.MaxRetries {
				if err := sleepCtx(req.Context(), c.config.RetryDelay); err != nil {
					return nil, err
				}
			}
			continue
		}
		c.observe(resp.StatusCode, time.Since(start))

		if !retryable(resp.StatusCode) {
			return resp, nil
		}

		delay := c.retryDelay(resp)
		drain(resp)
		lastErr = statusError(c.config.Source, resp.StatusCode, delay)

		if attempt < c.config.MaxRetries {
			if err := sleepCtx(req.Context(), delay); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *HTTPClient) observe(status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer(c.config.Source, status, elapsed)
	}
}

// retryDelay honors Retry-After given either in seconds or as an HTTP date.
func (c *HTTPClient) retryDelay(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return c.config.RetryDelay
	}
	if seconds, err := strconv.ParseInt(header, 10, 64); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return c.config.RetryDelay
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return c.config.RetryDelay
}

func retryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= 500 && statusCode < 600)
}

func statusError(source string, statusCode int, retryAfter time.Duration) error {
	if statusCode == http.StatusTooManyRequests {
		return domain.NewRateLimitError(source, retryAfter)
	}
	return domain.NewExternalAPIError(source, statusCode, http.StatusText(statusCode), nil)
}

func drain(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func rewindBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to get request body for retry: %w", err)
	}
	req.Body = body
	return nil
}
