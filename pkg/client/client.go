// Package client provides the HTTP transport used to reach the problem site:
// a pooled http.Client with a per-request timeout, a declarative retry policy
// for transient failures and an optional page cache.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/bongard-harvester/pkg/cache"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// PageCache stores page bodies between runs. *cache.Manager implements it.
type PageCache interface {
	Get(ctx context.Context, rawURL string) (*cache.CacheEntry, error)
	Set(ctx context.Context, rawURL string, entry *cache.CacheEntry) error
	TTL() time.Duration
}

// StatusObserver is notified of every HTTP status the origin returns.
type StatusObserver interface {
	Observe(statusCode int)
}

// Response is a fully read origin response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte

	// Cached is true when the body came from the page cache.
	Cached bool
}

// Client is the shared transport. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cache      PageCache
	observer   StatusObserver
	limiter    *rate.Limiter
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Timeout bounds a single request attempt, body included.
	Timeout time.Duration

	// UserAgent header sent with every request
	UserAgent string

	// MaxIdleConnsPerHost sizes the keep-alive pool (use the worker count).
	MaxIdleConnsPerHost int

	// MaxBodyBytes caps a response body; larger bodies fail the request.
	MaxBodyBytes int64

	// Retry policy for transient failures
	Retry RetryConfig

	// MaxRequestsPerSecond caps requests across all workers. 0 disables the cap.
	MaxRequestsPerSecond float64

	// Cache is optional; when set, GetPage serves and stores pages through it.
	Cache PageCache

	// Observer is optional.
	Observer StatusObserver
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:             10 * time.Second,
		UserAgent:           "Mozilla/5.0 (compatible; bongard-harvester/1.0)",
		MaxIdleConnsPerHost: 8,
		MaxBodyBytes:        32 << 20,
		Retry:               DefaultRetryConfig(),
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %v)", cfg.Timeout)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if err := cfg.Retry.Validate(); err != nil {
		return nil, err
	}

	if cfg.MaxRequestsPerSecond < 0 {
		return nil, fmt.Errorf("max requests per second must not be negative (got %v)", cfg.MaxRequestsPerSecond)
	}

	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 8
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = cfg.MaxIdleConnsPerHost * 2
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost

	var limiter *rate.Limiter
	if cfg.MaxRequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), max(1, int(cfg.MaxRequestsPerSecond)))
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		cache:    cfg.Cache,
		observer: cfg.Observer,
		limiter:  limiter,
		config:   cfg,
		logger:   log.With().Str("component", "transport").Logger(),
	}, nil
}

// Get fetches rawURL, retrying transient failures per the retry policy.
//
// A 404 returns a *RequestError wrapping ErrNotFound without retrying.
// Exhausted retries return an error wrapping both ErrRetryExhausted and the
// last *RequestError, whose ErrorClass tells network failures apart from
// transient statuses.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	var resp *Response

	err := retryWithBackoff(ctx, c.config.Retry, c.logger.With().Str("url", rawURL).Logger(), func(attempt int) error {
		r, err := c.attempt(ctx, rawURL)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// GetPage is Get with the page cache in front of it.
// Cache failures are logged and fall through to the origin.
func (c *Client) GetPage(ctx context.Context, rawURL string) (*Response, error) {
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, rawURL)
		switch {
		case err == nil:
			c.logger.Debug().Str("url", rawURL).Msg("Page served from cache")
			return &Response{
				URL:        rawURL,
				StatusCode: entry.StatusCode,
				Header:     entry.Header(),
				Body:       entry.Data,
				Cached:     true,
			}, nil
		case errors.Is(err, cache.ErrCacheMiss):
		default:
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Cache get error")
		}
	}

	resp, err := c.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && cache.Cacheable(resp.StatusCode, resp.Header) {
		entry := cache.NewEntry(resp.StatusCode, resp.Header, resp.Body, c.cache.TTL())
		if err := c.cache.Set(ctx, rawURL, entry); err != nil {
			c.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to cache page")
		}
	}

	return resp, nil
}

// attempt performs exactly one request and reads the whole body.
func (c *Client) attempt(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &RequestError{URL: rawURL, ErrorClass: ErrorClassClient, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("error").Inc()
		c.logger.Debug().Err(err).Str("url", rawURL).Msg("HTTP request failed")
		return nil, &RequestError{URL: rawURL, ErrorClass: ErrorClassNetwork, Retriable: true, Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	if c.observer != nil {
		c.observer.Observe(resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection goes back to the pool.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		errClass := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		reqErr := &RequestError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Retriable:  c.config.Retry.IsRetryableStatus(resp.StatusCode),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		if errClass == ErrorClassNotFound {
			reqErr.Retriable = false
			reqErr.Err = ErrNotFound
		}

		c.logger.Debug().
			Str("url", rawURL).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Origin returned error status")
		return nil, reqErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes+1))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &RequestError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Retriable:  !isContextDone(ctx),
			Err:        fmt.Errorf("read body: %w", err),
		}
	}
	if int64(len(body)) > c.config.MaxBodyBytes {
		return nil, &RequestError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassClient,
			Err:        fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.config.MaxBodyBytes),
		}
	}

	return &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

// parseRetryAfter understands both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func isContextDone(ctx context.Context) bool {
	return ctx.Err() != nil
}

// Close releases idle pooled connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
