// Package httpx is the single call site for all outbound HTTP traffic
// (spec.md §4.5). Direct use of net/http elsewhere in this module is
// forbidden; see doc.go for the lint-gate rationale.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/normanking/contentpipe/config"
	"github.com/normanking/contentpipe/logging"
	"github.com/normanking/contentpipe/telemetry"
)

// Response is the substrate's uniform response envelope.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Options configures a single call; any zero field falls back to the
// client's process-level configuration.
type Options struct {
	Timeout         time.Duration
	ExplicitRetries *int
	TenantID        string
	Headers         map[string]string
	Body            io.Reader
	// CacheTTL > 0 opts a GET into the cache (spec.md "cached_get").
	CacheTTL time.Duration
}

// CacheLayer is the subset of cache.MultiLevelCache the substrate needs for
// cached_get; declared here (rather than importing package cache) to avoid
// a dependency cycle, since cache itself may shell out through httpx for a
// semantic-cache embedding provider in some deployments.
type CacheLayer interface {
	Get(ctx context.Context, domain, key string) ([]byte, bool, string, error)
	Set(ctx context.Context, domain, key string, value []byte, ttl time.Duration) error
}

// Client is the single HTTP call site.
type Client struct {
	httpClient *http.Client
	cfg        *config.Config
	logger     logging.Logger
	telemetry  *telemetry.Provider
	breakers   *HostBreakers
	limiters   *HostLimiters
	cache      CacheLayer
}

func New(cfg *config.Config, logger logging.Logger, tel *telemetry.Provider, cache CacheLayer) *Client {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	transport := otelhttp.NewTransport(http.DefaultTransport)
	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: cfg.HTTP.DefaultTimeout},
		cfg:        cfg,
		logger:     logger,
		telemetry:  tel,
		breakers:   NewHostBreakers(DefaultCircuitConfig(), logger),
		limiters:   NewHostLimiters(20, 40),
		cache:      cache,
	}
}

// Get issues a GET request, applying retry, circuit breaker, rate limiting,
// and (when opts.CacheTTL > 0) the caching-GET path.
func (c *Client) Get(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if opts.CacheTTL > 0 && c.cache != nil {
		return c.cachedGet(ctx, rawURL, opts)
	}
	return c.do(ctx, http.MethodGet, rawURL, opts)
}

// Post issues a POST request.
func (c *Client) Post(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	return c.do(ctx, http.MethodPost, rawURL, opts)
}

func (c *Client) cachedGet(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	key := rawURL
	if body, hit, _, err := c.cache.Get(ctx, "retrieval", key); err == nil && hit {
		return &Response{StatusCode: http.StatusOK, Body: body}, nil
	}
	resp, err := c.do(ctx, http.MethodGet, rawURL, opts)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		_ = c.cache.Set(ctx, "retrieval", key, resp.Body, opts.CacheTTL)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, opts Options) (*Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("httpx: invalid url %q: %w", rawURL, err)
	}
	host := parsed.Host

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.cfg.HTTP.DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := c.limiters.For(host)
	if err := limiter.Wait(callCtx); err != nil {
		return nil, fmt.Errorf("httpx: rate limit wait: %w", err)
	}

	cb := c.breakers.For(host)
	if !cb.CanExecute() {
		return nil, circuitOpenError(host)
	}

	retries := c.cfg.ResolveRetries(opts.ExplicitRetries, opts.TenantID)
	policy := DefaultRetryPolicy(retries)

	start := time.Now()
	resp, attempts, err := Do(callCtx, policy, c.logger, func() (*http.Response, error) {
		req, rerr := http.NewRequestWithContext(callCtx, method, rawURL, opts.Body)
		if rerr != nil {
			return nil, rerr
		}
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
		return c.httpClient.Do(req)
	})
	latency := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.recordMetrics(method, host, status, latency, attempts)

	if err != nil {
		cb.RecordFailure()
		return nil, err
	}
	if resp.StatusCode >= 500 {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess()
	}
	defer resp.Body.Close()
	body, rerr := io.ReadAll(resp.Body)
	if rerr != nil {
		return nil, fmt.Errorf("httpx: reading response body: %w", rerr)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body, Attempts: attempts}, nil
}

func (c *Client) recordMetrics(method, host string, status int, latency time.Duration, attempts int) {
	if c.telemetry == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("host", host),
		attribute.Int("status", status),
	)
	c.telemetry.HTTPRequests.Add(context.Background(), 1, attrs)
	c.telemetry.HTTPLatency.Record(context.Background(), latency.Seconds(), attrs)
	if attempts > 1 {
		c.telemetry.HTTPRetryAttempts.Add(context.Background(), int64(attempts-1), metric.WithAttributes(
			attribute.String("host", host),
		))
	}
}
