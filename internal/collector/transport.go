package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"BetaLens/internal/metrics"
)

// DefaultTimeout bounds every provider request.
const DefaultTimeout = 10 * time.Second

// TransportOptions configures the HTTP client shared by a provider's calls.
type TransportOptions struct {
	Timeout time.Duration
	Proxy   string
	// RatePerSecond <= 0 disables client-side rate limiting.
	RatePerSecond float64
	Burst         int
	Metrics       *metrics.Metrics
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d, body: %s", e.Provider, e.Code, e.Body)
}

type httpClient struct {
	name    string
	rc      *resty.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

func newHTTPClient(name, baseURL string, opts TransportOptions) *httpClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "BetaLens/1.0")
	if opts.Proxy != "" {
		rc.SetProxy(opts.Proxy)
	}

	st := gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// Client errors such as an unknown coin say nothing about provider health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500 && se.Code != 429
			}
			return false
		},
	}

	c := &httpClient{
		name:    name,
		rc:      rc,
		breaker: gobreaker.NewCircuitBreaker(st),
		metrics: opts.Metrics,
	}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return c
}

// get issues a GET and returns the raw body of a 2xx response.
func (c *httpClient) get(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	start := time.Now()
	body, err := c.do(ctx, path, params)
	c.metrics.ObserveFetch(c.name, start, err)
	return body, err
}

func (c *httpClient) do(ctx context.Context, path string, params map[string]string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s rate limit wait: %w", c.name, err)
		}
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.rc.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get(path)
		if err != nil {
			return nil, fmt.Errorf("%s request: %w", c.name, err)
		}
		if !resp.IsSuccess() {
			return nil, &StatusError{Provider: c.name, Code: resp.StatusCode(), Body: truncate(resp.String(), 200)}
		}
		return resp.Body(), nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s circuit breaker: %w", c.name, err)
		}
		return nil, err
	}
	return out.([]byte), nil
}

// breakerState is exposed for tests and health output.
func (c *httpClient) breakerState() gobreaker.State {
	return c.breaker.State()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
