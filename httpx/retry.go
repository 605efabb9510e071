package httpx

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/normanking/contentpipe/logging"
	"github.com/normanking/contentpipe/perr"
)

// RetryPolicy configures exponential backoff with jitter, grounded on the
// teacher's resilience.RetryConfig but delegating the backoff/jitter math
// to cenkalti/backoff/v4 instead of a hand-rolled sine-based jitter.
type RetryPolicy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
}

func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   maxAttempts,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialDelay
	eb.MaxInterval = p.MaxDelay
	eb.Multiplier = p.BackoffFactor
	eb.RandomizationFactor = 0.2
	eb.MaxElapsedTime = 0 // bounded by MaxAttempts via backoff.WithMaxRetries instead
	return backoff.WithMaxRetries(eb, uint64(max0(p.MaxAttempts-1)))
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// isRetryableStatus reports whether an HTTP status code is worth retrying:
// transient 5xx, and 408/429 (spec.md §4.5 — "non-retryable on 4xx except
// 408/429").
func isRetryableStatus(code int) bool {
	if code >= 500 {
		return true
	}
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
}

// retryAfterDelay parses a Retry-After header (seconds or HTTP-date) and
// returns the wait duration, or zero if absent/unparseable.
func retryAfterDelay(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d > 0 {
			return d
		}
	}
	return 0
}

// Do executes fn with retries, honoring Retry-After and the configured
// backoff. fn should return (resp, err); Do classifies the outcome itself
// so callers never have to duplicate retryability logic.
func Do(ctx context.Context, policy RetryPolicy, logger logging.Logger, fn func() (*http.Response, error)) (*http.Response, int, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	bo := backoff.WithContext(policy.newBackOff(), ctx)

	attempts := 0
	var lastResp *http.Response
	var lastErr error

	operation := func() error {
		attempts++
		resp, err := fn()
		if err != nil {
			lastErr = err
			lastResp = nil
			return err // network error: retryable by backoff
		}
		lastResp = resp
		lastErr = nil
		if isRetryableStatus(resp.StatusCode) {
			if d := retryAfterDelay(resp); d > 0 {
				// Wait out Retry-After first; the computed backoff delay is
				// still applied on top once the retryable error is returned.
				timer := time.NewTimer(d)
				defer timer.Stop()
				select {
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				case <-timer.C:
				}
			}
			return errRetryableStatus
		}
		return nil
	}

	err := backoff.Retry(operation, bo)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return lastResp, attempts, ctx.Err()
		}
		logger.Warn("http retry exhausted", map[string]interface{}{"attempts": attempts})
		return lastResp, attempts, perr.New("httpx.Do", perr.CategoryNetwork, perr.ErrMaxRetriesExceeded)
	}
	return lastResp, attempts, lastErr
}

var errRetryableStatus = errors.New("retryable http status")
