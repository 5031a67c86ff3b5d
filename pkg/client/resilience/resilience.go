// Package resilience wraps outbound HTTP calls with a circuit breaker and bounded retries.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable is returned while the circuit breaker rejects calls.
var ErrUnavailable = errors.New("dependency temporarily unavailable")

// errTransientStatus reports a response that should count as a breaker failure.
var errTransientStatus = errors.New("transient HTTP status")

// IsTransientStatus reports whether an HTTP status is worth retrying.
func IsTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// NewCircuitBreaker creates a breaker that trips on consecutive failures or on the configured error rate.
// Only transport errors and transient statuses count as failures; cancellation does not.
func NewCircuitBreaker(name string, cfg config.CircuitBreakerConfig) *gobreaker.CircuitBreaker[*http.Response] {
	maxRequests := cfg.HalfOpenRequests
	if maxRequests == 0 {
		maxRequests = 1
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			total := counts.TotalSuccesses + counts.TotalFailures
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures ||
				(total > cfg.ConsecutiveFailures &&
					float64(counts.TotalFailures)/float64(total)*100 > float64(cfg.ErrorRatePercent))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return gobreaker.NewCircuitBreaker[*http.Response](st)
}

// Transport is an http.RoundTripper that sends every request through a circuit breaker.
type Transport struct {
	base    http.RoundTripper
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

// NewTransport wraps base (http.DefaultTransport when nil) with the breaker.
func NewTransport(base http.RoundTripper, breaker *gobreaker.CircuitBreaker[*http.Response]) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{base: base, breaker: breaker}
}

// RoundTrip implements http.RoundTripper. Transient responses are returned to the caller untouched
// after being recorded as failures.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.breaker.Execute(func() (*http.Response, error) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if IsTransientStatus(resp.StatusCode) {
			return resp, errTransientStatus
		}
		return resp, nil
	})
	switch {
	case errors.Is(err, errTransientStatus):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%s: %w: %w", t.breaker.Name(), ErrUnavailable, err)
	}
	return resp, err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Retry runs op with exponential backoff until it succeeds, returns a Permanent error,
// or the configured number of attempts is exhausted.
func Retry[T any](ctx context.Context, cfg config.RetryConfig, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	if cfg.MaxBackoff > 0 {
		b.MaxInterval = cfg.MaxBackoff
	}
	attempts := cfg.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(attempts))
}
