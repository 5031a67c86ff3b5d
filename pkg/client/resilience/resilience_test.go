package resilience

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedServer replies with the queued status codes, then 200.
type scriptedServer struct {
	calls     atomic.Int32
	responses chan int
}

func newScriptedServer(t *testing.T, codes ...int) (*scriptedServer, *httptest.Server) {
	t.Helper()
	s := &scriptedServer{responses: make(chan int, len(codes))}
	for _, c := range codes {
		s.responses <- c
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		select {
		case code := <-s.responses:
			w.WriteHeader(code)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

var breakerCfg = config.CircuitBreakerConfig{
	ConsecutiveFailures: 3,
	ErrorRatePercent:    100,
	OpenTimeout:         time.Minute,
}

var retryCfg = config.RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     5 * time.Millisecond,
}

// get performs a GET and retries transient statuses.
func get(ctx context.Context, client *http.Client, url string) (int, error) {
	return Retry(ctx, retryCfg, func() (int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return 0, Permanent(err)
			}
			return 0, err
		}
		_ = resp.Body.Close()
		if IsTransientStatus(resp.StatusCode) {
			return resp.StatusCode, errors.New(resp.Status)
		}
		return resp.StatusCode, nil
	})
}

func TestResilience_HappyPath(t *testing.T) {
	// given
	server, srv := newScriptedServer(t)
	client := &http.Client{Transport: NewTransport(nil, NewCircuitBreaker("test", breakerCfg))}

	// when
	code, err := get(context.Background(), client, srv.URL)

	// then
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int32(1), server.calls.Load())
}

func TestResilience_RetryOnTransientStatus(t *testing.T) {
	// given
	server, srv := newScriptedServer(t, http.StatusServiceUnavailable, http.StatusBadGateway)
	client := &http.Client{Transport: NewTransport(nil, NewCircuitBreaker("test", breakerCfg))}

	// when
	code, err := get(context.Background(), client, srv.URL)

	// then
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, int32(3), server.calls.Load(), "two failures then success")
}

func TestResilience_NoRetryOnClientError(t *testing.T) {
	// given
	server, srv := newScriptedServer(t, http.StatusNotFound)
	client := &http.Client{Transport: NewTransport(nil, NewCircuitBreaker("test", breakerCfg))}

	// when
	code, err := get(context.Background(), client, srv.URL)

	// then
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, int32(1), server.calls.Load())
}

func TestResilience_CircuitBreakerOpens(t *testing.T) {
	// given
	server, srv := newScriptedServer(t,
		http.StatusInternalServerError, http.StatusInternalServerError, http.StatusInternalServerError)
	client := &http.Client{Transport: NewTransport(nil, NewCircuitBreaker("test", breakerCfg))}

	// when: three failed attempts trip the breaker
	_, err := get(context.Background(), client, srv.URL)
	require.Error(t, err)
	require.Equal(t, int32(3), server.calls.Load())

	// then: the next call is rejected without reaching the server
	_, err = get(context.Background(), client, srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), server.calls.Load())
}

func TestResilience_BreakerIgnoresClientErrors(t *testing.T) {
	// given
	codes := make([]int, 10)
	for i := range codes {
		codes[i] = http.StatusBadRequest
	}
	server, srv := newScriptedServer(t, codes...)
	client := &http.Client{Transport: NewTransport(nil, NewCircuitBreaker("test", breakerCfg))}

	// when
	for range 10 {
		code, err := get(context.Background(), client, srv.URL)
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, code)
	}

	// then
	assert.Equal(t, int32(10), server.calls.Load())
}
