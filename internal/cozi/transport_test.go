package cozi

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func getBuilder(url string) RequestBuilder {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func countingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestTransport_RetriesServerErrors(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	srv, hits := countingServer(t, sequence(
		statusOnly(http.StatusInternalServerError),
		statusOnly(http.StatusInternalServerError),
		jsonBody(`{"ok":true}`),
	))
	tr := NewTransport(srv.Client(), RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond}, slog.New(slog.DiscardHandler), metrics)

	resp, err := tr.Send(context.Background(), "test", getBuilder(srv.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(3), hits.Load())
	assert.Equal(t, int64(2), collectSum(t, reader, "cozi_api_retries_total"), "two backoff waits")
}

func TestTransport_GivesUpAfterRetryBudget(t *testing.T) {
	srv, hits := countingServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	tr := NewTransport(srv.Client(), RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond}, nil, nil)

	_, err := tr.Send(context.Background(), "test", getBuilder(srv.URL+"/x"))

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 4, terr.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, terr.StatusCode)
	assert.Contains(t, terr.Body, "maintenance")
	assert.Equal(t, "/x", terr.Endpoint)
	assert.Equal(t, int64(4), hits.Load())
}

func TestTransport_BackoffDoubles(t *testing.T) {
	srv, _ := countingServer(t, statusOnly(http.StatusBadGateway))
	tr := NewTransport(srv.Client(), RetryPolicy{MaxRetries: 2, InitialDelay: 20 * time.Millisecond}, nil, nil)

	start := time.Now()
	_, err := tr.Send(context.Background(), "test", getBuilder(srv.URL))
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestTransport_ReturnsClientErrorsAsIs(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound} {
		srv, hits := countingServer(t, statusOnly(code))
		tr := NewTransport(srv.Client(), RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond}, nil, nil)

		resp, err := tr.Send(context.Background(), "test", getBuilder(srv.URL))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, code, resp.StatusCode)
		assert.Equal(t, int64(1), hits.Load())
	}
}

func TestTransport_RetriesNetworkErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tr := NewTransport(&http.Client{}, RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond}, nil, nil)
	_, err := tr.Send(context.Background(), "test", getBuilder(url))

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 3, terr.Attempts)
	assert.Error(t, terr.Err)
	assert.Zero(t, terr.StatusCode)
}

func TestTransport_MissingTokenIsNotRetried(t *testing.T) {
	srv, hits := countingServer(t, jsonBody(`{}`))
	client := &http.Client{Transport: &oauth2.Transport{Source: &Session{}}}
	tr := NewTransport(client, RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond}, nil, nil)

	_, err := tr.Send(context.Background(), "lists.list", getBuilder(srv.URL))

	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Zero(t, hits.Load())
}

func TestTransport_BuildErrorIsNotRetried(t *testing.T) {
	var calls int
	tr := NewTransport(nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond}, nil, nil)
	_, err := tr.Send(context.Background(), "test", func(ctx context.Context) (*http.Request, error) {
		calls++
		return http.NewRequestWithContext(ctx, http.MethodGet, "://bad", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Normalized(t *testing.T) {
	p := RetryPolicy{MaxRetries: -1}.normalized()
	assert.Equal(t, 0, p.MaxRetries)
	assert.Equal(t, DefaultInitialDelay, p.InitialDelay)
	assert.Equal(t, RetryPolicy{MaxRetries: 3, InitialDelay: 2 * time.Second}, DefaultRetryPolicy())
}
