package cozi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/teemow/cozictl/internal/instrumentation"
	"github.com/teemow/cozictl/internal/logging"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultInitialDelay is the wait before the first retry; each further
	// retry doubles it (2s, 4s, 8s).
	DefaultInitialDelay = 2 * time.Second

	// maxErrorBody bounds how much of a failed response body is kept in errors.
	maxErrorBody = 64 << 10
)

// RetryPolicy controls how the transport retries transient failures.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialDelay is the wait before retry 1. Retry n waits InitialDelay * 2^(n-1).
	InitialDelay time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, InitialDelay: DefaultInitialDelay}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	return p
}

// RequestBuilder builds a fresh request for every attempt. It must be safe to
// call more than once; bodies are never replayed from a consumed reader.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Transport executes requests and retries network failures and 5xx responses
// with exponential backoff. Any other status is returned to the caller as is.
type Transport struct {
	client  *http.Client
	policy  RetryPolicy
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewTransport returns a Transport sending through client.
func NewTransport(client *http.Client, policy RetryPolicy, logger *slog.Logger, metrics *instrumentation.Metrics) *Transport {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		client:  client,
		policy:  policy.normalized(),
		logger:  logger,
		metrics: metrics,
	}
}

// serverError is the retryable outcome of a 5xx response.
type serverError struct {
	statusCode int
	body       string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error: status %d", e.statusCode)
}

// Send issues the request produced by build, retrying transient failures.
// The caller owns the returned response body.
//
// Errors: ctx.Err() on cancellation, *StateError when no bearer token is
// available, *TransportError once the retry budget is spent.
func (t *Transport) Send(ctx context.Context, op string, build RequestBuilder) (*http.Response, error) {
	var (
		attempts  int
		endpoint  string
		permanent error
	)

	operation := func() (*http.Response, error) {
		attempts++

		req, err := build(ctx)
		if err != nil {
			permanent = fmt.Errorf("cozi %s: build request: %w", op, err)
			return nil, backoff.Permanent(permanent)
		}
		endpoint = req.URL.Path

		resp, err := t.client.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				permanent = ctxErr
				return nil, backoff.Permanent(ctxErr)
			}
			var stateErr *StateError
			if errors.As(err, &stateErr) {
				permanent = stateErr
				return nil, backoff.Permanent(stateErr)
			}
			return nil, err
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &serverError{statusCode: resp.StatusCode, body: drainBody(resp)}
		}
		return resp, nil
	}

	notify := func(err error, wait time.Duration) {
		t.metrics.RecordRetry(ctx, op)
		t.logger.Warn("retrying request",
			logging.Operation(op),
			logging.Endpoint(endpoint),
			logging.Attempt(attempts),
			slog.Duration("wait", wait),
			logging.Err(err))
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(t.newBackOff()),
		backoff.WithMaxTries(uint(t.policy.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return resp, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("cozi %s: %w", op, ctxErr)
	}
	if permanent != nil {
		return nil, permanent
	}

	terr := &TransportError{Op: op, Endpoint: endpoint, Attempts: attempts}
	var srvErr *serverError
	if errors.As(err, &srvErr) {
		terr.StatusCode = srvErr.statusCode
		terr.Body = srvErr.body
	} else {
		terr.Err = err
	}
	return nil, terr
}

func (t *Transport) newBackOff() backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     t.policy.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         t.policy.InitialDelay << t.policy.MaxRetries,
	}
}

// drainBody reads at most maxErrorBody bytes and closes the body.
func drainBody(resp *http.Response) string {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	return string(body)
}
