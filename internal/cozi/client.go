package cozi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	"github.com/teemow/cozictl/internal/instrumentation"
	"github.com/teemow/cozictl/internal/logging"
)

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultAttendeeConcurrency bounds parallel item lookups during attendee resolution.
	DefaultAttendeeConcurrency = 4
)

// Version is reported in the User-Agent header. It is set by the cmd package.
var Version = "dev"

// Options configures a Client. The zero value talks to DefaultBaseURL with
// the default retry policy.
type Options struct {
	BaseURL   string
	UserAgent string

	// HTTPClient is the base client. Its Transport is wrapped to inject the
	// bearer token; the original client is not modified.
	HTTPClient *http.Client

	Retry RetryPolicy

	// ItemVersions is the API version order tried by item lookups.
	ItemVersions []string

	AttendeeConcurrency int

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics

	// Now overrides the clock used for token expiry.
	Now func() time.Time
}

// Client is a read-only Cozi API client. It is safe for concurrent use once
// Login has succeeded.
type Client struct {
	baseURL      string
	userAgent    string
	session      *Session
	api          *Transport
	itemVersions []string
	concurrency  int
	logger       *slog.Logger
	metrics      *instrumentation.Metrics
}

// New returns an unauthenticated client. Call Login before any other operation.
func New(opts Options) (*Client, error) {
	baseURL, err := normalizeBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cozi")

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = fmt.Sprintf("cozictl/%s (read-only)", Version)
	}

	policy := opts.Retry
	if policy == (RetryPolicy{}) {
		policy = DefaultRetryPolicy()
	}

	itemVersions := slices.Clone(opts.ItemVersions)
	if len(itemVersions) == 0 {
		itemVersions = slices.Clone(DefaultItemVersions)
	}

	concurrency := opts.AttendeeConcurrency
	if concurrency <= 0 {
		concurrency = DefaultAttendeeConcurrency
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: DefaultTimeout}
	}

	session := &Session{
		baseURL:   baseURL,
		userAgent: userAgent,
		transport: NewTransport(base, policy, logger, opts.Metrics),
		now:       now,
		logger:    logger,
		metrics:   opts.Metrics,
	}

	authed := *base
	authed.Transport = &oauth2.Transport{Source: session, Base: base.Transport}

	return &Client{
		baseURL:      baseURL,
		userAgent:    userAgent,
		session:      session,
		api:          NewTransport(&authed, policy, logger, opts.Metrics),
		itemVersions: itemVersions,
		concurrency:  concurrency,
		logger:       logger,
		metrics:      opts.Metrics,
	}, nil
}

// Login authenticates the client. See Session.Login.
func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.session.Login(ctx, username, password)
}

// TryLogin reports whether the credentials are accepted. Rejected credentials
// yield (false, nil); transport and cancellation errors are returned.
func (c *Client) TryLogin(ctx context.Context, username, password string) (bool, error) {
	err := c.Login(ctx, username, password)
	if err == nil {
		return true, nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false, nil
	}
	return false, err
}

// Session exposes the client's session state.
func (c *Client) Session() *Session {
	return c.session
}

// AccountID returns the household account id, empty before Login.
func (c *Client) AccountID() string {
	return c.session.AccountID()
}

// AttendeeConcurrency is the number of item-detail requests kept in flight
// when resolving attendees.
func (c *Client) AttendeeConcurrency() int {
	return c.concurrency
}

// pathFunc renders an endpoint path for the current account id.
type pathFunc func(accountID string) string

// send performs an authenticated GET. A 401 response triggers exactly one
// re-authentication and one resend; the second response is returned as is.
// The caller owns the response body.
func (c *Client) send(ctx context.Context, op string, path pathFunc) (*http.Response, string, error) {
	if err := c.session.EnsureValid(ctx, op); err != nil {
		return nil, "", err
	}

	var endpoint string
	build := func(ctx context.Context) (*http.Request, error) {
		endpoint = path(c.session.AccountID())
		return newRequest(ctx, http.MethodGet, c.baseURL, endpoint, c.userAgent, nil)
	}

	resp, err := c.api.Send(ctx, op, build)
	if err != nil {
		return nil, endpoint, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, endpoint, nil
	}

	drainBody(resp)
	if err := c.session.Reauthenticate(ctx, op); err != nil {
		return nil, endpoint, err
	}
	resp, err = c.api.Send(ctx, op, build)
	return resp, endpoint, err
}

// readSuccess consumes resp, mapping non-2xx statuses to *APIError and empty
// bodies to *ProtocolError.
func (c *Client) readSuccess(ctx context.Context, op, endpoint string, resp *http.Response) ([]byte, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Op: op, Endpoint: endpoint, StatusCode: resp.StatusCode, Body: drainBody(resp)}
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("cozi %s: %w", op, ctxErr)
		}
		return nil, &ProtocolError{Op: op, Endpoint: endpoint, Reason: "read response", Err: err}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, &ProtocolError{Op: op, Endpoint: endpoint, Reason: "unexpected empty content"}
	}
	return body, nil
}

// observe wraps one logical API operation in a client span and records its
// outcome and duration.
func (c *Client) observe(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	start := time.Now()
	ctx, span := instrumentation.StartAPISpan(ctx, op, attrs...)
	err := fn(ctx)
	instrumentation.EndSpan(span, err)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordAPIRequest(ctx, op, status, time.Since(start))
	return err
}

// fetch returns the raw body of a successful authenticated GET.
func (c *Client) fetch(ctx context.Context, op string, path pathFunc) ([]byte, string, error) {
	var (
		body     []byte
		endpoint string
	)
	err := c.observe(ctx, op, func(ctx context.Context) error {
		resp, ep, err := c.send(ctx, op, path)
		endpoint = ep
		if err != nil {
			return err
		}
		body, err = c.readSuccess(ctx, op, endpoint, resp)
		return err
	})
	return body, endpoint, err
}

// getJSON fetches path and decodes the body into T.
func getJSON[T any](ctx context.Context, c *Client, op string, path pathFunc) (T, error) {
	var v T
	body, endpoint, err := c.fetch(ctx, op, path)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, &ProtocolError{Op: op, Endpoint: endpoint, Reason: "decode response", Err: err}
	}
	return v, nil
}

// fetchItem looks itemID up under each configured API version in order. A
// 404 moves on to the next version; any other failure is returned at once.
func (c *Client) fetchItem(ctx context.Context, itemID string) ([]byte, string, error) {
	if itemID == "" {
		return nil, "", &ValidationError{Field: "item id", Reason: "must not be empty"}
	}

	var (
		body     []byte
		endpoint string
	)
	err := c.observe(ctx, OpCalendarItem, func(ctx context.Context) error {
		for i, version := range c.itemVersions {
			resp, ep, err := c.send(ctx, OpCalendarItem, func(accountID string) string {
				return itemPath(version, accountID, itemID)
			})
			if err != nil {
				return err
			}
			if resp.StatusCode == http.StatusNotFound {
				drainBody(resp)
				if i+1 < len(c.itemVersions) {
					next := c.itemVersions[i+1]
					c.logger.Debug("item not found, trying next API version",
						logging.ItemID(itemID),
						logging.APIVersion(version),
						slog.String("next_version", next))
					c.metrics.RecordVersionFallback(ctx, version, next)
					instrumentation.AddSpanEvent(ctx, "version_fallback",
						attribute.String(instrumentation.SpanAttrAPIVersion, next))
				}
				continue
			}
			endpoint = ep
			body, err = c.readSuccess(ctx, OpCalendarItem, ep, resp)
			return err
		}
		return &NotFoundError{Resource: "calendar item", ID: itemID, Versions: slices.Clone(c.itemVersions)}
	}, attribute.String(instrumentation.SpanAttrItemID, itemID))
	return body, endpoint, err
}
