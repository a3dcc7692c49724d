package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/cozictl/internal/cozi"
	"github.com/teemow/cozictl/internal/instrumentation"
	"github.com/teemow/cozictl/internal/logging"
)

// ErrShutdown is returned by Client once the server context has been shut down.
var ErrShutdown = errors.New("server is shutting down")

// Connector builds an authenticated Cozi client. It is called lazily on the
// first tool invocation and again after a failed attempt.
type Connector func(ctx context.Context) (*cozi.Client, error)

// Options configures a ServerContext.
type Options struct {
	// Connect is required.
	Connect Connector

	Logger      *slog.Logger
	Metrics     *instrumentation.Metrics
	AuditLogger *instrumentation.AuditLogger
}

// ServerContext holds the shared state of the MCP server: the lazily
// logged-in Cozi client and the observability hooks.
type ServerContext struct {
	ctx     context.Context
	cancel  context.CancelFunc
	connect Connector

	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	// logins collapses concurrent first-use logins into one. The login runs
	// outside mu so health checks and Shutdown never wait for it.
	logins singleflight.Group

	mu        sync.RWMutex
	client    *cozi.Client
	shutdown  bool
	lastErr   error
	lastErrAt time.Time
}

// NewServerContext creates a new server context. No network I/O happens
// until the first call to Client.
func NewServerContext(ctx context.Context, opts Options) (*ServerContext, error) {
	if opts.Connect == nil {
		return nil, errors.New("server: connector is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		connect:     opts.Connect,
		logger:      logger,
		metrics:     opts.Metrics,
		auditLogger: opts.AuditLogger,
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Client returns the Cozi client, logging in on first use. Failed logins are
// not cached, so the next call tries again. Concurrent callers share one
// login; each stops waiting when its own ctx is done, and Shutdown aborts the
// login itself.
func (sc *ServerContext) Client(ctx context.Context) (*cozi.Client, error) {
	sc.mu.RLock()
	client, shutdown := sc.client, sc.shutdown
	sc.mu.RUnlock()
	if shutdown {
		return nil, ErrShutdown
	}
	if client != nil {
		return client, nil
	}

	ch := sc.logins.DoChan("login", func() (any, error) {
		return sc.login()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*cozi.Client), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// login runs the connector under the server context and publishes the result.
func (sc *ServerContext) login() (*cozi.Client, error) {
	sc.mu.RLock()
	client, shutdown := sc.client, sc.shutdown
	sc.mu.RUnlock()
	if shutdown {
		return nil, ErrShutdown
	}
	if client != nil {
		return client, nil
	}

	client, err := sc.connect(sc.ctx)

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.shutdown {
		return nil, ErrShutdown
	}
	if err != nil {
		sc.lastErr, sc.lastErrAt = err, time.Now()
		sc.logger.Warn("cozi login failed", logging.Err(err))
		return nil, err
	}
	sc.client = client
	sc.lastErr, sc.lastErrAt = nil, time.Time{}
	sc.logger.Info("cozi session established", logging.Account(client.AccountID()))
	return client, nil
}

// LastLoginFailure returns when the most recent login failed and why. Both
// are zero once a login succeeds.
func (sc *ServerContext) LastLoginFailure() (time.Time, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastErrAt, sc.lastErr
}

// SetClient replaces the Cozi client.
func (sc *ServerContext) SetClient(client *cozi.Client) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.client = client
}

// Connected reports whether a Cozi session has been established.
func (sc *ServerContext) Connected() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.client != nil && sc.client.Session().Authenticated()
}

// Account returns the household account id, empty before the first login.
func (sc *ServerContext) Account() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if sc.client == nil {
		return ""
	}
	return sc.client.AccountID()
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder, possibly nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, possibly nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
