package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	// DefaultEndpointPath is where the streamable HTTP transport is mounted.
	DefaultEndpointPath = "/mcp"

	// DefaultRateLimit is the steady per-client request rate on the MCP endpoint.
	DefaultRateLimit = 10

	// DefaultRateBurst is the per-client burst on the MCP endpoint.
	DefaultRateBurst = 20

	// limiterIdleTTL is how long an idle client's limiter is kept.
	limiterIdleTTL = 10 * time.Minute

	// limiterMaxClients bounds the number of tracked client IPs.
	limiterMaxClients = 1000
)

// HTTPServerConfig configures the streamable HTTP MCP server.
type HTTPServerConfig struct {
	// Addr is the listen address (e.g., ":8080")
	Addr string

	// EndpointPath defaults to DefaultEndpointPath.
	EndpointPath string

	// DisableStreaming answers every request with a single JSON response.
	DisableStreaming bool

	// RateLimit and RateBurst bound requests per client IP. A zero RateLimit
	// uses the defaults; a negative one disables limiting.
	RateLimit rate.Limit
	RateBurst int

	Logger *slog.Logger
}

// HTTPServer serves the MCP streamable HTTP transport next to the health
// endpoints.
type HTTPServer struct {
	mcpServer *mcpserver.MCPServer
	health    *HealthChecker
	config    HTTPServerConfig
	logger    *slog.Logger
	limiter   *ipRateLimiter

	mu         sync.Mutex
	httpServer *http.Server
	listenAddr string
}

// NewHTTPServer creates the HTTP server. health may be nil.
func NewHTTPServer(mcpServer *mcpserver.MCPServer, health *HealthChecker, config HTTPServerConfig) (*HTTPServer, error) {
	if mcpServer == nil {
		return nil, errors.New("http server requires an MCP server")
	}
	if config.EndpointPath == "" {
		config.EndpointPath = DefaultEndpointPath
	}
	if config.RateLimit == 0 {
		config.RateLimit = DefaultRateLimit
	}
	if config.RateBurst <= 0 {
		config.RateBurst = DefaultRateBurst
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &HTTPServer{
		mcpServer: mcpServer,
		health:    health,
		config:    config,
		logger:    logger,
	}
	if config.RateLimit > 0 {
		s.limiter = newIPRateLimiter(config.RateLimit, config.RateBurst, limiterMaxClients)
	}
	return s, nil
}

// Handler returns the routing handler: the MCP endpoint plus /healthz,
// /readyz and /healthz/detailed when a health checker is set.
func (s *HTTPServer) Handler() http.Handler {
	opts := []mcpserver.StreamableHTTPOption{
		mcpserver.WithEndpointPath(s.config.EndpointPath),
	}
	if s.config.DisableStreaming {
		opts = append(opts, mcpserver.WithDisableStreaming(true))
	}
	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer, opts...)

	var mcpHandler http.Handler = streamable
	if s.limiter != nil {
		mcpHandler = s.limiter.middleware(mcpHandler)
	}
	mcpHandler = otelhttp.NewHandler(mcpHandler, "mcp")

	mux := http.NewServeMux()
	mux.Handle(s.config.EndpointPath, mcpHandler)
	if s.health != nil {
		s.health.RegisterHealthEndpoints(mux)
	}
	return mux
}

// Start listens on the configured address and serves until Shutdown.
func (s *HTTPServer) Start() error {
	return s.StartWithReadySignal(nil)
}

// StartWithReadySignal is like Start but closes ready once the listener is
// bound. It returns http.ErrServerClosed after Shutdown.
func (s *HTTPServer) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listenAddr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info("mcp http server listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("endpoint", s.config.EndpointPath))

	if ready != nil {
		close(ready)
	}
	return srv.Serve(ln)
}

// Shutdown gracefully shuts down the server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ListenAddr returns the bound address once started, empty before.
func (s *HTTPServer) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}

// ipRateLimiter keeps one token bucket per client IP. Buckets idle for
// limiterIdleTTL are dropped, and at most limiterMaxClients are tracked.
type ipRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
}

func newIPRateLimiter(limit rate.Limit, burst, maxClients int) *ipRateLimiter {
	return &ipRateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: expirable.NewLRU[string, *rate.Limiter](maxClients, nil, limiterIdleTTL),
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(ip, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func (l *ipRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
