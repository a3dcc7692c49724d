package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/teemow/cozictl/internal/cozi"
	"github.com/teemow/cozictl/internal/instrumentation"
	"github.com/teemow/cozictl/internal/resources"
	"github.com/teemow/cozictl/internal/server"
	"github.com/teemow/cozictl/internal/tools/cozi_tools"
)

// Supported MCP transports.
const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// serveOptions collects the serve command flags.
type serveOptions struct {
	transport        string
	httpAddr         string
	disableStreaming bool
	rateLimit        float64
	rateBurst        int
	metrics          MetricsConfig
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	so := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing read-only Cozi
tools (lists, household members, calendar) to AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport

The server logs in to Cozi on the first tool call using --username/--password
or COZI_USERNAME and COZI_PASSWORD. A failed login is retried on the next call.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			so.loadEnv(cmd)
			return runServe(cmd, opts, so)
		},
	}

	cmd.Flags().StringVar(&so.transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&so.httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&so.disableStreaming, "disable-streaming", false, "Answer every HTTP request with a single JSON response")
	cmd.Flags().Float64Var(&so.rateLimit, "rate-limit", server.DefaultRateLimit, "Requests per second allowed per client IP on the HTTP transport (negative disables)")
	cmd.Flags().IntVar(&so.rateBurst, "rate-burst", server.DefaultRateBurst, "Burst size per client IP on the HTTP transport")

	// Metrics server flags
	cmd.Flags().BoolVar(&so.metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&so.metrics.Addr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// loadEnv applies METRICS_ENABLED and METRICS_ADDR when the matching flag
// was not set explicitly.
func (so *serveOptions) loadEnv(cmd *cobra.Command) {
	if !cmd.Flags().Changed("metrics-enabled") {
		if v, err := strconv.ParseBool(os.Getenv("METRICS_ENABLED")); err == nil {
			so.metrics.Enabled = v
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			so.metrics.Addr = addr
		}
	}
}

func runServe(cmd *cobra.Command, opts *globalOptions, so *serveOptions) error {
	if so.transport != transportStdio && so.transport != transportStreamableHTTP {
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", so.transport)
	}

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// stdout carries the protocol on stdio, so logs always go to stderr.
	logger := opts.logger(cmd.ErrOrStderr())

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("instrumentation shutdown failed", slog.Any("error", err))
		}
	}()

	serverOpts := server.Options{Logger: logger}
	if provider.Enabled() {
		serverOpts.Metrics = provider.Metrics()
		serverOpts.AuditLogger = instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)
	}
	serverOpts.Connect = func(ctx context.Context) (*cozi.Client, error) {
		return opts.connect(ctx, logger, serverOpts.Metrics)
	}

	serverContext, err := server.NewServerContext(shutdownCtx, serverOpts)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("server context shutdown failed", slog.Any("error", err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("cozictl", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)
	if err := registerAll(mcpSrv, serverContext); err != nil {
		return err
	}

	if so.transport == transportStdio {
		return runStdioServer(shutdownCtx, mcpSrv, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	// Metrics only make sense next to a long-running HTTP server.
	if so.metrics.Enabled && provider.Enabled() && instrConfig.MetricsExporter == instrumentation.ExporterPrometheus {
		metricsServer, err := startMetricsServer(so.metrics, provider, logger)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, so, logger)
}

// registerAll registers every MCP tool and resource.
func registerAll(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	registrations := []struct {
		name     string
		register func() error
	}{
		{name: "Cozi tools", register: func() error { return cozi_tools.RegisterCoziTools(mcpSrv, sc) }},
		{name: "household resources", register: func() error { return resources.RegisterHouseholdResources(mcpSrv, sc) }},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}
	return nil
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(mcpSrv)
	if err := stdio.Listen(ctx, in, out); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func startMetricsServer(cfg MetricsConfig, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    cfg.Addr,
		Enabled:                 true,
		InstrumentationProvider: provider,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		logger.Info("metrics server started", slog.String("addr", metricsServer.ListenAddr()))
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, errors.New("metrics server startup timed out")
	}
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, so *serveOptions, logger *slog.Logger) error {
	health := server.NewHealthChecker(sc)
	httpServer, err := server.NewHTTPServer(mcpSrv, health, server.HTTPServerConfig{
		Addr:             so.httpAddr,
		DisableStreaming: so.disableStreaming,
		RateLimit:        rate.Limit(so.rateLimit),
		RateBurst:        so.rateBurst,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	logger.Info("HTTP server stopped")
	return nil
}
