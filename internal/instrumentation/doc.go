// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for cozictl.
//
// # Metrics
//
// Upstream API:
//   - cozi_api_requests_total: logical API requests by operation and status
//   - cozi_api_request_duration_seconds: request duration, retries included
//   - cozi_api_retries_total: transport retries by operation
//   - cozi_auth_total: authentication exchanges by reason (login, expired, unauthorized) and result
//   - cozi_version_fallback_total: item lookups that moved to a newer API version
//   - cozi_calendar_entries: entries returned per aggregated calendar view
//
// MCP tools:
//   - mcp_tool_invocations_total: tool invocations by tool name and status
//   - mcp_tool_duration_seconds: tool execution duration
//
// # Tracing
//
// Client spans named cozi.<operation> wrap every upstream call; server spans
// named tool.<name> wrap MCP tool invocations.
//
// # Configuration
//
// Environment variables read by DefaultConfig:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: cozictl)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_ARGUMENTS
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	client := cozi.New(cozi.Options{Metrics: provider.Metrics()})
package instrumentation
