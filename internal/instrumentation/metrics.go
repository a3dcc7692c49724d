package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrStatus    = "status"
	attrOperation = "operation"
	attrResult    = "result"
	attrReason    = "reason"
	attrTool      = "tool"
	attrAccount   = "account"
	attrFrom      = "from_version"
	attrTo        = "to_version"
	attrView      = "view"
)

// Metrics provides methods for recording observability metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Upstream API metrics
	apiRequestsTotal   metric.Int64Counter
	apiRequestDuration metric.Float64Histogram
	apiRetriesTotal    metric.Int64Counter

	// Session metrics
	authTotal metric.Int64Counter

	// Endpoint version fallback
	versionFallbackTotal metric.Int64Counter

	// Calendar aggregation
	calendarEntries metric.Int64Histogram

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.apiRequestsTotal, err = meter.Int64Counter(
		"cozi_api_requests_total",
		metric.WithDescription("Total number of logical Cozi API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cozi_api_requests_total counter: %w", err)
	}

	m.apiRequestDuration, err = meter.Float64Histogram(
		"cozi_api_request_duration_seconds",
		metric.WithDescription("Cozi API request duration in seconds, retries included"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cozi_api_request_duration_seconds histogram: %w", err)
	}

	m.apiRetriesTotal, err = meter.Int64Counter(
		"cozi_api_retries_total",
		metric.WithDescription("Total number of transport retries after a network failure or 5xx"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cozi_api_retries_total counter: %w", err)
	}

	m.authTotal, err = meter.Int64Counter(
		"cozi_auth_total",
		metric.WithDescription("Total number of authentication exchanges by reason and result"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cozi_auth_total counter: %w", err)
	}

	m.versionFallbackTotal, err = meter.Int64Counter(
		"cozi_version_fallback_total",
		metric.WithDescription("Total number of item lookups that fell back to a newer API version"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cozi_version_fallback_total counter: %w", err)
	}

	m.calendarEntries, err = meter.Int64Histogram(
		"cozi_calendar_entries",
		metric.WithDescription("Number of calendar entries returned per aggregated view"),
		metric.WithUnit("{entry}"),
		metric.WithExplicitBucketBoundaries(0, 1, 5, 10, 25, 50, 100, 250, 500, 1000),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cozi_calendar_entries histogram: %w", err)
	}

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordAPIRequest records one logical API request (all transport attempts included).
//
// Parameters:
//   - operation: Operation name (lists.list, calendar.month, calendar.item, ...)
//   - status: Result status ("success" or "error")
//   - duration: Time taken including retries and re-authentication
func (m *Metrics) RecordAPIRequest(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.apiRequestsTotal == nil || m.apiRequestDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)

	m.apiRequestsTotal.Add(ctx, 1, attrs)
	m.apiRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRetry records a transport retry for the given operation.
func (m *Metrics) RecordRetry(ctx context.Context, operation string) {
	if m == nil || m.apiRetriesTotal == nil {
		return
	}
	m.apiRetriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOperation, operation)))
}

// RecordAuth records an authentication exchange.
// Reason should be one of the AuthReason* constants, result one of the AuthResult* constants.
func (m *Metrics) RecordAuth(ctx context.Context, reason, result string) {
	if m == nil || m.authTotal == nil {
		return
	}

	m.authTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrReason, reason),
		attribute.String(attrResult, result),
	))
}

// RecordVersionFallback records an item lookup that moved from one API version to the next.
func (m *Metrics) RecordVersionFallback(ctx context.Context, from, to string) {
	if m == nil || m.versionFallbackTotal == nil {
		return
	}

	m.versionFallbackTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrFrom, from),
		attribute.String(attrTo, to),
	))
}

// RecordCalendarEntries records how many entries an aggregated calendar view produced.
// View is one of "month", "day", "week", "year", "range".
func (m *Metrics) RecordCalendarEntries(ctx context.Context, view string, count int) {
	if m == nil || m.calendarEntries == nil {
		return
	}
	m.calendarEntries.Record(ctx, int64(count), metric.WithAttributes(attribute.String(attrView, view)))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	m.RecordToolInvocationWithAccount(ctx, toolName, status, "", duration)
}

// RecordToolInvocationWithAccount records an MCP tool invocation with the household account.
// The account label is only attached when detailed labels are enabled.
func (m *Metrics) RecordToolInvocationWithAccount(ctx context.Context, toolName, status, account string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
