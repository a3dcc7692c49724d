// Package server provides the shared MCP server state and the HTTP helpers
// around it.
//
// # Key Components
//
// ServerContext owns the Cozi client. The client is created and logged in
// lazily by a Connector on the first tool call; failed logins are retried on
// the next call. It also carries the metrics recorder and the audit logger
// used by the instrumented tool handlers.
//
// HealthChecker serves Kubernetes style probes:
//   - /healthz: liveness
//   - /readyz: readiness (ready flag and shutdown state)
//   - /healthz/detailed: uptime and Cozi session state
//
// MetricsServer exposes /metrics for Prometheus on its own port.
package server
