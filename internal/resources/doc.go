// Package resources provides MCP resources exposing Cozi household data.
// Resources are read-only documents that MCP clients can fetch without a
// tool call: the household roster and the current lists.
package resources
