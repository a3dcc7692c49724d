// Package batch provides helpers for tools that accept one id or many.
//
// It covers:
//   - Parsing parameters that accept both single values and arrays
//   - Running lookups concurrently with a bounded number in flight
//   - Reporting partial failures in a consistent JSON structure
package batch
