// Package cmd implements the command-line interface for cozictl.
//
// This package provides the following commands:
//   - lists, list, people: Print shopping and to-do lists and household members
//   - month, item, day, week, year: Print calendar appointments
//   - config: Show the effective configuration or write the default file
//   - serve: Start the MCP server to provide tools for AI assistants
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The read commands print JSON to stdout. Logs always go to stderr.
package cmd
