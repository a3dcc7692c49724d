package cozi_tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/cozictl/internal/cozi"
	"github.com/teemow/cozictl/internal/server"
)

// now is replaced in tests.
var now = time.Now

// Tool names
const (
	ToolListLists        = "cozi_list_lists"
	ToolGetList          = "cozi_get_list"
	ToolListPeople       = "cozi_list_people"
	ToolGetCalendarMonth = "cozi_get_calendar_month"
	ToolGetCalendarItem  = "cozi_get_calendar_item"
	ToolGetCalendarDay   = "cozi_get_calendar_day"
	ToolGetCalendarWeek  = "cozi_get_calendar_week"
	ToolGetCalendarYear  = "cozi_get_calendar_year"
)

// RegisterCoziTools registers all Cozi tools with the MCP server. Every tool
// is read-only.
func RegisterCoziTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	for _, t := range Tools(sc) {
		s.AddTool(t.Tool, t.Handler)
	}
	return nil
}

// Tools returns the tool definitions with their instrumented handlers.
func Tools(sc *server.ServerContext) []mcpserver.ServerTool {
	var tools []mcpserver.ServerTool
	tools = append(tools, listTools(sc)...)
	tools = append(tools, peopleTools(sc)...)
	tools = append(tools, calendarTools(sc)...)
	return tools
}

// getClient returns the logged-in client, or a tool error result explaining
// why none is available.
func getClient(ctx context.Context, sc *server.ServerContext) (*cozi.Client, *mcp.CallToolResult) {
	client, err := sc.Client(ctx)
	if err != nil {
		return nil, mcp.NewToolResultError(fmt.Sprintf(`Cozi session unavailable: %v

Set COZI_USERNAME and COZI_PASSWORD (or pass --username/--password to "cozictl serve") and retry.`, err))
	}
	return client, nil
}

// jsonResult renders v as indented JSON text content.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// rawResult re-indents an upstream JSON document, keeping its key order.
func rawResult(raw json.RawMessage) (*mcp.CallToolResult, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return mcp.NewToolResultText(string(raw)), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}
