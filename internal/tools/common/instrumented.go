package common

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/cozictl/internal/instrumentation"
	"github.com/teemow/cozictl/internal/server"
)

// ToolHandler is the signature of an MCP tool handler.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a tool span, metrics and
// audit logging. operation names the upstream Cozi operation the tool maps
// to and is recorded on the audit record.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("cozi_list_lists", cozi.OpListLists, sc, handler))
func InstrumentedToolHandler(toolName, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()

		ctx, span := instrumentation.StartToolSpan(ctx, toolName)

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx).
			WithOperation(operation).
			WithArguments(request.GetArguments())

		result, err := handler(ctx, request)
		duration := time.Since(start)

		// The account is known only once the handler has logged in.
		account := sc.Account()
		if account != "" {
			invocation.WithAccount(account)
		}

		status := instrumentation.StatusSuccess
		spanErr := err
		switch {
		case err != nil:
			status = instrumentation.StatusError
			invocation.CompleteWithError(err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			spanErr = errors.New(resultText(result))
			invocation.CompleteWithError(spanErr)
		default:
			invocation.CompleteSuccess()
		}
		instrumentation.EndSpan(span, spanErr)

		metrics.RecordToolInvocationWithAccount(ctx, toolName, status, account, duration)
		if auditLogger != nil {
			auditLogger.LogToolInvocation(invocation)
		}

		return result, err
	}
}

// resultText returns the first text content of result.
func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return "tool returned an error result"
}
