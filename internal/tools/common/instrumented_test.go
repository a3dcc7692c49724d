package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teemow/cozictl/internal/cozi"
	"github.com/teemow/cozictl/internal/instrumentation"
	"github.com/teemow/cozictl/internal/server"
)

func newServerContext(t *testing.T, opts server.Options) *server.ServerContext {
	t.Helper()
	if opts.Connect == nil {
		opts.Connect = func(context.Context) (*cozi.Client, error) {
			return nil, errors.New("not connected")
		}
	}
	sc, err := server.NewServerContext(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func toolInvocations(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "mcp_tool_invocations_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value("status")
				out[status.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	sc := newServerContext(t, server.Options{})

	called := false
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", cozi.OpListLists, sc, handler)
	result, err := wrapped(context.Background(), mcp.CallToolRequest{})

	require.NoError(t, err)
	assert.True(t, called)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
}

func TestInstrumentedToolHandler_Error(t *testing.T) {
	sc := newServerContext(t, server.Options{})

	expectedErr := errors.New("test error")
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, expectedErr
	}

	wrapped := InstrumentedToolHandler("test_tool", cozi.OpListLists, sc, handler)
	_, err := wrapped(context.Background(), mcp.CallToolRequest{})

	assert.Same(t, expectedErr, err)
}

func TestInstrumentedToolHandler_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	metrics, err := instrumentation.NewMetrics(meter, false)
	require.NoError(t, err)

	sc := newServerContext(t, server.Options{Metrics: metrics})

	ok := InstrumentedToolHandler("cozi_list_people", cozi.OpPeople, sc,
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("[]"), nil
		})
	failed := InstrumentedToolHandler("cozi_list_people", cozi.OpPeople, sc,
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("upstream unavailable"), nil
		})

	_, err = ok(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	_, err = failed(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)

	got := toolInvocations(t, reader)
	assert.Equal(t, int64(1), got[instrumentation.StatusSuccess])
	assert.Equal(t, int64(1), got[instrumentation.StatusError])
}

func TestInstrumentedToolHandler_AuditsErrorResult(t *testing.T) {
	var buf bytes.Buffer
	audit := instrumentation.NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	sc := newServerContext(t, server.Options{AuditLogger: audit})

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("list not found"), nil
	}

	wrapped := InstrumentedToolHandler("cozi_get_list", cozi.OpGetList, sc, handler)
	result, err := wrapped(context.Background(), callRequest(map[string]any{"list_id": "l-9"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "tool_failed", rec["msg"])
	assert.Equal(t, "cozi_get_list", rec["tool"])
	assert.Equal(t, cozi.OpGetList, rec["operation"])
	assert.Equal(t, "list not found", rec["error"])
	assert.Equal(t, []any{"list_id"}, rec["argument_keys"])
	assert.NotContains(t, rec, "account")
}

func TestResultText(t *testing.T) {
	assert.Equal(t, "boom", resultText(mcp.NewToolResultError("boom")))
	assert.Equal(t, "tool returned an error result", resultText(&mcp.CallToolResult{IsError: true}))
}
