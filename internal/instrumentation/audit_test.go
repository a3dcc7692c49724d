package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestNewToolInvocation(t *testing.T) {
	ti := NewToolInvocation("cozi_get_list")

	_, err := uuid.Parse(ti.ID)
	assert.NoError(t, err, "invocation id should be a uuid")
	assert.Equal(t, "cozi_get_list", ti.Tool)
	assert.False(t, ti.StartTime.IsZero())
	assert.NotEqual(t, ti.ID, NewToolInvocation("cozi_get_list").ID)
}

func TestToolInvocation_Complete(t *testing.T) {
	ti := NewToolInvocation("t").CompleteSuccess()
	assert.True(t, ti.Success)
	assert.Equal(t, StatusSuccess, ti.Status())
	assert.Empty(t, ti.Error)

	ti = NewToolInvocation("t").CompleteWithError(errors.New("not found"))
	assert.False(t, ti.Success)
	assert.Equal(t, StatusError, ti.Status())
	assert.Equal(t, "not found", ti.Error)
}

func TestToolInvocation_ArgumentKeys(t *testing.T) {
	ti := NewToolInvocation("t").WithArguments(map[string]any{"search": "dentist", "date": "2025-03-01"})
	assert.Equal(t, []string{"date", "search"}, ti.ArgumentKeys())
}

func TestAuditLogger_OmitsArgumentValuesByDefault(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	ti := NewToolInvocation("cozi_get_calendar_week").
		WithAccount("acct-1").
		WithOperation("calendar.week").
		WithArguments(map[string]any{"search": "dentist"}).
		WithSpanContext(context.Background()).
		CompleteSuccess()
	al.LogToolInvocation(ti)

	rec := decodeRecord(t, &buf)
	assert.Equal(t, "tool_executed", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "audit", rec["component"])
	assert.Equal(t, "acct-1", rec["account"])
	assert.Equal(t, "calendar.week", rec["operation"])
	assert.Equal(t, []any{"search"}, rec["argument_keys"])
	assert.NotContains(t, buf.String(), "dentist")
}

func TestAuditLogger_IncludeArguments(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{
		Enabled:          true,
		IncludeArguments: true,
	})

	al.LogToolInvocation(NewToolInvocation("cozi_get_list").
		WithArguments(map[string]any{"list_id": "l-1"}).
		CompleteWithError(errors.New("boom")))

	rec := decodeRecord(t, &buf)
	assert.Equal(t, "tool_failed", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "boom", rec["error"])
	assert.Equal(t, map[string]any{"list_id": "l-1"}, rec["arguments"])
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLoggerWithConfig(slog.New(slog.NewJSONHandler(&buf, nil)), AuditLoggingConfig{Enabled: false})
	al.LogToolInvocation(NewToolInvocation("t").CompleteSuccess())
	assert.Zero(t, buf.Len())

	var nilLogger *AuditLogger
	assert.NotPanics(t, func() { nilLogger.LogToolInvocation(NewToolInvocation("t")) })
}
