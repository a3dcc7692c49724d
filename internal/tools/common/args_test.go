package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArg(t *testing.T) {
	tests := []struct {
		name   string
		args   map[string]any
		want   string
		wantOK bool
	}{
		{name: "present", args: map[string]any{"list_id": "l-1"}, want: "l-1", wantOK: true},
		{name: "missing", args: map[string]any{}, wantOK: false},
		{name: "empty", args: map[string]any{"list_id": ""}, wantOK: false},
		{name: "wrong type", args: map[string]any{"list_id": 7}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := StringArg(tt.args, "list_id")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequiredString(t *testing.T) {
	_, err := RequiredString(map[string]any{}, "item_id")
	assert.EqualError(t, err, "item_id is required")
}

func TestBoolArg(t *testing.T) {
	args := map[string]any{"a": true, "b": "false", "c": "maybe", "d": 1}
	assert.True(t, BoolArg(args, "a", false))
	assert.False(t, BoolArg(args, "b", true))
	assert.True(t, BoolArg(args, "c", true))
	assert.False(t, BoolArg(args, "d", false))
	assert.True(t, BoolArg(args, "missing", true))
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		name        string
		value       any
		want        int
		wantPresent bool
		wantErr     bool
	}{
		{name: "json number", value: float64(2025), want: 2025, wantPresent: true},
		{name: "fractional", value: 2.5, wantPresent: true, wantErr: true},
		{name: "int", value: 3, want: 3, wantPresent: true},
		{name: "numeric string", value: "12", want: 12, wantPresent: true},
		{name: "bad string", value: "june", wantPresent: true, wantErr: true},
		{name: "nil", value: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, present, err := IntArg(map[string]any{"year": tt.value}, "year")
			assert.Equal(t, tt.wantPresent, present)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDateArg(t *testing.T) {
	def := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := DateArg(map[string]any{}, "date", def)
	require.NoError(t, err)
	assert.Equal(t, def, got)

	got, err = DateArg(map[string]any{"date": "2025-03-14"}, "date", def)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), got)

	_, err = DateArg(map[string]any{"date": "14/03/2025"}, "date", def)
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}
