package cozi

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "abc", n: 5, want: "abc"},
		{name: "exact", in: "abcde", n: 5, want: "abcde"},
		{name: "ascii", in: "abcdef", n: 3, want: "abc..."},
		// "ü" is two bytes; cutting at 2 would split it.
		{name: "inside two-byte rune", in: "aüb", n: 2, want: "a..."},
		// "€" is three bytes.
		{name: "inside three-byte rune", in: "x€y", n: 3, want: "x..."},
		{name: "on rune boundary", in: "x€y", n: 4, want: "x€..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestAPIError_BodyStaysValidUTF8(t *testing.T) {
	// The 256-byte limit falls inside "ü".
	body := strings.Repeat("a", 255) + "über"
	err := &APIError{Op: "get lists", Endpoint: "list/", StatusCode: 500, Body: body}

	msg := err.Error()
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, ": "+strings.Repeat("a", 255)+"..."))
}
