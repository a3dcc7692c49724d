package cozi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToken_ExpiredAt(t *testing.T) {
	expiry := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tok := NewToken("abc123def456", expiry)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "well before expiry", now: expiry.Add(-time.Hour), want: false},
		{name: "just outside margin", now: expiry.Add(-ExpiryMargin - time.Second), want: false},
		{name: "exactly at margin", now: expiry.Add(-ExpiryMargin), want: true},
		{name: "inside margin", now: expiry.Add(-30 * time.Second), want: true},
		{name: "after expiry", now: expiry.Add(time.Minute), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.ExpiredAt(tt.now))
		})
	}
}

func TestToken_Zero(t *testing.T) {
	var tok Token
	assert.True(t, tok.IsZero())
	assert.True(t, tok.ExpiredAt(time.Time{}))
}

func TestToken_StringMasksValue(t *testing.T) {
	tok := NewToken("abcdefghijklmnop", time.Now().Add(time.Hour))
	assert.NotContains(t, tok.String(), "abcdefghijklmnop")
	assert.Equal(t, "abcdefghijklmnop", tok.Value())
}

func TestToken_OAuth2Token(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	ot := NewToken("v", expiry).oauth2Token()
	assert.Equal(t, "v", ot.AccessToken)
	assert.Equal(t, "Bearer", ot.TokenType)
	assert.Equal(t, expiry, ot.Expiry)
}
