package cozi

import (
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/cozictl/internal/logging"
)

// ExpiryMargin is how long before its stated expiry a token stops being used.
const ExpiryMargin = 60 * time.Second

// Token is an immutable bearer credential with an absolute expiry.
// A new Token is issued on every authentication; existing values are never modified.
type Token struct {
	value  string
	expiry time.Time
}

// NewToken returns a token carrying value that expires at expiry.
func NewToken(value string, expiry time.Time) Token {
	return Token{value: value, expiry: expiry}
}

// Value returns the bearer value.
func (t Token) Value() string {
	return t.value
}

// Expiry returns the absolute expiry reported by the login exchange.
func (t Token) Expiry() time.Time {
	return t.expiry
}

// IsZero reports whether t holds no credential.
func (t Token) IsZero() bool {
	return t.value == ""
}

// ExpiredAt reports whether t is unusable at now, i.e. now >= expiry - ExpiryMargin.
// The zero Token is always expired.
func (t Token) ExpiredAt(now time.Time) bool {
	if t.IsZero() {
		return true
	}
	return !now.Before(t.expiry.Add(-ExpiryMargin))
}

// Expired reports whether t is unusable now.
func (t Token) Expired() bool {
	return t.ExpiredAt(time.Now())
}

// String masks the bearer value so tokens can be passed to loggers safely.
func (t Token) String() string {
	return logging.SanitizeToken(t.value)
}

func (t Token) oauth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: t.value,
		TokenType:   "Bearer",
		Expiry:      t.expiry,
	}
}
