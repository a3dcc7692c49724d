package cozi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/cozictl/internal/instrumentation"
	"github.com/teemow/cozictl/internal/logging"
)

// Credentials identify a Cozi account.
type Credentials struct {
	Username string
	Password string
}

// sessionState is replaced as a whole on every authentication, so readers
// never observe a token from one exchange paired with the account of another.
type sessionState struct {
	creds     Credentials
	token     Token
	accountID string
}

type loginRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	IssueRefresh bool   `json:"issueRefresh"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
	AccountID   string `json:"accountId"`
}

// Session owns the credentials, the current bearer token and the account id.
// It implements oauth2.TokenSource so authenticated requests pick up the
// current token through oauth2.Transport.
type Session struct {
	baseURL   string
	userAgent string
	transport *Transport
	now       func() time.Time
	logger    *slog.Logger
	metrics   *instrumentation.Metrics

	state atomic.Pointer[sessionState]
}

var _ oauth2.TokenSource = (*Session)(nil)

// Login authenticates with username and password. On success the
// credentials, token and account id replace any previous session; on failure
// the previous session is left untouched.
func (s *Session) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		s.metrics.RecordAuth(ctx, instrumentation.AuthReasonLogin, instrumentation.AuthResultFailure)
		return &AuthError{Reason: "username and password are required"}
	}
	return s.authenticate(ctx, Credentials{Username: username, Password: password}, instrumentation.AuthReasonLogin)
}

// EnsureValid re-authenticates with the stored credentials when the token is
// within ExpiryMargin of its expiry. A valid token costs no I/O.
func (s *Session) EnsureValid(ctx context.Context, op string) error {
	st := s.state.Load()
	if st == nil {
		return &StateError{Op: op}
	}
	if !st.token.ExpiredAt(s.now()) {
		return nil
	}
	s.logger.Debug("token expiring, re-authenticating", logging.Operation(op), logging.UserHash(st.creds.Username))
	return s.authenticate(ctx, st.creds, instrumentation.AuthReasonExpired)
}

// Reauthenticate unconditionally performs a fresh login with the stored
// credentials, as required after a 401 response.
func (s *Session) Reauthenticate(ctx context.Context, op string) error {
	st := s.state.Load()
	if st == nil {
		return &StateError{Op: op}
	}
	s.logger.Info("request unauthorized, re-authenticating", logging.Operation(op), logging.UserHash(st.creds.Username))
	return s.authenticate(ctx, st.creds, instrumentation.AuthReasonUnauthorized)
}

// Token implements oauth2.TokenSource. It never performs I/O.
func (s *Session) Token() (*oauth2.Token, error) {
	st := s.state.Load()
	if st == nil || st.token.IsZero() {
		return nil, &StateError{Op: "token"}
	}
	return st.token.oauth2Token(), nil
}

// Current returns the current token, the zero Token before any login.
func (s *Session) Current() Token {
	if st := s.state.Load(); st != nil {
		return st.token
	}
	return Token{}
}

// AccountID returns the household account id, empty before any login.
func (s *Session) AccountID() string {
	if st := s.state.Load(); st != nil {
		return st.accountID
	}
	return ""
}

// Authenticated reports whether a login has ever succeeded.
func (s *Session) Authenticated() bool {
	return s.state.Load() != nil
}

func (s *Session) authenticate(ctx context.Context, creds Credentials, reason string) error {
	next, err := s.exchange(ctx, creds)
	if err != nil {
		s.metrics.RecordAuth(ctx, reason, instrumentation.AuthResultFailure)
		s.logger.Warn("authentication failed",
			slog.String("reason", reason),
			logging.UserHash(creds.Username),
			logging.Err(err))
		return err
	}
	s.state.Store(next)
	s.metrics.RecordAuth(ctx, reason, instrumentation.AuthResultSuccess)
	s.logger.Debug("authenticated",
		slog.String("reason", reason),
		logging.UserHash(creds.Username),
		logging.Account(next.accountID),
		slog.Time("expiry", next.token.Expiry()))
	return nil
}

func (s *Session) exchange(ctx context.Context, creds Credentials) (*sessionState, error) {
	payload, err := json.Marshal(loginRequest{
		Username:     creds.Username,
		Password:     creds.Password,
		IssueRefresh: true,
	})
	if err != nil {
		return nil, &AuthError{Reason: "encode login request", Err: err}
	}

	resp, err := s.transport.Send(ctx, OpLogin, func(ctx context.Context) (*http.Request, error) {
		return newRequest(ctx, http.MethodPost, s.baseURL, loginPath, s.userAgent, payload)
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := drainBody(resp)
		reason := "login failed"
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			reason = "credentials rejected"
		}
		return nil, &AuthError{StatusCode: resp.StatusCode, Reason: reason, Err: errorFromBody(body)}
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &AuthError{Reason: "read auth response", Err: err}
	}

	var lr loginResponse
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &AuthError{Reason: "empty auth response"}
	}
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, &AuthError{Reason: "empty auth response", Err: err}
	}
	// A token without a positive lifetime would be expired on arrival.
	if lr.AccessToken == "" || lr.AccountID == "" || lr.ExpiresIn <= 0 {
		return nil, &AuthError{Reason: "empty auth response"}
	}

	return &sessionState{
		creds:     creds,
		token:     NewToken(lr.AccessToken, s.now().Add(time.Duration(lr.ExpiresIn)*time.Second)),
		accountID: lr.AccountID,
	}, nil
}

func errorFromBody(body string) error {
	if body == "" {
		return nil
	}
	return errors.New(truncate(body, 256))
}
