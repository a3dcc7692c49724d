package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
)

// Cozi session states reported by the health endpoints.
const (
	sessionConnected    = "connected"
	sessionNotConnected = "not connected"
	sessionLoginFailed  = "login failed"
)

// HealthChecker serves the liveness and readiness endpoints of the HTTP
// transports. The Cozi login is lazy, so a session that is not yet
// established, or whose last login failed, is reported but never makes the
// server unready: the next tool call logs in again.
type HealthChecker struct {
	ready         atomic.Bool
	serverContext *ServerContext
	startTime     time.Time
}

// NewHealthChecker creates a HealthChecker that starts out ready. sc may be
// nil, in which case only the ready flag is consulted.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{
		serverContext: sc,
		startTime:     time.Now(),
	}
	h.ready.Store(true)
	return h
}

// SetReady marks the server as able or unable to take traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the ready flag.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Session string `json:"session"`
	Account string `json:"account,omitempty"`

	LastLoginError string `json:"last_login_error,omitempty"`
	LastLoginAt    string `json:"last_login_failure,omitempty"`
}

// healthState is one consistent reading of the server and session state.
type healthState struct {
	ready        bool
	shuttingDown bool
	session      string
	account      string
	loginErr     error
	loginErrAt   time.Time
}

func (h *HealthChecker) state() healthState {
	st := healthState{ready: h.ready.Load(), session: sessionNotConnected}
	sc := h.serverContext
	if sc == nil {
		return st
	}
	st.shuttingDown = sc.IsShutdown()
	st.loginErrAt, st.loginErr = sc.LastLoginFailure()
	switch {
	case sc.Connected():
		st.session = sessionConnected
		st.account = sc.Account()
	case st.loginErr != nil:
		st.session = sessionLoginFailed
	}
	return st
}

// status returns the overall status and HTTP code. Session problems do not
// count.
func (st healthState) status() (string, int) {
	switch {
	case st.shuttingDown:
		return healthStatusShuttingDown, http.StatusServiceUnavailable
	case !st.ready:
		return healthStatusNotReady, http.StatusServiceUnavailable
	default:
		return healthStatusOK, http.StatusOK
	}
}

func writeHealth(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// LivenessHandler serves /healthz. It answers ok as long as the process can
// serve HTTP at all.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler serves /readyz with one check per concern.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		st := h.state()

		checks := map[string]string{
			"ready":    healthStatusOK,
			"shutdown": healthStatusOK,
			"session":  st.session,
		}
		if !st.ready {
			checks["ready"] = healthStatusNotReady
		}
		if st.shuttingDown {
			checks["shutdown"] = healthStatusShuttingDown
		}
		if st.session == sessionLoginFailed {
			checks["session"] = sessionLoginFailed + ": " + st.loginErr.Error()
		}

		status, code := st.status()
		if code != http.StatusOK {
			status = healthStatusNotReady
		}
		writeHealth(w, code, HealthResponse{Status: status, Checks: checks})
	})
}

// DetailedHealthHandler serves /healthz/detailed: uptime, the household
// account and the outcome of the last failed login.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		st := h.state()
		status, code := st.status()

		resp := DetailedHealthResponse{
			Status:  status,
			Uptime:  time.Since(h.startTime).Truncate(time.Second).String(),
			Session: st.session,
			Account: st.account,
		}
		if st.loginErr != nil {
			resp.LastLoginError = st.loginErr.Error()
			resp.LastLoginAt = st.loginErrAt.UTC().Format(time.RFC3339)
		}
		writeHealth(w, code, resp)
	})
}

// RegisterHealthEndpoints mounts /healthz, /readyz and /healthz/detailed.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}
