package cozi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/teemow/cozictl/internal/instrumentation"
)

const testAccount = "acct-1"

// fakeCozi is an in-process stand-in for the Cozi REST API. Login issues
// tokens "tok-1", "tok-2", ... for account testAccount; other paths are
// served from routes.
type fakeCozi struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	hits        map[string]int
	logins      int
	expiresIn   int64
	login       http.HandlerFunc
	routes      map[string]http.HandlerFunc
	authHeaders []string
	userAgents  []string
}

func newFakeCozi(t *testing.T) *fakeCozi {
	t.Helper()
	f := &fakeCozi{
		t:         t,
		hits:      make(map[string]int),
		routes:    make(map[string]http.HandlerFunc),
		expiresIn: 3600,
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeCozi) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.userAgents = append(f.userAgents, r.Header.Get("User-Agent"))

	if r.URL.Path == "/"+loginPath {
		f.logins++
		n, expiresIn, login := f.logins, f.expiresIn, f.login
		f.mu.Unlock()
		if login != nil {
			login(w, r)
			return
		}
		writeJSON(w, map[string]any{
			"accessToken": fmt.Sprintf("tok-%d", n),
			"expiresIn":   expiresIn,
			"accountId":   testAccount,
		})
		return
	}

	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	h, ok := f.routes[r.URL.Path]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (f *fakeCozi) handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = h
}

func (f *fakeCozi) hitsFor(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeCozi) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeCozi) apiRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.authHeaders)
}

func (f *fakeCozi) lastAuthHeader() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.authHeaders) == 0 {
		return ""
	}
	return f.authHeaders[len(f.authHeaders)-1]
}

func (f *fakeCozi) newClient(opts ...func(*Options)) *Client {
	f.t.Helper()
	o := Options{
		BaseURL: f.srv.URL,
		Retry:   RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond},
		Logger:  slog.New(slog.DiscardHandler),
	}
	for _, fn := range opts {
		fn(&o)
	}
	c, err := New(o)
	require.NoError(f.t, err)
	return c
}

func (f *fakeCozi) loggedIn(opts ...func(*Options)) *Client {
	f.t.Helper()
	c := f.newClient(opts...)
	require.NoError(f.t, c.Login(context.Background(), "jane@example.com", "secret"))
	return c
}

func apiPath(rel string) string {
	return "/" + rel
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func jsonBody(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func statusOnly(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, http.StatusText(code), code)
	}
}

// sequence serves handlers in order, repeating the last one.
func sequence(handlers ...http.HandlerFunc) http.HandlerFunc {
	var n atomic.Int64
	return func(w http.ResponseWriter, r *http.Request) {
		i := int(n.Add(1)) - 1
		if i >= len(handlers) {
			i = len(handlers) - 1
		}
		handlers[i](w, r)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMetrics(t *testing.T) (*instrumentation.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := instrumentation.NewMetrics(mp.Meter("test"), false)
	require.NoError(t, err)
	return m, reader
}

func collectSum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, ok := ParseDay(s)
	require.True(t, ok, "invalid day %q", s)
	return d
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
