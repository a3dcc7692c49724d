package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testListsJSON = `[{"listId":"l-1","title":"Groceries","listType":"shopping","items":[{"itemId":"i-1","text":"Milk","checkedOff":false}]}]`

	testPeopleJSON = `[{"personId":"p-1","name":"Jane"},{"personId":"p-2","name":"Joe"}]`

	testMarchJSON = `{
		"days": {
			"2025-03-14": [{"id":"a-1"}],
			"2025-03-17": [{"id":"h-1"}, {"id":"a-2"}]
		},
		"items": {
			"a-1": {"id":"a-1","day":"2025-03-14","startTime":"09:00:00","endTime":"10:00:00","description":"Dentist","attendeeSet":["p-1"],"itemSource":"cozi"},
			"a-2": {"id":"a-2","day":"2025-03-17","startTime":"18:00:00","endTime":"19:00:00","description":"Soccer practice","itemSource":"cozi"},
			"h-1": {"id":"h-1","day":"2025-03-17","description":"St. Patrick's Day","itemSource":"holiday"}
		}
	}`
)

// fakeCozi serves one household under account acct-1 and counts logins.
func fakeCozi(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var logins atomic.Int32

	routes := map[string]string{
		"/api/ext/2004/acct-1/list/":             testListsJSON,
		"/api/ext/2004/acct-1/list/l-1":          `{"listId":"l-1","title":"Groceries","listType":"shopping","items":[]}`,
		"/api/ext/2004/acct-1/account/person/":   testPeopleJSON,
		"/api/ext/2004/acct-1/calendar/2025/03":  testMarchJSON,
		"/api/ext/2004/acct-1/calendar/item/a-1": `{"id":"a-1","day":"2025-03-14","description":"Dentist","zeta":1,"alpha":2,"attendeeSet":["p-1"]}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/ext/2207/auth/login" {
			logins.Add(1)
			_, _ = w.Write([]byte(`{"accessToken":"tok","expiresIn":3600,"accountId":"acct-1"}`))
			return
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &logins
}

// isolate points the CLI at baseURL with an empty config and no credentials
// other than the ones the test sets.
func isolate(t *testing.T, baseURL string) {
	t.Helper()
	t.Setenv("COZI_BASE_URL", baseURL)
	t.Setenv("COZI_MAX_RETRIES", "0")
	t.Setenv(EnvUsername, "jane@example.com")
	t.Setenv(EnvPassword, "secret")
}

// run executes the command tree with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "config.yaml")

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", cfg, "--env-file", ""}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}
