package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entryOut struct {
	Date string `json:"date"`
	Item struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	} `json:"item"`
	Attendees []struct {
		Name string `json:"name"`
	} `json:"attendees"`
}

func ids(entries []entryOut) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Item.ID)
	}
	return out
}

func TestListsCmd(t *testing.T) {
	srv, logins := fakeCozi(t)
	isolate(t, srv.URL)

	out, err := run(t, "lists")
	require.NoError(t, err)

	lists := decode[[]map[string]any](t, out)
	require.Len(t, lists, 1)
	assert.Equal(t, "Groceries", lists[0]["title"])
	assert.EqualValues(t, 1, logins.Load())
}

func TestListCmd(t *testing.T) {
	srv, _ := fakeCozi(t)
	isolate(t, srv.URL)

	out, err := run(t, "list", "l-1")
	require.NoError(t, err)
	assert.Equal(t, "l-1", decode[map[string]any](t, out)["listId"])

	_, err = run(t, "list", "missing")
	assert.Error(t, err)
}

func TestPeopleCmd(t *testing.T) {
	srv, _ := fakeCozi(t)
	isolate(t, srv.URL)

	out, err := run(t, "people")
	require.NoError(t, err)
	assert.Len(t, decode[[]map[string]any](t, out), 2)
}

func TestMonthCmd(t *testing.T) {
	srv, _ := fakeCozi(t)
	isolate(t, srv.URL)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "all entries in day order", args: []string{"month", "2025", "3"}, want: []string{"a-1", "h-1", "a-2"}},
		{name: "without holidays", args: []string{"month", "2025", "03", "--holidays=false"}, want: []string{"a-1", "a-2"}},
		{name: "search", args: []string{"month", "2025", "3", "--search", "soccer"}, want: []string{"a-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(decode[[]entryOut](t, out)))
		})
	}
}

func TestMonthCmd_Attendees(t *testing.T) {
	srv, _ := fakeCozi(t)
	isolate(t, srv.URL)

	out, err := run(t, "month", "2025", "3", "--attendees", "--search", "dentist")
	require.NoError(t, err)

	entries := decode[[]entryOut](t, out)
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Attendees, 1)
	assert.Equal(t, "Jane", entries[0].Attendees[0].Name)
}

func TestMonthCmd_Raw(t *testing.T) {
	srv, _ := fakeCozi(t)
	isolate(t, srv.URL)

	out, err := run(t, "month", "2025", "3", "--raw")
	require.NoError(t, err)
	assert.JSONEq(t, testMarchJSON, out)
}

func TestMonthCmd_InvalidArguments(t *testing.T) {
	for _, args := range [][]string{
		{"month", "2025", "13"},
		{"month", "2025", "0"},
		{"month", "twenty", "3"},
		{"month", "2025"},
	} {
		_, err := run(t, args...)
		assert.Error(t, err, "%v", args)
	}
}

func TestItemCmd_RawKeepsKeyOrder(t *testing.T) {
	srv, _ := fakeCozi(t)
	isolate(t, srv.URL)

	out, err := run(t, "item", "a-1", "--raw")
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, `"zeta"`), strings.Index(out, `"alpha"`))
}

func TestItemCmd(t *testing.T) {
	srv, _ := fakeCozi(t)
	isolate(t, srv.URL)

	out, err := run(t, "item", "a-1")
	require.NoError(t, err)

	item := decode[map[string]any](t, out)
	assert.Equal(t, "Dentist", item["description"])
	assert.EqualValues(t, 1, item["zeta"])
}

func TestDayCmd_DefaultsToToday(t *testing.T) {
	srv, _ := fakeCozi(t)
	isolate(t, srv.URL)

	orig := now
	now = func() time.Time { return time.Date(2025, 3, 17, 8, 30, 0, 0, time.Local) }
	t.Cleanup(func() { now = orig })

	out, err := run(t, "day")
	require.NoError(t, err)
	assert.Equal(t, []string{"h-1", "a-2"}, ids(decode[[]entryOut](t, out)))
}

func TestDayCmd_InvalidDate(t *testing.T) {
	_, err := run(t, "day", "17/03/2025")
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestWeekCmd(t *testing.T) {
	srv, _ := fakeCozi(t)
	isolate(t, srv.URL)

	// Monday 2025-03-17 to Sunday 2025-03-23.
	out, err := run(t, "week", "2025-03-19", "--holidays=false")
	require.NoError(t, err)

	entries := decode[[]entryOut](t, out)
	assert.Equal(t, []string{"a-2"}, ids(entries))
	assert.Equal(t, "2025-03-17", entries[0].Date)
}

func TestYearCmd_PropagatesMonthFailure(t *testing.T) {
	srv, _ := fakeCozi(t)
	isolate(t, srv.URL)

	// Only March exists, so January fails first.
	_, err := run(t, "year", "2025")
	assert.Error(t, err)
}

func TestYearCmd_InvalidYear(t *testing.T) {
	_, err := run(t, "year", "abc")
	assert.ErrorContains(t, err, "invalid year")
}

func TestReadCmd_MissingCredentials(t *testing.T) {
	srv, logins := fakeCozi(t)
	isolate(t, srv.URL)
	t.Setenv(EnvPassword, "")

	_, err := run(t, "lists")
	assert.ErrorContains(t, err, "credentials missing")
	assert.Zero(t, logins.Load())
}
