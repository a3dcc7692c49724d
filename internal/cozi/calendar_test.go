package cozi

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aprilJSON = `{
		"days": {
			"2025-04-27": [{"id":"before"}],
			"2025-04-28": [{"id":"a"}],
			"2025-04-30": [{"id":"b"}],
			"2025-05-01": [{"id":"m1"}]
		},
		"items": {
			"before": {"id":"before","day":"2025-04-27"},
			"a": {"id":"a","day":"2025-04-28","description":"Piano lesson"},
			"b": {"id":"b","day":"2025-04-30","description":"Dentist","itemDetails":{"location":"Main St"}},
			"m1": {"id":"m1","day":"2025-05-01","description":"May Day","itemSource":"US Holidays"}
		}
	}`
	mayJSON = `{
		"days": {
			"2025-05-01": [{"id":"m1"}],
			"2025-05-04": [{"id":"c"}],
			"2025-05-05": [{"id":"after"}]
		},
		"items": {
			"m1": {"id":"m1","day":"2025-05-01","description":"May Day","itemSource":"US Holidays"},
			"c": {"id":"c","day":"2025-05-04","description":"Soccer"},
			"after": {"id":"after","day":"2025-05-05"}
		}
	}`
)

func monthRoute(year, month int) string {
	return apiPath(monthPath(testAccount, year, month))
}

func weekFixture(t *testing.T) *fakeCozi {
	t.Helper()
	f := newFakeCozi(t)
	f.handle(monthRoute(2025, 4), jsonBody(aprilJSON))
	f.handle(monthRoute(2025, 5), jsonBody(mayJSON))
	return f
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{date: "2025-04-28", want: "2025-04-28"},
		{date: "2025-04-30", want: "2025-04-28"},
		{date: "2025-05-04", want: "2025-04-28"},
		{date: "2025-05-05", want: "2025-05-05"},
		{date: "2025-01-01", want: "2024-12-30"},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			got := WeekStart(mustDay(t, tt.date))
			assert.Equal(t, tt.want, got.Format(dayLayout))
			assert.Equal(t, time.Monday, got.Weekday())
		})
	}
}

func TestGetCalendarWeek_SpansTwoMonths(t *testing.T) {
	f := weekFixture(t)
	c := f.loggedIn()

	entries, err := c.GetCalendarWeek(context.Background(), mustDay(t, "2025-04-30"))
	require.NoError(t, err)

	assert.Equal(t, []flatKey{
		{"2025-04-28", "a"},
		{"2025-04-30", "b"},
		{"2025-05-01", "m1"},
		{"2025-05-04", "c"},
	}, keys(entries))
	assert.Equal(t, 1, f.hitsFor(monthRoute(2025, 4)))
	assert.Equal(t, 1, f.hitsFor(monthRoute(2025, 5)))
}

func TestGetCalendarWeek_EntriesStayInsideWindow(t *testing.T) {
	f := weekFixture(t)
	c := f.loggedIn()

	for _, date := range []string{"2025-04-28", "2025-05-01", "2025-05-04"} {
		entries, err := c.GetCalendarWeek(context.Background(), mustDay(t, date))
		require.NoError(t, err)

		monday := WeekStart(mustDay(t, date))
		for _, e := range entries {
			assert.False(t, e.Date.Before(monday), "%s before window", e.Date)
			assert.True(t, e.Date.Before(monday.AddDate(0, 0, 7)), "%s after window", e.Date)
		}
	}
}

func TestGetCalendarWeek_KeepsRepeatsWithinOneMonth(t *testing.T) {
	f := newFakeCozi(t)
	f.handle(monthRoute(2025, 4), jsonBody(`{
		"days": {
			"2025-04-28": [{"id":"a"},{"id":"a"}],
			"2025-05-01": [{"id":"m1"}]
		},
		"items": {
			"a": {"id":"a","day":"2025-04-28"},
			"m1": {"id":"m1","day":"2025-05-01"}
		}
	}`))
	f.handle(monthRoute(2025, 5), jsonBody(`{
		"days": {"2025-05-01": [{"id":"m1"}]},
		"items": {"m1": {"id":"m1","day":"2025-05-01"}}
	}`))
	c := f.loggedIn()

	entries, err := c.GetCalendarWeek(context.Background(), mustDay(t, "2025-04-28"))
	require.NoError(t, err)

	// The in-month repeat survives; the cross-month repeat does not.
	assert.Equal(t, []flatKey{
		{"2025-04-28", "a"},
		{"2025-04-28", "a"},
		{"2025-05-01", "m1"},
	}, keys(entries))
}

func TestGetCalendarWeek_SingleMonth(t *testing.T) {
	f := newFakeCozi(t)
	f.handle(monthRoute(2025, 3), jsonBody(marchJSON))
	c := f.loggedIn()

	entries, err := c.GetCalendarWeek(context.Background(), mustDay(t, "2025-03-12"))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
	assert.Equal(t, 1, f.apiRequests())
}

func TestGetCalendarDay_IsSubsetOfWeek(t *testing.T) {
	f := weekFixture(t)
	c := f.loggedIn()
	ctx := context.Background()

	for _, date := range []string{"2025-04-28", "2025-04-30", "2025-05-01", "2025-05-02", "2025-05-04"} {
		day, err := c.GetCalendarDay(ctx, mustDay(t, date))
		require.NoError(t, err)
		week, err := c.GetCalendarWeek(ctx, mustDay(t, date))
		require.NoError(t, err)

		weekKeys := keys(week)
		for _, k := range keys(day) {
			assert.Contains(t, weekKeys, k)
			assert.Equal(t, date, k.date)
		}
	}
}

func TestGetCalendarDay_FetchesContainingMonthOnly(t *testing.T) {
	f := weekFixture(t)
	c := f.loggedIn()

	entries, err := c.GetCalendarDay(context.Background(), time.Date(2025, 4, 30, 18, 45, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, []flatKey{{"2025-04-30", "b"}}, keys(entries))
	assert.Equal(t, 1, f.hitsFor(monthRoute(2025, 4)))
	assert.Zero(t, f.hitsFor(monthRoute(2025, 5)))
}

func TestGetCalendarYear_ConcatenatesMonths(t *testing.T) {
	f := newFakeCozi(t)
	for m := 1; m <= 12; m++ {
		f.handle(monthRoute(2025, m), jsonBody(`{"days":{},"items":{}}`))
	}
	f.handle(monthRoute(2025, 4), jsonBody(aprilJSON))
	f.handle(monthRoute(2025, 5), jsonBody(mayJSON))
	metrics, _ := newTestMetrics(t)
	c := f.loggedIn(func(o *Options) { o.Metrics = metrics })

	entries, err := c.GetCalendarYear(context.Background(), 2025)
	require.NoError(t, err)

	assert.Equal(t, []flatKey{
		{"2025-04-27", "before"},
		{"2025-04-28", "a"},
		{"2025-04-30", "b"},
		{"2025-05-01", "m1"},
		{"2025-05-01", "m1"},
		{"2025-05-04", "c"},
		{"2025-05-05", "after"},
	}, keys(entries))
	for m := 1; m <= 12; m++ {
		assert.Equal(t, 1, f.hitsFor(monthRoute(2025, m)), "month %d", m)
	}
}

func TestGetCalendarYear_PropagatesMonthFailure(t *testing.T) {
	f := newFakeCozi(t)
	for m := 1; m <= 12; m++ {
		f.handle(monthRoute(2025, m), jsonBody(`{"days":{},"items":{}}`))
	}
	f.handle(monthRoute(2025, 7), statusOnly(http.StatusForbidden))
	c := f.loggedIn()

	_, err := c.GetCalendarYear(context.Background(), 2025)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, err.Error(), "month 7")
	assert.Zero(t, f.hitsFor(monthRoute(2025, 8)))
}

func TestGetCalendarRange(t *testing.T) {
	f := weekFixture(t)
	c := f.loggedIn()

	entries, err := c.GetCalendarRange(context.Background(), mustDay(t, "2025-04-30"), mustDay(t, "2025-05-02"))
	require.NoError(t, err)
	assert.Equal(t, []flatKey{{"2025-04-30", "b"}, {"2025-05-01", "m1"}}, keys(entries))

	_, err = c.GetCalendarRange(context.Background(), mustDay(t, "2025-05-02"), mustDay(t, "2025-05-02"))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGetCalendarMonthRaw(t *testing.T) {
	f := newFakeCozi(t)
	f.handle(monthRoute(2025, 3), jsonBody(marchJSON))
	c := f.loggedIn()

	raw, err := c.GetCalendarMonthRaw(context.Background(), 2025, 3)
	require.NoError(t, err)
	assert.JSONEq(t, marchJSON, string(raw))
}

func TestMonthPath_ZeroPads(t *testing.T) {
	assert.Equal(t, fmt.Sprintf("api/ext/2004/%s/calendar/2025/03", testAccount), monthPath(testAccount, 2025, 3))
}
