package cozi

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/cozictl/internal/instrumentation"
)

// GetLists returns every list of the household.
func (c *Client) GetLists(ctx context.Context) ([]List, error) {
	return getJSON[[]List](ctx, c, OpListLists, listsPath)
}

// GetList returns a single list by id.
func (c *Client) GetList(ctx context.Context, listID string) (*List, error) {
	if listID == "" {
		return nil, &ValidationError{Field: "list id", Reason: "must not be empty"}
	}
	return getJSON[*List](ctx, c, OpGetList, func(accountID string) string {
		return listPath(accountID, listID)
	})
}

// GetPeople returns the household roster.
func (c *Client) GetPeople(ctx context.Context) ([]Person, error) {
	return getJSON[[]Person](ctx, c, OpPeople, peoplePath)
}

// GetCalendarMonth returns the calendar month view. Month must be 1..12.
func (c *Client) GetCalendarMonth(ctx context.Context, year, month int) (*CalendarMonth, error) {
	if err := validateMonth(year, month); err != nil {
		return nil, err
	}
	return getJSON[*CalendarMonth](ctx, c, OpCalendarMonth, func(accountID string) string {
		return monthPath(accountID, year, month)
	})
}

// GetCalendarMonthRaw returns the undecoded calendar month body.
func (c *Client) GetCalendarMonthRaw(ctx context.Context, year, month int) (json.RawMessage, error) {
	if err := validateMonth(year, month); err != nil {
		return nil, err
	}
	body, _, err := c.fetch(ctx, OpCalendarMonth, func(accountID string) string {
		return monthPath(accountID, year, month)
	})
	return body, err
}

// GetCalendarItem returns a single calendar item, trying each configured API
// version in order. A *NotFoundError is returned when every version answers 404.
func (c *Client) GetCalendarItem(ctx context.Context, itemID string) (*CalendarItem, error) {
	body, endpoint, err := c.fetchItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	var item CalendarItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, &ProtocolError{Op: OpCalendarItem, Endpoint: endpoint, Reason: "decode response", Err: err}
	}
	return &item, nil
}

// GetCalendarItemRaw returns the undecoded calendar item body.
func (c *Client) GetCalendarItemRaw(ctx context.Context, itemID string) (json.RawMessage, error) {
	body, _, err := c.fetchItem(ctx, itemID)
	return body, err
}

// GetCalendarYear returns every entry of the twelve months of year, in month order.
func (c *Client) GetCalendarYear(ctx context.Context, year int) ([]CalendarEntry, error) {
	if err := validateMonth(year, 1); err != nil {
		return nil, err
	}
	var entries []CalendarEntry
	err := c.view(ctx, OpCalendarYear, instrumentation.ViewYear, func(ctx context.Context) error {
		entries = []CalendarEntry{}
		for m := 1; m <= 12; m++ {
			month, err := c.GetCalendarMonth(ctx, year, m)
			if err != nil {
				return fmt.Errorf("calendar year %d, month %d: %w", year, m, err)
			}
			entries = slices.AppendSeq(entries, Flatten(month))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.metrics.RecordCalendarEntries(ctx, instrumentation.ViewYear, len(entries))
	return entries, nil
}

// WeekStart returns the Monday on or before date, at midnight UTC.
func WeekStart(date time.Time) time.Time {
	d := DateOf(date)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// GetCalendarWeek returns the entries of the Monday-to-Sunday week containing date.
// Each month the week touches is fetched once.
func (c *Client) GetCalendarWeek(ctx context.Context, date time.Time) ([]CalendarEntry, error) {
	from := WeekStart(date)
	return c.calendarWindow(ctx, OpCalendarWeek, instrumentation.ViewWeek, from, from.AddDate(0, 0, 7))
}

// GetCalendarDay returns the entries dated on date's calendar day.
func (c *Client) GetCalendarDay(ctx context.Context, date time.Time) ([]CalendarEntry, error) {
	from := DateOf(date)
	return c.calendarWindow(ctx, OpCalendarDay, instrumentation.ViewDay, from, from.AddDate(0, 0, 1))
}

// GetCalendarRange returns the entries dated in [from, to). Each month the
// range touches is fetched once.
func (c *Client) GetCalendarRange(ctx context.Context, from, to time.Time) ([]CalendarEntry, error) {
	from, to = DateOf(from), DateOf(to)
	if !to.After(from) {
		return nil, &ValidationError{Field: "range", Reason: "end must be after start"}
	}
	return c.calendarWindow(ctx, OpCalendarRange, instrumentation.ViewRange, from, to)
}

// calendarWindow fetches every month overlapping [from, to) once and keeps the
// entries dated inside the window. An item listed under the same day by two
// different month responses is returned once.
func (c *Client) calendarWindow(ctx context.Context, op, view string, from, to time.Time) ([]CalendarEntry, error) {
	var entries []CalendarEntry
	err := c.view(ctx, op, view, func(ctx context.Context) error {
		entries = []CalendarEntry{}
		type key struct {
			date time.Time
			id   string
		}
		// Month documents can overlap at their edges. An entry is dropped
		// only when an earlier month already produced it; repeats within a
		// single month are kept as delivered.
		seenIn := make(map[key]time.Time)

		last := to.AddDate(0, 0, -1)
		for m := firstOfMonth(from); !m.After(last); m = m.AddDate(0, 1, 0) {
			month, err := c.GetCalendarMonth(ctx, m.Year(), int(m.Month()))
			if err != nil {
				return fmt.Errorf("calendar %s: %w", m.Format("2006-01"), err)
			}
			for e := range Filter(Flatten(month), Between(from, to)) {
				k := key{date: e.Date, id: e.Item.ID}
				if first, ok := seenIn[k]; ok && !first.Equal(m) {
					continue
				}
				seenIn[k] = m
				entries = append(entries, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.metrics.RecordCalendarEntries(ctx, view, len(entries))
	return entries, nil
}

// view wraps an aggregated calendar view in its own span.
func (c *Client) view(ctx context.Context, op, view string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartSpan(ctx, "cozi."+op, attribute.String(instrumentation.SpanAttrView, view))
	err := fn(ctx)
	instrumentation.EndSpan(span, err)
	return err
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func validateMonth(year, month int) error {
	if month < 1 || month > 12 {
		return &ValidationError{Field: "month", Reason: fmt.Sprintf("%d is not in 1..12", month)}
	}
	if year < 1 || year > 9999 {
		return &ValidationError{Field: "year", Reason: fmt.Sprintf("%d is not in 1..9999", year)}
	}
	return nil
}
