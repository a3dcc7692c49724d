package cozi

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/buger/jsonparser"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/cozictl/internal/logging"
)

// householdMembersKey is the extension member some item payloads use to list
// attendees, as plain ids or objects with an "id" member.
const householdMembersKey = "householdMembers"

// AttendeesFromExtra resolves attendees from the item's householdMembers
// extension data. It never fails: a missing or malformed member yields an
// empty result. Roster order is preserved.
func AttendeesFromExtra(item CalendarItem, roster []Person) []Person {
	raw, ok := item.Extra[householdMembersKey]
	if !ok {
		return []Person{}
	}
	if _, dataType, _, err := jsonparser.Get(raw); err != nil || dataType != jsonparser.Array {
		return []Person{}
	}

	ids := make(map[string]struct{})
	_, err := jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		switch dataType {
		case jsonparser.String:
			if id, err := jsonparser.ParseString(value); err == nil {
				ids[id] = struct{}{}
			}
		case jsonparser.Number:
			ids[string(value)] = struct{}{}
		case jsonparser.Object:
			if id, err := jsonparser.GetString(value, "id"); err == nil {
				ids[id] = struct{}{}
			}
		}
	})
	if err != nil {
		return []Person{}
	}
	return matchRoster(roster, ids)
}

// AttendeesFromSet resolves attendees from the authoritative attendee set of
// the item's full record. Holidays resolve to nothing without a lookup, as do
// items no API version knows. When the full record has no attendee set the
// householdMembers extension data is used instead.
func (c *Client) AttendeesFromSet(ctx context.Context, item CalendarItem, roster []Person) ([]Person, error) {
	if item.IsHoliday() {
		return []Person{}, nil
	}

	full, err := c.GetCalendarItem(ctx, item.ID)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			c.logger.Debug("attendee lookup: item not found", logging.ItemID(item.ID))
			return []Person{}, nil
		}
		return nil, err
	}

	if full.AttendeeSet == nil {
		return AttendeesFromExtra(*full, roster), nil
	}
	ids := make(map[string]struct{}, len(full.AttendeeSet))
	for _, id := range full.AttendeeSet {
		ids[id] = struct{}{}
	}
	return matchRoster(roster, ids), nil
}

// WithAttendees resolves attendees for every entry. The roster is fetched
// exactly once; item lookups run concurrently up to the configured limit and
// results keep the input order. The first failure cancels the remaining lookups.
func (c *Client) WithAttendees(ctx context.Context, entries []CalendarEntry) ([]CalendarEntryWithAttendees, error) {
	roster, err := c.GetPeople(ctx)
	if err != nil {
		return nil, fmt.Errorf("attendees: %w", err)
	}

	out := make([]CalendarEntryWithAttendees, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, e := range entries {
		out[i] = CalendarEntryWithAttendees{Date: e.Date, Item: e.Item, Attendees: []Person{}}
		if e.Item.IsHoliday() {
			continue
		}
		g.Go(func() error {
			people, err := c.AttendeesFromSet(gctx, e.Item, roster)
			if err != nil {
				return fmt.Errorf("attendees for item %q: %w", e.Item.ID, err)
			}
			out[i].Attendees = people
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// FlattenWithAttendees flattens month and resolves attendees for every entry.
func (c *Client) FlattenWithAttendees(ctx context.Context, month *CalendarMonth) ([]CalendarEntryWithAttendees, error) {
	return c.WithAttendees(ctx, slices.Collect(Flatten(month)))
}

// matchRoster returns the roster members whose id is in ids, in roster order.
func matchRoster(roster []Person, ids map[string]struct{}) []Person {
	out := []Person{}
	if len(ids) == 0 {
		return out
	}
	for _, p := range roster {
		_, byID := ids[p.PersonID]
		_, byAccount := ids[p.AccountPersonID]
		if (byID && p.PersonID != "") || (byAccount && p.AccountPersonID != "") {
			out = append(out, p)
		}
	}
	return out
}
