package cozi

import (
	"iter"
	"slices"
	"strings"
	"time"
)

// Predicate selects calendar entries.
type Predicate func(CalendarEntry) bool

// Filter yields the entries of seq matching every predicate.
func Filter(seq iter.Seq[CalendarEntry], preds ...Predicate) iter.Seq[CalendarEntry] {
	match := All(preds...)
	return func(yield func(CalendarEntry) bool) {
		for e := range seq {
			if match(e) && !yield(e) {
				return
			}
		}
	}
}

// FilterSlice returns the entries matching every predicate, preserving order.
func FilterSlice(entries []CalendarEntry, preds ...Predicate) []CalendarEntry {
	return Collect(slices.Values(entries), preds...)
}

// Collect returns the entries of seq matching every predicate. The result is
// never nil.
func Collect(seq iter.Seq[CalendarEntry], preds ...Predicate) []CalendarEntry {
	out := []CalendarEntry{}
	for e := range Filter(seq, preds...) {
		out = append(out, e)
	}
	return out
}

// All matches entries accepted by every predicate. With none it matches everything.
func All(preds ...Predicate) Predicate {
	return func(e CalendarEntry) bool {
		for _, p := range preds {
			if p != nil && !p(e) {
				return false
			}
		}
		return true
	}
}

// Any matches entries accepted by at least one predicate.
func Any(preds ...Predicate) Predicate {
	return func(e CalendarEntry) bool {
		for _, p := range preds {
			if p != nil && p(e) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(e CalendarEntry) bool { return !p(e) }
}

// IDEquals matches the item with the given id.
func IDEquals(id string) Predicate {
	return func(e CalendarEntry) bool { return e.Item.ID == id }
}

// ItemTypeEquals matches the item type, ignoring case.
func ItemTypeEquals(itemType string) Predicate {
	return func(e CalendarEntry) bool { return strings.EqualFold(e.Item.ItemType, itemType) }
}

// ItemTypeContains matches a substring of the item type, ignoring case.
func ItemTypeContains(s string) Predicate {
	return func(e CalendarEntry) bool { return containsFold(e.Item.ItemType, s) }
}

// DescriptionContains matches the description or the short description, ignoring case.
func DescriptionContains(s string) Predicate {
	return func(e CalendarEntry) bool {
		return containsFold(e.Item.Description, s) || containsFold(e.Item.DescriptionShort, s)
	}
}

// LocationContains matches the item location, ignoring case.
func LocationContains(s string) Predicate {
	return func(e CalendarEntry) bool { return containsFold(e.Item.Location(), s) }
}

// NotesContains matches the item notes, ignoring case.
func NotesContains(s string) Predicate {
	return func(e CalendarEntry) bool { return containsFold(e.Item.Notes(), s) }
}

// SourceContains matches the item source, ignoring case.
func SourceContains(s string) Predicate {
	return func(e CalendarEntry) bool { return containsFold(e.Item.ItemSource, s) }
}

// SourceNotContains matches items whose source does not contain s, ignoring case.
func SourceNotContains(s string) Predicate {
	return Not(SourceContains(s))
}

// Search matches s in the description, location or notes.
func Search(s string) Predicate {
	return Any(DescriptionContains(s), LocationContains(s), NotesContains(s))
}

// Holiday matches items from holiday calendars.
func Holiday() Predicate {
	return func(e CalendarEntry) bool { return e.Item.IsHoliday() }
}

// NotHoliday matches items that do not come from holiday calendars.
func NotHoliday() Predicate {
	return Not(Holiday())
}

// DateSpanEquals matches items spanning exactly n days.
func DateSpanEquals(n int) Predicate {
	return func(e CalendarEntry) bool { return e.Item.DateSpan == n }
}

// ReadOnly matches items whose read-only flag equals want.
func ReadOnly(want bool) Predicate {
	return func(e CalendarEntry) bool { return e.Item.ReadOnly() == want }
}

// AllDay matches items without a time of day.
func AllDay() Predicate {
	return func(e CalendarEntry) bool { return e.Item.AllDay() }
}

// OnDate matches entries dated on d's calendar day.
func OnDate(d time.Time) Predicate {
	day := DateOf(d)
	return func(e CalendarEntry) bool { return e.Date.Equal(day) }
}

// OnOrAfter matches entries dated on or after d's calendar day.
func OnOrAfter(d time.Time) Predicate {
	day := DateOf(d)
	return func(e CalendarEntry) bool { return !e.Date.Before(day) }
}

// Before matches entries dated before d's calendar day.
func Before(d time.Time) Predicate {
	day := DateOf(d)
	return func(e CalendarEntry) bool { return e.Date.Before(day) }
}

// Between matches entries dated in [from, to).
func Between(from, to time.Time) Predicate {
	return func(e CalendarEntry) bool { return !e.Date.Before(from) && e.Date.Before(to) }
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
