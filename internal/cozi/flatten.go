package cozi

import (
	"iter"
)

// Flatten yields one CalendarEntry per (day, reference) of month, in the
// order of the day keys and of the references within each day. Day keys that
// do not parse as dates and references to ids missing from Items are skipped.
// A nil month yields nothing.
func Flatten(month *CalendarMonth) iter.Seq[CalendarEntry] {
	return func(yield func(CalendarEntry) bool) {
		if month == nil || month.Days == nil {
			return
		}
		for pair := month.Days.Oldest(); pair != nil; pair = pair.Next() {
			date, ok := ParseDay(pair.Key)
			if !ok {
				continue
			}
			for _, ref := range pair.Value {
				item, ok := month.Items[ref.ID]
				if !ok {
					continue
				}
				if !yield(CalendarEntry{Date: date, Item: item}) {
					return
				}
			}
		}
	}
}
