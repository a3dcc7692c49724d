package cozi

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Extra holds JSON members a type does not model, keyed by member name. They
// survive a decode/encode round trip.
type Extra map[string]json.RawMessage

// List is a shopping or to-do list.
type List struct {
	ListID   string     `json:"listId"`
	Title    string     `json:"title"`
	ListType string     `json:"listType"`
	Version  int        `json:"version,omitempty"`
	Items    []ListItem `json:"items"`

	Extra Extra `json:"-"`
}

// ListItem is one entry of a List.
type ListItem struct {
	ItemID     string `json:"itemId"`
	Text       string `json:"text"`
	CheckedOff bool   `json:"checkedOff"`
	Version    int    `json:"version,omitempty"`
	Category   string `json:"category,omitempty"`
	Quantity   string `json:"quantity,omitempty"`
	WhoAdded   string `json:"whoAdded,omitempty"`

	// CreatedTime and ModifiedTime are unix milliseconds.
	CreatedTime  int64 `json:"createdTime,omitempty"`
	ModifiedTime int64 `json:"modifiedTime,omitempty"`

	Extra Extra `json:"-"`
}

// Created returns CreatedTime as a time, the zero time when unset.
func (li ListItem) Created() time.Time {
	return unixMilli(li.CreatedTime)
}

// Modified returns ModifiedTime as a time, the zero time when unset.
func (li ListItem) Modified() time.Time {
	return unixMilli(li.ModifiedTime)
}

func unixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Person is a household member.
type Person struct {
	PersonID        string `json:"personId"`
	AccountPersonID string `json:"accountPersonId,omitempty"`
	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	Color           string `json:"color,omitempty"`
	Initials        string `json:"initials,omitempty"`
	Type            string `json:"type,omitempty"`

	Extra Extra `json:"-"`
}

// ID returns PersonID, falling back to AccountPersonID.
func (p Person) ID() string {
	if p.PersonID != "" {
		return p.PersonID
	}
	return p.AccountPersonID
}

// CalendarMonth is the month view as delivered by the API: ordered day keys
// referencing items by id, plus the item dictionary.
type CalendarMonth struct {
	StartDate string                                   `json:"startDate,omitempty"`
	EndDate   string                                   `json:"endDate,omitempty"`
	Days      *orderedmap.OrderedMap[string, []DayRef] `json:"days"`
	Items     map[string]CalendarItem                  `json:"items"`
}

// DayRef references a CalendarItem by id from a day of a CalendarMonth.
type DayRef struct {
	ID string `json:"id"`
}

// CalendarItem is a single calendar appointment.
type CalendarItem struct {
	ID               string       `json:"id"`
	ItemType         string       `json:"itemType,omitempty"`
	Day              string       `json:"day"`
	StartTime        string       `json:"startTime"`
	EndTime          string       `json:"endTime"`
	DateSpan         int          `json:"dateSpan"`
	Description      string       `json:"description"`
	DescriptionShort string       `json:"descriptionShort,omitempty"`
	ItemSource       string       `json:"itemSource,omitempty"`
	AttendeeSet      []string     `json:"attendeeSet,omitempty"`
	Details          *ItemDetails `json:"itemDetails,omitempty"`
	ItemVersion      int          `json:"itemVersion,omitempty"`

	Extra Extra `json:"-"`
}

// ItemDetails carries the optional free-form parts of a CalendarItem.
type ItemDetails struct {
	Location           string `json:"location,omitempty"`
	Notes              string `json:"notes,omitempty"`
	ReadOnly           bool   `json:"readOnly,omitempty"`
	RecurrenceStartDay string `json:"recurrenceStartDay,omitempty"`

	// Recurrence is kept verbatim; rules are not expanded.
	Recurrence json.RawMessage `json:"recurrence,omitempty"`

	Extra Extra `json:"-"`
}

// IsHoliday reports whether the item comes from a holiday calendar.
func (it CalendarItem) IsHoliday() bool {
	return strings.Contains(strings.ToLower(it.ItemSource), "holiday")
}

// Location returns the item location, empty when there are no details.
func (it CalendarItem) Location() string {
	if it.Details == nil {
		return ""
	}
	return it.Details.Location
}

// Notes returns the item notes, empty when there are no details.
func (it CalendarItem) Notes() string {
	if it.Details == nil {
		return ""
	}
	return it.Details.Notes
}

// ReadOnly reports whether the item is marked read-only upstream.
func (it CalendarItem) ReadOnly() bool {
	return it.Details != nil && it.Details.ReadOnly
}

// AllDay reports whether the item has no time of day.
func (it CalendarItem) AllDay() bool {
	return it.StartTime == "00:00:00" && it.EndTime == "00:00:00"
}

// Date returns the item's day at midnight UTC.
func (it CalendarItem) Date() (time.Time, error) {
	d, ok := ParseDay(it.Day)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid item day %q", it.Day)
	}
	return d, nil
}

// Start returns the start time of day as an offset from midnight.
func (it CalendarItem) Start() (time.Duration, error) {
	return parseClock(it.StartTime)
}

// End returns the end time of day as an offset from midnight.
func (it CalendarItem) End() (time.Duration, error) {
	return parseClock(it.EndTime)
}

// CalendarEntry is one (date, item) pair of a flattened calendar view.
type CalendarEntry struct {
	Date time.Time
	Item CalendarItem
}

// CalendarEntryWithAttendees is a CalendarEntry with its resolved attendees.
// Attendees is never nil.
type CalendarEntryWithAttendees struct {
	Date      time.Time
	Item      CalendarItem
	Attendees []Person
}

// Entry drops the attendees.
func (e CalendarEntryWithAttendees) Entry() CalendarEntry {
	return CalendarEntry{Date: e.Date, Item: e.Item}
}

const dayLayout = time.DateOnly

var dayLayouts = []string{time.DateOnly, "2006-01-02T15:04:05", time.RFC3339}

// ParseDay parses a day key or item day and normalizes it to midnight UTC.
func ParseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), true
		}
	}
	return time.Time{}, false
}

// DateOf truncates t to midnight UTC of its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseClock(s string) (time.Duration, error) {
	for _, layout := range []string{time.TimeOnly, "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

type (
	listJSON         List
	listItemJSON     ListItem
	personJSON       Person
	calendarItemJSON CalendarItem
	itemDetailsJSON  ItemDetails
)

var (
	listFields         = jsonFields(listJSON{})
	listItemFields     = jsonFields(listItemJSON{})
	personFields       = jsonFields(personJSON{})
	calendarItemFields = jsonFields(calendarItemJSON{})
	itemDetailsFields  = jsonFields(itemDetailsJSON{})
)

// UnmarshalJSON implements json.Unmarshaler
func (l *List) UnmarshalJSON(data []byte) error {
	var aux listJSON
	extra, err := unmarshalWithExtra(data, &aux, listFields)
	if err != nil {
		return err
	}
	*l = List(aux)
	l.Extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler
func (l List) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(listJSON(l), l.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (li *ListItem) UnmarshalJSON(data []byte) error {
	var aux listItemJSON
	extra, err := unmarshalWithExtra(data, &aux, listItemFields)
	if err != nil {
		return err
	}
	*li = ListItem(aux)
	li.Extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler
func (li ListItem) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(listItemJSON(li), li.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (p *Person) UnmarshalJSON(data []byte) error {
	var aux personJSON
	extra, err := unmarshalWithExtra(data, &aux, personFields)
	if err != nil {
		return err
	}
	*p = Person(aux)
	p.Extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler
func (p Person) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(personJSON(p), p.Extra)
}

// UnmarshalJSON implements json.Unmarshaler. Missing times default to
// "00:00:00" and a missing dateSpan to 1.
func (it *CalendarItem) UnmarshalJSON(data []byte) error {
	aux := calendarItemJSON{StartTime: "00:00:00", EndTime: "00:00:00", DateSpan: 1}
	extra, err := unmarshalWithExtra(data, &aux, calendarItemFields)
	if err != nil {
		return err
	}
	*it = CalendarItem(aux)
	it.Extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler
func (it CalendarItem) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(calendarItemJSON(it), it.Extra)
}

// UnmarshalJSON implements json.Unmarshaler
func (d *ItemDetails) UnmarshalJSON(data []byte) error {
	var aux itemDetailsJSON
	extra, err := unmarshalWithExtra(data, &aux, itemDetailsFields)
	if err != nil {
		return err
	}
	*d = ItemDetails(aux)
	d.Extra = extra
	return nil
}

// MarshalJSON implements json.Marshaler
func (d ItemDetails) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(itemDetailsJSON(d), d.Extra)
}

type entryJSON struct {
	Date      string       `json:"date"`
	Item      CalendarItem `json:"item"`
	Attendees *[]Person    `json:"attendees,omitempty"`
}

// MarshalJSON encodes the date as YYYY-MM-DD.
func (e CalendarEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{Date: e.Date.Format(dayLayout), Item: e.Item})
}

// MarshalJSON encodes the date as YYYY-MM-DD and always includes attendees.
func (e CalendarEntryWithAttendees) MarshalJSON() ([]byte, error) {
	attendees := e.Attendees
	if attendees == nil {
		attendees = []Person{}
	}
	return json.Marshal(entryJSON{Date: e.Date.Format(dayLayout), Item: e.Item, Attendees: &attendees})
}

// jsonFields returns the JSON member names declared by the struct type of v.
func jsonFields(v any) map[string]struct{} {
	t := reflect.TypeOf(v)
	fields := make(map[string]struct{}, t.NumField())
	for i := range t.NumField() {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		fields[name] = struct{}{}
	}
	return fields
}

func unmarshalWithExtra(data []byte, dst any, known map[string]struct{}) (Extra, error) {
	if string(data) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	var extra Extra
	for name, raw := range all {
		if _, ok := known[name]; ok {
			continue
		}
		if extra == nil {
			extra = make(Extra)
		}
		extra[name] = raw
	}
	return extra, nil
}

func marshalWithExtra(v any, extra Extra) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for name, raw := range extra {
		if _, ok := merged[name]; !ok {
			merged[name] = raw
		}
	}
	return json.Marshal(merged)
}
