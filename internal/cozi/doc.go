// Package cozi is a read-only client for the Cozi household REST API.
//
// A Client authenticates once with Login and then serves lists, the people
// roster, calendar months and single calendar items. Every request passes
// through a retrying Transport (network errors and 5xx responses, exponential
// backoff) and the bearer token is injected by oauth2.Transport from the
// client's Session.
//
// The session re-authenticates on its own when the token is within
// ExpiryMargin of its expiry, and once more when the API answers 401.
// Operations attempted before any successful Login fail with a *StateError
// before any network I/O.
//
// Calendar months arrive as ordered day keys referencing items by id. Flatten
// turns a month into a sequence of (date, item) entries; GetCalendarYear,
// GetCalendarWeek and GetCalendarDay aggregate months into views, and
// WithAttendees resolves the household members attending each entry.
//
// Example:
//
//	client, err := cozi.New(cozi.Options{})
//	if err != nil {
//		return err
//	}
//	if err := client.Login(ctx, username, password); err != nil {
//		return err
//	}
//	entries, err := client.GetCalendarWeek(ctx, time.Now())
package cozi
