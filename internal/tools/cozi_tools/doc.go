// Package cozi_tools exposes the Cozi household client as read-only MCP tools.
//
// Lists and people:
//   - cozi_list_lists, cozi_get_list, cozi_list_people
//
// Calendar:
//   - cozi_get_calendar_month (optionally raw)
//   - cozi_get_calendar_item (one id or many)
//   - cozi_get_calendar_day, cozi_get_calendar_week, cozi_get_calendar_year
//
// Tools returning calendar entries accept with_attendees, include_holidays
// and search. Upstream failures are reported as tool error results, never as
// Go errors.
package cozi_tools
