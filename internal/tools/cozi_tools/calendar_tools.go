package cozi_tools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/cozictl/internal/cozi"
	"github.com/teemow/cozictl/internal/server"
	"github.com/teemow/cozictl/internal/tools/batch"
	"github.com/teemow/cozictl/internal/tools/common"
)

// entryOptions are the filters shared by every tool returning calendar entries.
func entryOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithBoolean("with_attendees",
			mcp.Description("Resolve the household members attending each appointment (one extra request per appointment, default: false)"),
		),
		mcp.WithBoolean("include_holidays",
			mcp.Description("Include public holidays (default: true)"),
		),
		mcp.WithString("search",
			mcp.Description("Only return appointments whose description, location or notes contain this text (case-insensitive)"),
		),
	}
}

func calendarTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	all := append([]mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithReadOnlyHintAnnotation(true),
	}, opts...)
	return mcp.NewTool(name, all...)
}

func calendarTools(sc *server.ServerContext) []mcpserver.ServerTool {
	monthTool := calendarTool(ToolGetCalendarMonth,
		"Get all appointments of one calendar month, ordered by day",
		append([]mcp.ToolOption{
			mcp.WithNumber("year",
				mcp.Required(),
				mcp.Description("Four-digit year, e.g. 2025"),
			),
			mcp.WithNumber("month",
				mcp.Required(),
				mcp.Description("Month number, 1-12"),
			),
			mcp.WithBoolean("raw",
				mcp.Description("Return the month document exactly as delivered by Cozi, ignoring all filters (default: false)"),
			),
		}, entryOptions()...)...,
	)

	itemTool := calendarTool(ToolGetCalendarItem,
		"Get the full details of one or more calendar appointments",
		mcp.WithString("item_ids",
			mcp.Required(),
			mcp.Description("Appointment ID (string) or array of appointment IDs"),
		),
		mcp.WithBoolean("raw",
			mcp.Description("Return each appointment exactly as delivered by Cozi (default: false)"),
		),
	)

	dayTool := calendarTool(ToolGetCalendarDay,
		"Get the appointments of a single day",
		append([]mcp.ToolOption{
			mcp.WithString("date",
				mcp.Description("Day in YYYY-MM-DD format (default: today)"),
			),
		}, entryOptions()...)...,
	)

	weekTool := calendarTool(ToolGetCalendarWeek,
		"Get the appointments of the Monday-to-Sunday week containing a date",
		append([]mcp.ToolOption{
			mcp.WithString("date",
				mcp.Description("Any day of the week in YYYY-MM-DD format (default: today)"),
			),
		}, entryOptions()...)...,
	)

	yearTool := calendarTool(ToolGetCalendarYear,
		"Get the appointments of a whole year (twelve month requests)",
		append([]mcp.ToolOption{
			mcp.WithNumber("year",
				mcp.Description("Four-digit year (default: current year)"),
			),
		}, entryOptions()...)...,
	)

	wrap := func(name, op string, h func(context.Context, mcp.CallToolRequest, *server.ServerContext) (*mcp.CallToolResult, error)) mcpserver.ToolHandlerFunc {
		return common.InstrumentedToolHandler(name, op, sc,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return h(ctx, request, sc)
			})
	}

	return []mcpserver.ServerTool{
		{Tool: monthTool, Handler: wrap(ToolGetCalendarMonth, cozi.OpCalendarMonth, handleGetCalendarMonth)},
		{Tool: itemTool, Handler: wrap(ToolGetCalendarItem, cozi.OpCalendarItem, handleGetCalendarItem)},
		{Tool: dayTool, Handler: wrap(ToolGetCalendarDay, cozi.OpCalendarDay, handleGetCalendarDay)},
		{Tool: weekTool, Handler: wrap(ToolGetCalendarWeek, cozi.OpCalendarWeek, handleGetCalendarWeek)},
		{Tool: yearTool, Handler: wrap(ToolGetCalendarYear, cozi.OpCalendarYear, handleGetCalendarYear)},
	}
}

// entryFilter holds the parsed filter arguments of a calendar tool.
type entryFilter struct {
	withAttendees   bool
	includeHolidays bool
	search          string
}

func parseEntryFilter(args map[string]any) entryFilter {
	search, _ := common.StringArg(args, "search")
	return entryFilter{
		withAttendees:   common.BoolArg(args, "with_attendees", false),
		includeHolidays: common.BoolArg(args, "include_holidays", true),
		search:          search,
	}
}

func (f entryFilter) predicates() []cozi.Predicate {
	var preds []cozi.Predicate
	if !f.includeHolidays {
		preds = append(preds, cozi.NotHoliday())
	}
	if f.search != "" {
		preds = append(preds, cozi.Search(f.search))
	}
	return preds
}

// render filters entries and optionally resolves attendees.
func (f entryFilter) render(ctx context.Context, client *cozi.Client, entries []cozi.CalendarEntry) (*mcp.CallToolResult, error) {
	entries = cozi.FilterSlice(entries, f.predicates()...)
	if !f.withAttendees {
		return jsonResult(entries)
	}

	resolved, err := client.WithAttendees(ctx, entries)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve attendees: %v", err)), nil
	}
	return jsonResult(resolved)
}

func handleGetCalendarMonth(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	year, ok, err := common.IntArg(args, "year")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("year is required"), nil
	}
	month, ok, err := common.IntArg(args, "month")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError("month is required"), nil
	}

	client, errResult := getClient(ctx, sc)
	if errResult != nil {
		return errResult, nil
	}

	if common.BoolArg(args, "raw", false) {
		raw, err := client.GetCalendarMonthRaw(ctx, year, month)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get calendar month: %v", err)), nil
		}
		return rawResult(raw)
	}

	m, err := client.GetCalendarMonth(ctx, year, month)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get calendar month: %v", err)), nil
	}
	return parseEntryFilter(args).render(ctx, client, cozi.Collect(cozi.Flatten(m)))
}

func handleGetCalendarItem(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	ids, err := batch.ParseStringOrArray(args["item_ids"], "item_ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw := common.BoolArg(args, "raw", false)

	client, errResult := getClient(ctx, sc)
	if errResult != nil {
		return errResult, nil
	}

	var results []batch.Result
	if raw {
		results = batch.Process(ctx, ids, client.AttendeeConcurrency(), client.GetCalendarItemRaw)
	} else {
		results = batch.Process(ctx, ids, client.AttendeeConcurrency(), client.GetCalendarItem)
	}

	if len(ids) == 1 {
		r := results[0]
		if r.Status != batch.StatusSuccess {
			return mcp.NewToolResultError(fmt.Sprintf("failed to get calendar item %s: %s", r.ID, r.Error)), nil
		}
		return rawResult(r.Result)
	}
	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}

func handleGetCalendarDay(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	return handleWindow(ctx, request, sc, "calendar day", (*cozi.Client).GetCalendarDay)
}

func handleGetCalendarWeek(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	return handleWindow(ctx, request, sc, "calendar week", (*cozi.Client).GetCalendarWeek)
}

func handleWindow(
	ctx context.Context,
	request mcp.CallToolRequest,
	sc *server.ServerContext,
	what string,
	get func(*cozi.Client, context.Context, time.Time) ([]cozi.CalendarEntry, error),
) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	date, err := common.DateArg(args, "date", cozi.DateOf(now()))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, errResult := getClient(ctx, sc)
	if errResult != nil {
		return errResult, nil
	}

	entries, err := get(client, ctx, date)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get %s: %v", what, err)), nil
	}
	return parseEntryFilter(args).render(ctx, client, entries)
}

func handleGetCalendarYear(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	year, ok, err := common.IntArg(args, "year")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		year = now().Year()
	}

	client, errResult := getClient(ctx, sc)
	if errResult != nil {
		return errResult, nil
	}

	entries, err := client.GetCalendarYear(ctx, year)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get calendar year: %v", err)), nil
	}
	return parseEntryFilter(args).render(ctx, client, entries)
}
