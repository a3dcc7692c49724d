package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/cozictl/internal/cozi"
)

// runWithClient logs in and runs fn with the command's context and stdout.
func runWithClient(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, client *cozi.Client, out io.Writer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := opts.logger(cmd.ErrOrStderr())

	client, err := opts.connect(ctx, logger, nil)
	if err != nil {
		return err
	}
	return fn(ctx, client, cmd.OutOrStdout())
}

// printJSON writes v as indented JSON followed by a newline.
func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRaw re-indents an upstream document without reordering its keys.
func printRaw(out io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(out)
	return err
}

func newListsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Print all shopping and to-do lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithClient(cmd, opts, func(ctx context.Context, client *cozi.Client, out io.Writer) error {
				lists, err := client.GetLists(ctx)
				if err != nil {
					return err
				}
				return printJSON(out, lists)
			})
		},
	}
}

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <list-id>",
		Short: "Print a single list with its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithClient(cmd, opts, func(ctx context.Context, client *cozi.Client, out io.Writer) error {
				list, err := client.GetList(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(out, list)
			})
		},
	}
}

func newPeopleCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "people",
		Short: "Print the household members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithClient(cmd, opts, func(ctx context.Context, client *cozi.Client, out io.Writer) error {
				people, err := client.GetPeople(ctx)
				if err != nil {
					return err
				}
				return printJSON(out, people)
			})
		},
	}
}

// calendarFlags are the filters shared by the calendar commands.
type calendarFlags struct {
	attendees bool
	holidays  bool
	search    string
}

func (f *calendarFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.attendees, "attendees", false, "Resolve the household members attending each appointment")
	cmd.Flags().BoolVar(&f.holidays, "holidays", true, "Include public holidays")
	cmd.Flags().StringVar(&f.search, "search", "", "Only show appointments whose description, location or notes contain this text")
}

func (f *calendarFlags) predicates() []cozi.Predicate {
	var preds []cozi.Predicate
	if !f.holidays {
		preds = append(preds, cozi.NotHoliday())
	}
	if f.search != "" {
		preds = append(preds, cozi.Search(f.search))
	}
	return preds
}

func (f *calendarFlags) print(ctx context.Context, client *cozi.Client, out io.Writer, entries []cozi.CalendarEntry) error {
	entries = cozi.FilterSlice(entries, f.predicates()...)
	if !f.attendees {
		return printJSON(out, entries)
	}
	resolved, err := client.WithAttendees(ctx, entries)
	if err != nil {
		return err
	}
	return printJSON(out, resolved)
}

func newMonthCmd(opts *globalOptions) *cobra.Command {
	var (
		flags calendarFlags
		raw   bool
	)

	cmd := &cobra.Command{
		Use:   "month <year> <month>",
		Short: "Print the appointments of a calendar month",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYear(args[0])
			if err != nil {
				return err
			}
			month, err := strconv.Atoi(args[1])
			if err != nil || month < 1 || month > 12 {
				return fmt.Errorf("invalid month %q: must be 1-12", args[1])
			}

			return runWithClient(cmd, opts, func(ctx context.Context, client *cozi.Client, out io.Writer) error {
				if raw {
					doc, err := client.GetCalendarMonthRaw(ctx, year, month)
					if err != nil {
						return err
					}
					return printRaw(out, doc)
				}
				m, err := client.GetCalendarMonth(ctx, year, month)
				if err != nil {
					return err
				}
				return flags.print(ctx, client, out, cozi.Collect(cozi.Flatten(m)))
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the month document exactly as delivered, ignoring filters")
	return cmd
}

func newItemCmd(opts *globalOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "item <item-id>",
		Short: "Print the full details of a calendar appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithClient(cmd, opts, func(ctx context.Context, client *cozi.Client, out io.Writer) error {
				if raw {
					doc, err := client.GetCalendarItemRaw(ctx, args[0])
					if err != nil {
						return err
					}
					return printRaw(out, doc)
				}
				item, err := client.GetCalendarItem(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(out, item)
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print the appointment exactly as delivered")
	return cmd
}

// now is replaced in tests.
var now = time.Now

// dateArg parses an optional YYYY-MM-DD argument, defaulting to today.
func dateArg(args []string) (time.Time, error) {
	if len(args) == 0 {
		return cozi.DateOf(now()), nil
	}
	d, ok := cozi.ParseDay(args[0])
	if !ok {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", args[0])
	}
	return d, nil
}

func parseYear(s string) (int, error) {
	year, err := strconv.Atoi(s)
	if err != nil || year < 1 || year > 9999 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return year, nil
}

func newDayCmd(opts *globalOptions) *cobra.Command {
	var flags calendarFlags

	cmd := &cobra.Command{
		Use:   "day [date]",
		Short: "Print the appointments of a day (default: today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args)
			if err != nil {
				return err
			}
			return runWithClient(cmd, opts, func(ctx context.Context, client *cozi.Client, out io.Writer) error {
				entries, err := client.GetCalendarDay(ctx, date)
				if err != nil {
					return err
				}
				return flags.print(ctx, client, out, entries)
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func newWeekCmd(opts *globalOptions) *cobra.Command {
	var flags calendarFlags

	cmd := &cobra.Command{
		Use:   "week [date]",
		Short: "Print the appointments of the Monday-to-Sunday week containing date (default: today)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args)
			if err != nil {
				return err
			}
			return runWithClient(cmd, opts, func(ctx context.Context, client *cozi.Client, out io.Writer) error {
				entries, err := client.GetCalendarWeek(ctx, date)
				if err != nil {
					return err
				}
				return flags.print(ctx, client, out, entries)
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func newYearCmd(opts *globalOptions) *cobra.Command {
	var flags calendarFlags

	cmd := &cobra.Command{
		Use:   "year [year]",
		Short: "Print the appointments of a whole year (default: current year)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year := now().Year()
			if len(args) == 1 {
				var err error
				if year, err = parseYear(args[0]); err != nil {
					return err
				}
			}
			return runWithClient(cmd, opts, func(ctx context.Context, client *cozi.Client, out io.Writer) error {
				entries, err := client.GetCalendarYear(ctx, year)
				if err != nil {
					return err
				}
				return flags.print(ctx, client, out, entries)
			})
		},
	}

	flags.register(cmd)
	return cmd
}
