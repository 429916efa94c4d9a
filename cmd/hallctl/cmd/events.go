package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/penmaen-hall/server/internal/domain/events"
	"github.com/spf13/cobra"
)

func newEventsCommand(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List and manage scheduled events",
	}
	cmd.AddCommand(
		newEventsListCommand(global),
		newEventsAddCommand(global),
		newEventsUpdateCommand(global),
		newEventsDeleteCommand(global),
	)
	return cmd
}

func newEventsListCommand(global *globalOptions) *cobra.Command {
	var from string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events by date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var since events.Date
			if from != "" {
				d, err := events.ParseDate(from)
				if err != nil {
					return err
				}
				since = d
			}
			a, err := global.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.events.Load(commandContext(cmd)); err != nil {
				return err
			}
			list := a.events.List().Events
			if !since.IsZero() {
				kept := list[:0]
				for _, e := range list {
					if e.Date.Compare(since) >= 0 {
						kept = append(kept, e)
					}
				}
				list = kept
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			return printEvents(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "only events on or after this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// eventFlags binds the writable fields to flags shared by add and update.
type eventFlags struct {
	title, description, date, start, end, location, kind string
}

func (f *eventFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "event title")
	cmd.Flags().StringVar(&f.description, "description", "", "longer description")
	cmd.Flags().StringVar(&f.date, "date", "", "date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.start, "start", "", "start time (HH:MM)")
	cmd.Flags().StringVar(&f.end, "end", "", "end time (HH:MM)")
	cmd.Flags().StringVar(&f.location, "location", "", "where in the hall")
	cmd.Flags().StringVar(&f.kind, "type", "", "category, e.g. "+strings.Join(events.DefaultTypes, ", "))
}

func newEventsAddCommand(global *globalOptions) *cobra.Command {
	flags := &eventFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an event",
		Long: `Add an event. Location defaults to "` + events.DefaultLocation + `" and type to "` + events.DefaultType + `".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := flags.fields()
			if err != nil {
				return err
			}
			a, err := global.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := requireAdmin(cmd, a); err != nil {
				return err
			}
			err = a.events.Create(commandContext(cmd), fields.WithFormDefaults())
			return reportWrite(cmd, err, fmt.Sprintf("added %q on %s", strings.TrimSpace(fields.Title), fields.Date))
		},
	}
	flags.bind(cmd)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newEventsUpdateCommand(global *globalOptions) *cobra.Command {
	flags := &eventFlags{}
	var clearStart, clearEnd bool
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change some fields of an event",
		Long: `Change the fields given as flags and leave the rest as they are.
Pass an empty string to clear a text field, or --clear-start/--clear-end to
remove a time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := flags.patch(cmd, clearStart, clearEnd)
			if err != nil {
				return err
			}
			if patch.IsEmpty() {
				return fmt.Errorf("nothing to change: pass at least one field flag")
			}
			a, err := global.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := requireAdmin(cmd, a); err != nil {
				return err
			}
			err = a.events.Update(commandContext(cmd), args[0], patch)
			return reportWrite(cmd, err, "updated "+args[0])
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&clearStart, "clear-start", false, "remove the start time")
	cmd.Flags().BoolVar(&clearEnd, "clear-end", false, "remove the end time")
	cmd.MarkFlagsMutuallyExclusive("start", "clear-start")
	cmd.MarkFlagsMutuallyExclusive("end", "clear-end")
	return cmd
}

func newEventsDeleteCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := global.newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := requireAdmin(cmd, a); err != nil {
				return err
			}
			err = a.events.Delete(commandContext(cmd), args[0])
			return reportWrite(cmd, err, "deleted "+args[0])
		},
	}
}

func (f *eventFlags) fields() (events.Fields, error) {
	date, err := events.ParseDate(f.date)
	if err != nil {
		return events.Fields{}, err
	}
	start, err := events.ParseOptionalTime(f.start)
	if err != nil {
		return events.Fields{}, fmt.Errorf("--start: %w", err)
	}
	end, err := events.ParseOptionalTime(f.end)
	if err != nil {
		return events.Fields{}, fmt.Errorf("--end: %w", err)
	}
	return events.Fields{
		Title:       f.title,
		Description: f.description,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		Location:    f.location,
		Type:        f.kind,
	}, nil
}

func (f *eventFlags) patch(cmd *cobra.Command, clearStart, clearEnd bool) (events.Patch, error) {
	changed := cmd.Flags().Changed
	var p events.Patch
	if changed("title") {
		p.Title = &f.title
	}
	if changed("description") {
		p.Description = &f.description
	}
	if changed("location") {
		p.Location = &f.location
	}
	if changed("type") {
		p.Type = &f.kind
	}
	if changed("date") {
		d, err := events.ParseDate(f.date)
		if err != nil {
			return events.Patch{}, err
		}
		p.Date = &d
	}
	if changed("start") {
		t, err := events.ParseTimeOfDay(f.start)
		if err != nil {
			return events.Patch{}, fmt.Errorf("--start: %w", err)
		}
		p.StartTime = &t
	}
	if changed("end") {
		t, err := events.ParseTimeOfDay(f.end)
		if err != nil {
			return events.Patch{}, fmt.Errorf("--end: %w", err)
		}
		p.EndTime = &t
	}
	p.ClearStartTime = clearStart
	p.ClearEndTime = clearEnd
	return p, nil
}

// reportWrite turns a synchronizer write result into command output.
func reportWrite(cmd *cobra.Command, err error, done string) error {
	var reloadErr *events.ReloadError
	var verr events.ValidationError
	switch {
	case err == nil:
		fmt.Fprintln(cmd.OutOrStdout(), done)
		return nil
	case errors.As(err, &reloadErr):
		fmt.Fprintln(cmd.OutOrStdout(), done)
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: saved, but the refreshed list could not be loaded: %v\n", reloadErr.Err)
		return nil
	case errors.As(err, &verr):
		return fmt.Errorf("invalid event: %s", formatFieldErrors(verr.Fields))
	case errors.Is(err, events.ErrNotFound):
		return fmt.Errorf("that event no longer exists")
	}
	return err
}

func formatFieldErrors(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " " + fields[name]
	}
	return strings.Join(parts, "; ")
}

func printEvents(out io.Writer, list []events.Event) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(out, "no events scheduled")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTIME\tTITLE\tLOCATION\tTYPE\tID")
	for _, e := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", e.Date, timeRange(e), e.Title, e.Location, e.Type, e.ID)
	}
	return w.Flush()
}

func timeRange(e events.Event) string {
	switch {
	case e.StartTime != nil && e.EndTime != nil:
		return e.StartTime.Short() + "-" + e.EndTime.Short()
	case e.StartTime != nil:
		return e.StartTime.Short()
	case e.EndTime != nil:
		return "until " + e.EndTime.Short()
	}
	return "-"
}
