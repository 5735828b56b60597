package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

type windowFlags struct {
	from string
	to   string
}

func (f *windowFlags) register(cmd *cobra.Command, fromHelp, toHelp string) {
	cmd.Flags().StringVar(&f.from, "from", "", fromHelp)
	cmd.Flags().StringVar(&f.to, "to", "", toHelp)
}

// window parses --from/--to, falling back to now+defaultFrom and
// now+defaultTo.
func (f *windowFlags) window(now time.Time, loc *time.Location, defaultFrom, defaultTo time.Duration) (time.Time, time.Time, error) {
	from, to := now.Add(defaultFrom), now.Add(defaultTo)
	var err error
	if f.from != "" {
		if from, err = parseTimeFlag(f.from, loc); err != nil {
			return from, to, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if f.to != "" {
		if to, err = parseTimeFlag(f.to, loc); err != nil {
			return from, to, fmt.Errorf("invalid --to: %w", err)
		}
	}
	if !to.After(from) {
		return from, to, fmt.Errorf("--to must be after --from")
	}
	return from, to, nil
}

func newListCmd(a *app) *cobra.Command {
	var flags windowFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List calendar events in a time window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := flags.window(time.Now().In(a.location), a.location, 0, defaultEventSpan)
			if err != nil {
				return err
			}

			svc, err := a.connected(cmd)
			if err != nil {
				return err
			}

			events := svc.ListEvents(commandContext(cmd), from, to)
			printEvents(cmd.OutOrStdout(), events, a.location)
			return nil
		},
	}
	flags.register(cmd, "window start (default: now)", "window end (default: now + 7 days)")
	return cmd
}

func printEvents(w io.Writer, events []Event, loc *time.Location) {
	if len(events) == 0 {
		fmt.Fprintln(w, "📭 No events found")
		return
	}

	fmt.Fprintln(w, "📋 Here's the list of your events:")
	for _, event := range events {
		fmt.Fprintf(w, "  📅 %s - %s  %s (%s)",
			event.StartTime.In(loc).Format(flagTimeLayout),
			event.EndTime.In(loc).Format("15:04"),
			event.Title,
			event.ID)
		if event.Reminder != nil {
			fmt.Fprintf(w, " ⏰ %dm", event.Reminder.Minutes)
		}
		if event.TaskID != "" {
			fmt.Fprintf(w, " 📝 task %s", event.TaskID)
		}
		fmt.Fprintln(w)
	}
}
