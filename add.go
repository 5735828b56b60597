package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const flagTimeLayout = "2006-01-02 15:04"

type eventFlags struct {
	title       string
	description string
	start       string
	end         string
	duration    time.Duration
	reminder    int
}

func (f *eventFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "event title")
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "event description")
	cmd.Flags().StringVar(&f.start, "start", "", `start time, RFC3339 or "2006-01-02 15:04" local`)
	cmd.Flags().StringVar(&f.end, "end", "", "end time (default: start + duration)")
	cmd.Flags().DurationVar(&f.duration, "duration", time.Hour, "event length when --end is not given")
	cmd.Flags().IntVar(&f.reminder, "reminder", 0, "reminder lead time in minutes (popup and email)")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("start")
}

// event validates the flags before any calendar call is made.
func (f *eventFlags) event(cmd *cobra.Command, loc *time.Location) (Event, error) {
	start, err := parseTimeFlag(f.start, loc)
	if err != nil {
		return Event{}, fmt.Errorf("invalid --start: %w", err)
	}
	end := start.Add(f.duration)
	if f.end != "" {
		if end, err = parseTimeFlag(f.end, loc); err != nil {
			return Event{}, fmt.Errorf("invalid --end: %w", err)
		}
	}

	event := Event{
		Title:       f.title,
		Description: f.description,
		StartTime:   start,
		EndTime:     end,
	}
	if cmd.Flags().Changed("reminder") {
		if f.reminder < 0 {
			return Event{}, fmt.Errorf("invalid --reminder: must not be negative")
		}
		event.Reminder = &Reminder{Minutes: f.reminder}
	}
	if err := event.Validate(); err != nil {
		return Event{}, err
	}
	return event, nil
}

func parseTimeFlag(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.ParseInLocation(flagTimeLayout, value, loc)
}

func newAddCmd(a *app) *cobra.Command {
	var flags eventFlags
	var taskID string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a calendar event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := flags.event(cmd, a.location)
			if err != nil {
				return err
			}
			event.TaskID = taskID

			svc, err := a.connected(cmd)
			if err != nil {
				return err
			}

			id, ok := svc.CreateEvent(commandContext(cmd), event)
			if !ok {
				return fmt.Errorf("failed to create event %q", event.Title)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Created event %s\n", id)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&taskID, "task-id", "", "task identifier stored with the event")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var flags eventFlags

	cmd := &cobra.Command{
		Use:   "update <event-id>",
		Short: "Replace the title, description, times and reminder of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := flags.event(cmd, a.location)
			if err != nil {
				return err
			}

			svc, err := a.connected(cmd)
			if err != nil {
				return err
			}

			if !svc.UpdateEvent(commandContext(cmd), args[0], event) {
				return fmt.Errorf("failed to update event %s", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Updated event %s\n", args[0])
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
