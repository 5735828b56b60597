package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const (
	cleanupLookBack  = -30 * 24 * time.Hour
	cleanupLookAhead = 365 * 24 * time.Hour
)

func newCleanupCmd(a *app) *cobra.Command {
	var flags windowFlags

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every task event in a time window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := flags.window(time.Now().In(a.location), a.location, cleanupLookBack, cleanupLookAhead)
			if err != nil {
				return err
			}

			svc, err := a.connected(cmd)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "🚀 Starting task event cleanup...")
			deleted, failed := cleanupTaskEvents(commandContext(cmd), svc, from, to, func(eventID string) {
				if err := deleteTaskLinksByEvent(a.db, eventID); err != nil {
					a.logger.WithError(err).WithField("event_id", eventID).Warn("Failed to remove task link")
				}
			})
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Deleted %d task events\n", deleted)
			if failed > 0 {
				return fmt.Errorf("%d task events could not be deleted", failed)
			}
			return nil
		},
	}
	flags.register(cmd, "window start (default: 30 days ago)", "window end (default: a year from now)")
	return cmd
}

// cleanupTaskEvents deletes the events created for tasks, one call per
// event, and reports how many were deleted and how many failed. Instances
// of a recurring event are deleted once, through their series.
func cleanupTaskEvents(ctx context.Context, svc *CalendarService, from, to time.Time, onDeleted func(eventID string)) (deleted, failed int) {
	seen := make(map[string]bool)
	for _, event := range svc.ListEvents(ctx, from, to) {
		if event.Source != sourceTaskflow && event.TaskID == "" {
			continue
		}
		eventID := event.ID
		if event.SeriesID != "" {
			eventID = event.SeriesID
		}
		if seen[eventID] {
			continue
		}
		seen[eventID] = true

		if !svc.DeleteEvent(ctx, eventID) {
			failed++
			continue
		}
		deleted++
		if onDeleted != nil {
			onDeleted(eventID)
		}
	}
	return deleted, failed
}
