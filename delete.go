package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <event-id>",
		Short: "Delete a calendar event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID := args[0]
			out := cmd.OutOrStdout()

			if !yes {
				fmt.Fprintf(out, "⚠️  Are you sure you want to delete event %s? (y/N): ", eventID)
				var confirmation string
				fmt.Fscanln(cmd.InOrStdin(), &confirmation)
				if confirmation != "y" && confirmation != "Y" {
					fmt.Fprintln(out, "❌ Event deletion cancelled")
					return nil
				}
			}

			svc, err := a.connected(cmd)
			if err != nil {
				return err
			}

			if !svc.DeleteEvent(commandContext(cmd), eventID) {
				return fmt.Errorf("failed to delete event %s", eventID)
			}
			if err := deleteTaskLinksByEvent(a.db, eventID); err != nil {
				a.logger.WithError(err).WithField("event_id", eventID).Warn("Failed to remove task link")
			}
			fmt.Fprintf(out, "✅ Deleted event %s\n", eventID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}
