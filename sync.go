package main

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Mirror tasks as calendar events",
	}
	cmd.AddCommand(newTaskAddCmd(a), newTaskRemoveCmd(a))
	return cmd
}

func newTaskAddCmd(a *app) *cobra.Command {
	var task Task

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create the calendar event for a task",
		Long: `Creates a one hour event with a 15 minute reminder for the task.
The event starts today at --time ("2:30 PM"), or now when --time is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if task.Time != "" {
				if _, err := ParseTimeOfDay(task.Time, time.Now().In(a.location)); err != nil {
					return err
				}
			}

			link, err := getTaskLink(a.db, task.ID)
			switch {
			case err == nil:
				return fmt.Errorf("task %s already has event %s", task.ID, link.EventID)
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}

			svc, err := a.connected(cmd)
			if err != nil {
				return err
			}

			eventID, ok := svc.CreateTaskEvent(commandContext(cmd), task)
			if !ok {
				return fmt.Errorf("failed to create event for task %s", task.ID)
			}

			err = saveTaskLink(a.db, TaskLink{
				TaskID:     task.ID,
				EventID:    eventID,
				CalendarID: a.config.General.CalendarID,
				CreatedAt:  time.Now(),
			})
			if err != nil {
				return fmt.Errorf("event %s created but the task link was not saved: %w", eventID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Task %s is on the calendar as event %s\n", task.ID, eventID)
			return nil
		},
	}
	cmd.Flags().StringVar(&task.ID, "id", "", "task identifier")
	cmd.Flags().StringVarP(&task.Title, "title", "t", "", "task title")
	cmd.Flags().StringVar(&task.Emoji, "emoji", "", "emoji shown before the title")
	cmd.Flags().StringVar(&task.Category, "category", "", "task category")
	cmd.Flags().StringVar(&task.Priority, "priority", "", "task priority")
	cmd.Flags().StringVar(&task.Time, "time", "", `time of day, e.g. "2:30 PM"`)
	cmd.MarkFlagRequired("id")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newTaskRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <task-id>",
		Short: "Delete the calendar event of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]

			link, err := getTaskLink(a.db, taskID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("task %s has no calendar event", taskID)
			}
			if err != nil {
				return err
			}

			svc, err := a.connected(cmd)
			if err != nil {
				return err
			}

			if !svc.DeleteEvent(commandContext(cmd), link.EventID) {
				return fmt.Errorf("failed to delete event %s of task %s", link.EventID, taskID)
			}
			if err := deleteTaskLink(a.db, taskID); err != nil {
				return fmt.Errorf("event deleted but the task link was not removed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Removed event %s of task %s\n", link.EventID, taskID)
			return nil
		},
	}
}
