package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Sign in to the calendar provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			out := cmd.OutOrStdout()

			svc.Initialize(ctx)
			if svc.IsConnected() {
				fmt.Fprintf(out, "✅ Already connected (%s)\n", svc.ProviderName())
				return nil
			}

			fmt.Fprintf(out, "🚀 Connecting to %s...\n", svc.ProviderName())
			if !svc.SignIn(ctx) {
				renderTextPanel(out, newPanelView(svc, ""))
				return fmt.Errorf("failed to connect to %s", svc.ProviderName())
			}
			fmt.Fprintln(out, "✅ Calendar connected")
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the connection state and setup guide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			svc.Initialize(ctx)

			view := newPanelView(svc, "")
			if view.Connected {
				if err := svc.CheckCalendar(ctx); err != nil {
					view.Message = fmt.Sprintf("⚠️  Calendar %s is not reachable: %v", a.config.General.CalendarID, err)
				}
			}
			renderTextPanel(cmd.OutOrStdout(), view)
			return nil
		},
	}
}
