package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDisconnectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Sign out of the calendar provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "🚀 Disconnecting calendar...")
			svc.SignOut(commandContext(cmd))
			fmt.Fprintln(cmd.OutOrStdout(), "✅ Calendar disconnected")
			return nil
		},
	}
}
