package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local connect/disconnect web panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen == "" {
				listen = a.config.General.ListenAddr
			}
			// Browser sign in needs a redirect back to the panel.
			if a.config.Google.RedirectURL == oobRedirectURL {
				a.config.Google.RedirectURL = "http://" + listen + callbackPath
			}

			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			svc.Initialize(ctx)

			server := newPanelServer(svc, a.logger)
			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start(listen)
			}()
			fmt.Fprintf(cmd.OutOrStdout(), "📅 Panel running at http://%s\n", listen)

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default: general.listen_addr)")
	return cmd
}
