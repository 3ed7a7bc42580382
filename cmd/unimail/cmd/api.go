package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/unimail/unimail/internal/api"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the local HTTP API server",
	Long: `Run a local HTTP API server exposing the unified inbox.

The server binds to 127.0.0.1 on the configured port (default: 8080).
Set [server] api_key in config.toml to require authentication; requests
then pass the key in the Authorization or X-API-Key header.

Use Ctrl+C to stop the server gracefully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		agg, err := buildAggregator(s)
		if err != nil {
			return err
		}

		srv := api.NewServer(cfg, agg, logger)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		case <-cmd.Context().Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return cmd.Context().Err()
	},
}

func init() {
	rootCmd.AddCommand(apiCmd)
}
