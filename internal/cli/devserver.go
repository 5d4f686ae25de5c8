package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/your-username/ehr-console/internal/devserver"
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local stream server that emits synthetic log entries",
	Long: `Run a local stand-in for the platform's auth and log stream endpoints.

It signs in the configured operator, issues short-lived access tokens with
single-use refresh tokens, and publishes synthetic entries at DEV_RATE per
second over SSE and websocket. Streams end when their token expires, so the
client's refresh and reconnect path runs every DEV_ACCESS_TTL.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := devserver.New(cfg.DevServer)
		if err != nil {
			return err
		}
		return srv.Run(ctx, ":"+cfg.DevServer.Port, cfg.Stream.Path)
	},
}

func init() {
	rootCmd.AddCommand(devserverCmd)
}
