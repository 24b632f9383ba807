package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicerec/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the web server for remote control",
	Long: `Start the voicerec web server to control recording via HTTP and a web page.
Levels and state changes are streamed over a websocket at /ws/levels.

The server will display the local network URL for easy access from mobile devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}

		svc, closeSvc, err := openService()
		if err != nil {
			return err
		}
		defer closeSvc()

		ctx, cancel := interruptContext(0)
		defer cancel()

		slog.Info("voicerec web server starting", "addr", cfg.Server.Addr(), "config", cfgFile, "profile", cfg.Profile)
		if err := server.New(svc, cfg.Server.Addr()).Run(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("host", "", "address to listen on (overrides config)")
	serveCmd.Flags().Int("port", 0, "port for the web server (overrides config)")
}
