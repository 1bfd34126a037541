package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiolibrelab/beatgrid/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server for remote control",
	Long: `Start the beatgrid web server. The pattern is edited and played through
the HTTP API, and the kit's sounds are served under /sounds/ so browsers and
other beatgrid instances (kits with a base_url) can use them.

The server will display the local network URL for easy access from other devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Server.Port = port
		}
		if dir, _ := cmd.Flags().GetString("static"); dir != "" {
			cfg.Server.StaticDir = dir
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := newSession()
		if err != nil {
			return err
		}
		defer svc.Close()

		if file, _ := cmd.Flags().GetString("pattern"); file != "" {
			if err := importPatternFile(ctx, svc, file); err != nil {
				return err
			}
		}

		slog.Info("beatgrid web server starting", "port", cfg.Server.Port, "config", cfgFile)

		// Start server (this blocks until interrupted)
		if err := server.New(cfg, svc).Start(ctx); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the web server (overrides config)")
	serveCmd.Flags().String("static", "", "directory with the browser UI (overrides config)")
	serveCmd.Flags().String("pattern", "", "pattern file to load at startup")
}
