package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/beatgrid/internal/config"
	"github.com/audiolibrelab/beatgrid/internal/service"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	kit          string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "beatgrid",
	Short: "Step sequencer drum machine",
	Long: `beatgrid is a step sequencer drum machine. Tracks play sounds from a kit
on a grid of 8, 16 or 32 steps at a tempo between 40 and 240 bpm.

Patterns can be played in the terminal, controlled from a browser through
the web server, exported and imported as JSON or YAML documents, and
bounced offline to a WAV file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// Use default config path if not specified
		explicit := cmd.Flags().Changed("config")
		if cfgFile == "" {
			cfgFile = config.DefaultConfigFile()
		}

		// Without a config file the built-in defaults apply, unless one was asked for
		if !config.ConfigFileExists(cfgFile) {
			if explicit {
				return fmt.Errorf("config file not found: %s", cfgFile)
			}
			if kit != "" && kit != config.DefaultKit {
				return fmt.Errorf("kit '%s' not found: no config file at %s", kit, cfgFile)
			}
			slog.Debug("No config file, using defaults", "path", cfgFile)
			cfg = config.Default()
			return nil
		}

		var err error
		cfg, err = config.LoadWithKit(cfgFile, kit)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		slog.Debug("Configuration loaded", "path", cfgFile, "kit", cfg.KitName)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/beatgrid.yaml)")
	rootCmd.PersistentFlags().StringVar(&kit, "kit", "", "sound kit to use (overrides active_kit from file)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(mixCmd)
	rootCmd.AddCommand(soundsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(configCmd)
}

// newSession creates a sequencer session from the loaded configuration
func newSession() (*service.SequencerService, error) {
	svc, err := service.New(cfg, service.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return svc, nil
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
}
