package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/beatgrid/internal/audio"
	"github.com/audiolibrelab/beatgrid/internal/config"
	"github.com/audiolibrelab/beatgrid/internal/pattern"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the resolved configuration",
	Long:  `Display the resolved configuration with inheritance indicators. Shows which kit values are inherited from the default kit vs kit-specific.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inh := cfg.Inheritance
		if inh == nil {
			inh = &config.InheritanceInfo{}
		}

		fmt.Printf("=== CONFIGURATION ===\n")
		fmt.Printf("config_file: %s\n", cfgFile)
		if !config.ConfigFileExists(cfgFile) {
			fmt.Printf("  (not found, built-in defaults)\n")
		}

		// Kit configuration
		fmt.Printf("\n[Kit %s]\n", cfg.KitName)
		if cfg.Kit.Remote() {
			fmt.Printf("base_url: %s %s\n", cfg.Kit.BaseURL, getInheritanceIndicator(inh.BaseURL))
		} else {
			fmt.Printf("directory: %s %s\n", cfg.Kit.Directory, getInheritanceIndicator(inh.Directory))
			fmt.Printf("extensions: %s %s\n", strings.Join(cfg.Kit.Extensions, ", "), getInheritanceIndicator(inh.Extensions))
		}
		if len(cfg.Kit.Catalog) > 0 {
			fmt.Printf("catalog: %d sounds %s\n", len(cfg.Kit.Catalog), getInheritanceIndicator(inh.Catalog))
		}

		// Audio configuration
		fmt.Printf("\n[Audio]\n")
		fmt.Printf("backend: %s (available: %s)\n", cfg.Audio.Backend, joinBackends(audio.GetAvailableBackends()))
		fmt.Printf("sample_rate: %d\n", cfg.Audio.SampleRate)
		fmt.Printf("buffer_ms: %d\n", cfg.Audio.BufferMS)
		if strings.EqualFold(cfg.Audio.Backend, string(audio.BackendTypePipeWire)) {
			fmt.Printf("target: %s\n", cfg.Audio.Target)
			if sinks, err := audio.ListSinks(); err == nil {
				fmt.Printf("sinks:\n")
				for _, sink := range sinks {
					fmt.Printf("  - %s\n", sink)
				}
			}
		}

		// Sequencer configuration
		fmt.Printf("\n[Sequencer]\n")
		fmt.Printf("bpm: %g (%s per step)\n", cfg.Sequencer.BPM, pattern.StepDuration(cfg.Sequencer.BPM))
		fmt.Printf("steps: %d\n", cfg.Sequencer.Steps)
		fmt.Printf("default_volume: %.2f\n", cfg.Sequencer.DefaultVolume)
		fmt.Printf("preload_on_play: %t\n", cfg.Sequencer.PreloadOnPlay)

		// Server and export configuration
		fmt.Printf("\n[Server]\n")
		fmt.Printf("port: %s\n", cfg.Server.Port)
		fmt.Printf("static_dir: %s\n", cfg.Server.StaticDir)

		fmt.Printf("\n[Export]\n")
		fmt.Printf("directory: %s\n", cfg.Export.Directory)
		fmt.Printf("format: %s\n", cfg.Export.Format)

		return nil
	},
}

// getInheritanceIndicator returns a formatted indicator for inheritance status
func getInheritanceIndicator(status string) string {
	switch status {
	case "inherited":
		return "[inherited]"
	case "kit-specific":
		return "[kit-specific]"
	default:
		return "[default]"
	}
}

func joinBackends(backends []audio.BackendType) string {
	names := make([]string, len(backends))
	for i, b := range backends {
		names[i] = string(b)
	}
	return strings.Join(names, ", ")
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
