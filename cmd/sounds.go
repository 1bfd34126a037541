package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/beatgrid/internal/sample"
	"github.com/audiolibrelab/beatgrid/internal/service"
)

var soundsCmd = &cobra.Command{
	Use:   "sounds",
	Short: "List the sounds of the current kit",
	Long: `List the sounds available in the current kit. Local kits list the files of
the kit directory with a supported extension (or the configured catalog),
remote kits ask the server at base_url.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		query, _ := cmd.Flags().GetString("search")

		lib := service.NewLibrary(cfg.Kit)
		sounds, err := lib.Sounds(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sounds: %w", err)
		}
		matches := sample.Filter(sounds, query)

		source := cfg.Kit.Directory
		if cfg.Kit.Remote() {
			source = cfg.Kit.BaseURL
		}
		fmt.Printf("Kit %s (%s): %d sounds\n", cfg.KitName, source, len(sounds))
		if query != "" {
			fmt.Printf("Matching %q: %d\n", query, len(matches))
		}
		for i, ref := range matches {
			fmt.Printf("  %d. %s\n", i+1, ref)
		}
		return nil
	},
}

func init() {
	soundsCmd.Flags().StringP("search", "s", "", "only list sounds whose name contains this text")
}
